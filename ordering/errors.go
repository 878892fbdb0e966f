// Copyright (C) 2024  Katzenpost Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package ordering

import "errors"

// ErrPolledAfterClose is returned by TakeNext once end-of-stream has
// already been reported once; polling a terminated channel again is a
// caller bug (spec.md §7 "PolledAfterClose").
var ErrPolledAfterClose = errors.New("ordering: take_next polled after close")
