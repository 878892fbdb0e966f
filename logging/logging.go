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

// Package logging centralises the charmbracelet/log construction idiom
// used throughout client2 (e.g. connection.go's
// `log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: ...})`),
// so every component gets a consistently prefixed logger instead of each
// package reinventing the options struct.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New returns a logger writing to w (os.Stderr if w is nil) with
// timestamps enabled and the given prefix, matching the teacher's
// client2/arq.go and client2/connection.go construction sites.
func New(w io.Writer, prefix string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          prefix,
	})
}
