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

// Package mpcerr collects the error kinds surfaced across the gateway
// and mesh layers (spec.md §7), following the same typed-struct +
// Error() string pattern the teacher uses for ConnectError/PKIError/
// ProtocolError in client2/connection.go.
package mpcerr

import (
	"fmt"

	"github.com/katzenpost/ipa-mesh/channel"
	"github.com/katzenpost/ipa-mesh/record"
)

// TooManyRecords indicates a SendingEnd tried to send a record_id at or
// beyond the channel's declared total.
type TooManyRecords struct {
	Channel  channel.ID
	RecordID record.ID
	Total    record.Total
}

func (e *TooManyRecords) Error() string {
	return fmt.Sprintf("mesh: %v exceeds total %v on channel %s", e.RecordID, e.Total, e.Channel)
}

// SerializationError indicates a message did not fit its declared
// fixed size S.
type SerializationError struct {
	Channel  channel.ID
	RecordID record.ID
	Cause    error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("mesh: serialization error for %v on channel %s: %v", e.RecordID, e.Channel, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// ReceiveError indicates the transport dropped, or the Gateway was torn
// down, before a requested payload arrived; it is delivered to whatever
// is awaiting that receive.
type ReceiveError struct {
	Role  string
	Cause error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("mesh: receive error for %s: %v", e.Role, e.Cause)
}

func (e *ReceiveError) Unwrap() error { return e.Cause }
