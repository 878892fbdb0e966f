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

// Package channel defines ChannelId, the (peer role, gate) pair that
// uniquely identifies one logical FIFO between this helper and one peer
// at one protocol step.
package channel

import (
	"github.com/katzenpost/ipa-mesh/gate"
	"github.com/katzenpost/ipa-mesh/role"
)

// ID uniquely identifies one channel: a peer and the gate (protocol step)
// at which messages flow to or from that peer. It is used as a map key
// throughout the registry and buffers, so it must remain comparable.
type ID struct {
	Peer role.Role
	Gate gate.Gate
}

// New constructs a ChannelId.
func New(peer role.Role, g gate.Gate) ID {
	return ID{Peer: peer, Gate: g}
}

// String implements fmt.Stringer for log lines and panic messages.
func (c ID) String() string {
	return c.Peer.String() + "/" + c.Gate.AsRef()
}
