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

// Package mesh implements C5, the typed SendingEnd/ReceivingEnd façade
// bound to one (peer, gate, message-type) triple (spec.md §4.5). The
// Gateway and Channel Registry below it are byte-level and untyped;
// this package is where generics recover static message typing
// without runtime dispatch, per spec.md §9 "Dynamic dispatch on
// message type".
package mesh

import (
	"context"
	"encoding"
	"strconv"

	"github.com/katzenpost/ipa-mesh/buffers"
	"github.com/katzenpost/ipa-mesh/channel"
	"github.com/katzenpost/ipa-mesh/gate"
	"github.com/katzenpost/ipa-mesh/gateway"
	"github.com/katzenpost/ipa-mesh/metrics"
	"github.com/katzenpost/ipa-mesh/mpcerr"
	"github.com/katzenpost/ipa-mesh/ordering"
	"github.com/katzenpost/ipa-mesh/record"
	"github.com/katzenpost/ipa-mesh/registry"
	"github.com/katzenpost/ipa-mesh/role"
)

// Mesh bundles the per-helper components a SendingEnd/ReceivingEnd
// needs: the Channel Registry (C2), the Gateway (C4, which owns the
// Send/Receive Buffers, C3), and the metrics family (spec.md §4.9). One
// Mesh is constructed per helper process and shared by every typed
// façade it hands out.
type Mesh struct {
	self     role.Role
	registry *registry.Registry
	gateway  *gateway.Gateway
	recv     *buffers.ReceiveBuffer
	metrics  *metrics.Metrics
}

// New constructs a Mesh for the given helper identity.
func New(self role.Role, reg *registry.Registry, gw *gateway.Gateway, recv *buffers.ReceiveBuffer, m *metrics.Metrics) *Mesh {
	return &Mesh{self: self, registry: reg, gateway: gw, recv: recv, metrics: m}
}

// SendingEnd is a typed façade over one outbound channel. M's
// serialized form must be exactly Size bytes; a shorter or longer
// encoding is a SerializationError.
type SendingEnd[M encoding.BinaryMarshaler] struct {
	mesh   *Mesh
	id     channel.ID
	size   int
	total  record.Total
	sender *ordering.Sender
}

// NewSendingEnd opens (or attaches to) the outbound channel to peer at
// gate g. size is M's fixed serialized length. On first creation for
// this channel, the underlying OrderingSender's stream is wired into
// the Gateway's outbound pump, per the Channel Registry's get_or_create
// contract (spec.md §4.2).
func NewSendingEnd[M encoding.BinaryMarshaler](ctx context.Context, m *Mesh, peer role.Role, g gate.Gate, size int, total record.Total) *SendingEnd[M] {
	id := channel.New(peer, g)
	sender, created := m.registry.GetOrCreate(id, size, total)
	if created {
		m.gateway.RegisterOutbound(id, sender, size)
	}
	return &SendingEnd[M]{mesh: m, id: id, size: size, total: total, sender: sender}
}

// Send implements spec.md §4.5: bounds-check against total, serialize
// into the ring, close the channel if this was the last record, and
// account the send in metrics after the ring commit.
func (s *SendingEnd[M]) Send(ctx context.Context, recordID record.ID, msg M) error {
	if s.total.IsSpecified() && uint64(recordID) >= s.total.Count() {
		return &mpcerr.TooManyRecords{Channel: s.id, RecordID: recordID, Total: s.total}
	}

	payload, err := msg.MarshalBinary()
	if err != nil {
		return &mpcerr.SerializationError{Channel: s.id, RecordID: recordID, Cause: err}
	}
	if len(payload) != s.size {
		return &mpcerr.SerializationError{Channel: s.id, RecordID: recordID, Cause: errSizeMismatch(len(payload), s.size)}
	}

	if err := s.sender.Send(ctx, uint64(recordID), payload); err != nil {
		return err
	}
	if s.total.IsLast(recordID) {
		s.sender.Close(uint64(recordID) + 1)
	}

	s.mesh.metrics.RecordSend(s.id.Gate.AsRef(), s.mesh.self.String(), s.size)
	return nil
}

// unmarshaler constrains the pointer-receiver type that actually
// implements encoding.BinaryUnmarshaler, since *T (not T) is almost
// always the receiver for Unmarshal methods in idiomatic Go.
type unmarshaler[T any] interface {
	*T
	encoding.BinaryUnmarshaler
}

// ReceivingEnd is a typed façade over one inbound channel.
type ReceivingEnd[T any, PT unmarshaler[T]] struct {
	mesh *Mesh
	id   channel.ID
}

// NewReceivingEnd attaches to the inbound channel from peer at gate g.
// Unlike SendingEnd, no registry entry is needed: the ReceiveBuffer is
// keyed directly by (channel, record) and populated by the Gateway's
// inbound path as frames arrive.
func NewReceivingEnd[T any, PT unmarshaler[T]](m *Mesh, peer role.Role, g gate.Gate) *ReceivingEnd[T, PT] {
	return &ReceivingEnd[T, PT]{mesh: m, id: channel.New(peer, g)}
}

// Receive blocks until record recordID's payload has arrived (or was
// already buffered), deserializing it into a fresh *T.
func (r *ReceivingEnd[T, PT]) Receive(ctx context.Context, recordID record.ID) (T, error) {
	var zero T
	payload, err := r.mesh.recv.Request(ctx, r.id, recordID)
	if err != nil {
		return zero, err
	}
	out := new(T)
	if err := PT(out).UnmarshalBinary(payload); err != nil {
		return zero, &mpcerr.SerializationError{Channel: r.id, RecordID: recordID, Cause: err}
	}
	return *out, nil
}

type sizeMismatchError struct {
	got, want int
}

func (e sizeMismatchError) Error() string {
	return "mesh: serialized message is " + strconv.Itoa(e.got) + " bytes, want " + strconv.Itoa(e.want)
}

func errSizeMismatch(got, want int) error {
	return sizeMismatchError{got: got, want: want}
}
