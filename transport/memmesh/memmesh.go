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

// Package memmesh is an in-process reference transport connecting two
// or three Gateways via buffered Go channels, for the test suite and
// cmd/helper's local demo mode (spec.md §4.10 [EXPANDED]). It mirrors
// the incoming/outgoing channel-pair shape of the teacher's
// sockatz/common.QUICProxyConn, minus the actual QUIC dialing — there
// is no network here, so a pair of buffered channels is the whole
// "connection".
package memmesh

import (
	"context"
	"sync"

	"github.com/katzenpost/ipa-mesh/channel"
	"github.com/katzenpost/ipa-mesh/wire"
)

type frame struct {
	id      channel.ID
	payload []byte
}

// link is one directed leg of an in-process connection: a Sink that
// writes frames and a Stream that reads the ones a peer's Sink wrote
// to the matching leg.
type link struct {
	out chan frame
}

// Mesh is a set of in-process links between named peers, keyed by
// (from, to) pair. It serves both two helpers talking directly and the
// three-way wiring of the full H1/H2/H3 demo circuit.
type Mesh struct {
	mu    sync.Mutex
	links map[[2]string]*link
}

// NewMesh constructs an empty Mesh; call Connect for every ordered
// pair of peer names that will exchange traffic.
func NewMesh() *Mesh {
	return &Mesh{links: make(map[[2]string]*link)}
}

// Connect registers the directed link from -> to, returning a Sink the
// "from" side's Gateway uses and a Stream the "to" side's Gateway uses.
// Call it once per direction (Connect(a,b) and Connect(b,a) for a
// bidirectional pair).
func (m *Mesh) Connect(from, to string) (wire.Sink, wire.Stream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{from, to}
	l, ok := m.links[key]
	if !ok {
		l = &link{out: make(chan frame, 256)}
		m.links[key] = l
	}
	return &sink{l: l}, &stream{l: l}
}

type sink struct{ l *link }

func (s *sink) Send(ctx context.Context, id channel.ID, payload []byte) error {
	select {
	case s.l.out <- frame{id: id, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type stream struct{ l *link }

func (s *stream) Next(ctx context.Context) (wire.InboundBatch, bool, error) {
	select {
	case f, ok := <-s.l.out:
		if !ok {
			return wire.InboundBatch{}, false, nil
		}
		msgs, err := wire.DecodeEnvelopes(f.payload)
		if err != nil {
			return wire.InboundBatch{}, false, err
		}
		return wire.InboundBatch{Channel: f.id, Messages: msgs}, true, nil
	case <-ctx.Done():
		return wire.InboundBatch{}, false, ctx.Err()
	}
}
