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

// Package buffers implements C3, the per-channel staging areas between
// the typed SendingEnd/Mesh layer and the Gateway event loop: the
// SendBuffer groups outbound envelopes into batches, and the
// ReceiveBuffer reconciles inbound payloads with receive requests that
// may arrive in either order (spec.md §4.3).
package buffers

import (
	"github.com/katzenpost/ipa-mesh/channel"
	"github.com/katzenpost/ipa-mesh/wire"
)

// channelSendState is one channel's outbound staging: the batch still
// being filled.
type channelSendState struct {
	current []wire.MessageEnvelope
}

// SendBuffer groups per-channel pending envelopes into batches of
// itemsInBatch, handing each completed batch straight back to its
// caller rather than queueing it internally. SendBuffer carries no
// mutex and is deliberately NOT safe for concurrent use: spec.md §5
// states that "all Gateway mutation (buffer updates, channel creation
// in the transport path) is funnelled through the event-loop task by
// message passing, so no cross-thread locking is needed inside C3/C4"
// — the Gateway's single event-loop goroutine is SendBuffer's only
// caller, so there is nothing left to lock.
type SendBuffer struct {
	itemsInBatch int
	state        map[channel.ID]*channelSendState
}

// NewSendBuffer constructs a SendBuffer that completes a batch every
// itemsInBatch envelopes pushed for a given channel.
func NewSendBuffer(itemsInBatch int) *SendBuffer {
	if itemsInBatch <= 0 {
		panic("buffers: itemsInBatch must be positive")
	}
	return &SendBuffer{itemsInBatch: itemsInBatch, state: make(map[channel.ID]*channelSendState)}
}

func (b *SendBuffer) stateFor(id channel.ID) *channelSendState {
	cs, ok := b.state[id]
	if !ok {
		cs = &channelSendState{}
		b.state[id] = cs
	}
	return cs
}

// Push appends env to id's in-progress batch, returning the completed
// batch (ready==true) once itemsInBatch envelopes have accumulated.
func (b *SendBuffer) Push(id channel.ID, env wire.MessageEnvelope) (batch []wire.MessageEnvelope, ready bool) {
	cs := b.stateFor(id)
	cs.current = append(cs.current, env)
	if len(cs.current) < b.itemsInBatch {
		return nil, false
	}
	batch, cs.current = cs.current, nil
	return batch, true
}

// Flush forces out any partially-filled batch for id, used when a
// channel closes with a non-empty remainder.
func (b *SendBuffer) Flush(id channel.ID) (batch []wire.MessageEnvelope, ready bool) {
	cs := b.stateFor(id)
	if len(cs.current) == 0 {
		return nil, false
	}
	batch, cs.current = cs.current, nil
	return batch, true
}
