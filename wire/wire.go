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

// Package wire defines the external transport boundary from spec.md §6:
// the Sink/Stream capability pair the Gateway consumes, and the
// MessageEnvelope/frame types that cross it. Encoding uses
// fxamacker/cbor/v2 with a registered tag set, the same technique the
// teacher's server/cborplugin package uses for its own Request/Response
// wire types.
package wire

import (
	"context"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/katzenpost/ipa-mesh/channel"
)

// MessageEnvelope carries one record's serialized payload plus its
// record id, the unit the ReceiveBuffer keys on (spec.md §4.3).
type MessageEnvelope struct {
	RecordID uint64
	Payload  []byte
}

// Frame is what crosses the transport: the batch of bytes the
// OrderingSender's stream produced for one channel. The channel id
// travels alongside the raw bytes per spec.md §6 ("Sink accepting
// (ChannelId, Vec<u8>) frames").
type Frame struct {
	Channel channel.ID
	Bytes   []byte
}

// InboundBatch is what the Stream side produces: a channel id plus the
// envelopes that arrived for it. Unlike Frame, the inbound side is
// message-framed because the ReceiveBuffer dispatches per record id.
type InboundBatch struct {
	Channel  channel.ID
	Messages []MessageEnvelope
}

// Sink is the external transport's outbound capability: accepting
// (ChannelId, []byte) frames with async backpressure.
type Sink interface {
	Send(ctx context.Context, channel channel.ID, payload []byte) error
}

// Stream is the external transport's inbound capability: an iterator of
// (ChannelId, []MessageEnvelope) items, ending when the peer disconnects.
type Stream interface {
	// Next blocks until the next inbound batch is available, ctx is
	// cancelled, or the peer disconnects (ok == false).
	Next(ctx context.Context) (batch InboundBatch, ok bool, err error)
}

// wireTagSet registers the CBOR tags for the two wire envelope types, so
// a decoder presented with unexpected CBOR input fails loudly instead of
// silently misinterpreting bytes — the same defensive tagging the
// teacher's cborplugin package applies to its Request/Response types.
var wireTagSet = func() cbor.TagSet {
	ts := cbor.NewTagSet()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(ts.Add(cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired}, reflect.TypeOf(MessageEnvelope{}), 400601))
	must(ts.Add(cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired}, reflect.TypeOf(InboundBatch{}), 400602))
	return ts
}()

var (
	encMode, _ = cbor.EncOptions{}.EncModeWithTags(wireTagSet)
	decMode, _ = cbor.DecOptions{}.DecModeWithTags(wireTagSet)
)

// EncodeEnvelopes serializes a batch of envelopes for transmission over
// a Stream implementation that frames whole batches (e.g. transport/quicmesh).
func EncodeEnvelopes(msgs []MessageEnvelope) ([]byte, error) {
	return encMode.Marshal(msgs)
}

// DecodeEnvelopes is the inverse of EncodeEnvelopes.
func DecodeEnvelopes(b []byte) ([]MessageEnvelope, error) {
	var msgs []MessageEnvelope
	err := decMode.Unmarshal(b, &msgs)
	return msgs, err
}
