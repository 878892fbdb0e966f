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

package buffers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/ipa-mesh/channel"
	"github.com/katzenpost/ipa-mesh/gate"
	"github.com/katzenpost/ipa-mesh/record"
	"github.com/katzenpost/ipa-mesh/role"
	"github.com/katzenpost/ipa-mesh/wire"
)

func testChannel() channel.ID {
	return channel.New(role.H2, gate.Root().Narrow("mult"))
}

func TestSendBufferEmitsOnBatchFull(t *testing.T) {
	id := testChannel()
	sb := NewSendBuffer(2)

	_, ready := sb.Push(id, wire.MessageEnvelope{RecordID: 0, Payload: []byte{1}})
	require.False(t, ready, "batch not full yet")

	batch, ready := sb.Push(id, wire.MessageEnvelope{RecordID: 1, Payload: []byte{2}})
	require.True(t, ready)
	require.Len(t, batch, 2)
	require.Equal(t, uint64(0), batch[0].RecordID)
	require.Equal(t, uint64(1), batch[1].RecordID)
}

func TestSendBufferFlushPartial(t *testing.T) {
	id := testChannel()
	sb := NewSendBuffer(10)

	_, ready := sb.Push(id, wire.MessageEnvelope{RecordID: 0, Payload: []byte{1}})
	require.False(t, ready)

	batch, ready := sb.Flush(id)
	require.True(t, ready)
	require.Len(t, batch, 1)
}

func TestReceiveBufferSendBeforeReceive(t *testing.T) {
	rb := NewReceiveBuffer()
	id := testChannel()

	rb.Deliver(id, 5, []byte{9, 9})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	payload, err := rb.Request(ctx, id, 5)
	require.NoError(t, err)
	require.Equal(t, []byte{9, 9}, payload)
}

func TestReceiveBufferReceiveBeforeSend(t *testing.T) {
	rb := NewReceiveBuffer()
	id := testChannel()

	type result struct {
		payload []byte
		err     error
	}
	resCh := make(chan result, 1)
	go func() {
		p, err := rb.Request(context.Background(), id, 7)
		resCh <- result{p, err}
	}()

	time.Sleep(10 * time.Millisecond)
	rb.Deliver(id, 7, []byte{4, 2})

	res := <-resCh
	require.NoError(t, res.err)
	require.Equal(t, []byte{4, 2}, res.payload)
}

// TestDuplicateReceivePanics covers spec.md §8 S3: a second receive
// request for the same (channel, record) before the payload arrives
// panics with the exact wording the spec prescribes.
func TestDuplicateReceivePanics(t *testing.T) {
	rb := NewReceiveBuffer()
	id := testChannel()

	go func() {
		_, _ = rb.Request(context.Background(), id, 5)
	}()
	time.Sleep(10 * time.Millisecond)

	require.PanicsWithValue(t,
		"More than one request to receive a message for "+record.ID(5).String(),
		func() { _, _ = rb.Request(context.Background(), id, 5) },
	)
}

func TestDuplicatePayloadPanics(t *testing.T) {
	rb := NewReceiveBuffer()
	id := testChannel()

	rb.Deliver(id, 1, []byte{1})
	require.Panics(t, func() { rb.Deliver(id, 1, []byte{2}) })
}

func TestFailAbortsPendingRequest(t *testing.T) {
	rb := NewReceiveBuffer()
	id := testChannel()

	type result struct {
		payload []byte
		err     error
	}
	resCh := make(chan result, 1)
	go func() {
		p, err := rb.Request(context.Background(), id, 3)
		resCh <- result{p, err}
	}()
	time.Sleep(10 * time.Millisecond)

	cause := errors.New("transport closed")
	rb.Fail(id, cause)

	res := <-resCh
	require.Error(t, res.err)
}
