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

package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/katzenpost/ipa-mesh/buffers"
	"github.com/katzenpost/ipa-mesh/channel"
	"github.com/katzenpost/ipa-mesh/gate"
	"github.com/katzenpost/ipa-mesh/logging"
	"github.com/katzenpost/ipa-mesh/metrics"
	"github.com/katzenpost/ipa-mesh/ordering"
	"github.com/katzenpost/ipa-mesh/record"
	"github.com/katzenpost/ipa-mesh/role"
	"github.com/katzenpost/ipa-mesh/wire"
)

type fakeSink struct {
	mu     sync.Mutex
	frames map[channel.ID][][]byte
}

func newFakeSink() *fakeSink {
	return &fakeSink{frames: make(map[channel.ID][][]byte)}
}

func (s *fakeSink) Send(_ context.Context, id channel.ID, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[id] = append(s.frames[id], payload)
	return nil
}

func (s *fakeSink) envelopes(id channel.ID) []wire.MessageEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []wire.MessageEnvelope
	for _, f := range s.frames[id] {
		msgs, err := wire.DecodeEnvelopes(f)
		if err != nil {
			panic(err)
		}
		out = append(out, msgs...)
	}
	return out
}

type emptyStream struct{ blockCh chan struct{} }

func (s *emptyStream) Next(ctx context.Context) (wire.InboundBatch, bool, error) {
	select {
	case <-s.blockCh:
		return wire.InboundBatch{}, false, nil
	case <-ctx.Done():
		return wire.InboundBatch{}, false, ctx.Err()
	}
}

func newGatewayForTest(t *testing.T, sink *fakeSink) (*Gateway, context.Context, context.CancelFunc) {
	t.Helper()
	sendBuf := buffers.NewSendBuffer(2)
	recvBuf := buffers.NewReceiveBuffer()
	m := metrics.New(prometheus.NewRegistry())
	logger := logging.New(nil, "gw-test")

	g := New("H1", sendBuf, recvBuf, sink, &emptyStream{blockCh: make(chan struct{})}, m, logger, 2, WithHeartbeat(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	g.Start(ctx)
	return g, ctx, cancel
}

func TestRegisterOutboundDeliversInOrder(t *testing.T) {
	sink := newFakeSink()
	g, ctx, cancel := newGatewayForTest(t, sink)
	defer func() {
		cancel()
		g.Halt()
		g.Wait()
	}()

	id := channel.New(role.H2, gate.Root().Narrow("mult"))
	sender := ordering.NewSpecified(4, 2)
	g.RegisterOutbound(id, sender, 4)

	require.NoError(t, sender.Send(ctx, 1, []byte{0, 0, 0, 1}))
	require.NoError(t, sender.Send(ctx, 0, []byte{0, 0, 0, 0}))
	sender.Close(2)

	require.Eventually(t, func() bool {
		return len(sink.envelopes(id)) == 2
	}, time.Second, 5*time.Millisecond)

	msgs := sink.envelopes(id)
	require.Equal(t, uint64(0), msgs[0].RecordID)
	require.Equal(t, []byte{0, 0, 0, 0}, msgs[0].Payload)
	require.Equal(t, uint64(1), msgs[1].RecordID)
	require.Equal(t, []byte{0, 0, 0, 1}, msgs[1].Payload)
}

func TestInboundDeliversToReceiveBuffer(t *testing.T) {
	sink := newFakeSink()
	sendBuf := buffers.NewSendBuffer(2)
	recvBuf := buffers.NewReceiveBuffer()
	m := metrics.New(prometheus.NewRegistry())
	logger := logging.New(nil, "gw-test")

	id := channel.New(role.H3, gate.Root().Narrow("share"))
	batchCh := make(chan wire.InboundBatch, 1)
	stream := &chanStream{in: batchCh}

	g := New("H2", sendBuf, recvBuf, sink, stream, m, logger, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		g.Halt()
		g.Wait()
	}()
	g.Start(ctx)

	batchCh <- wire.InboundBatch{
		Channel:  id,
		Messages: []wire.MessageEnvelope{{RecordID: 3, Payload: []byte{7, 7}}},
	}

	reqCtx, reqCancel := context.WithTimeout(context.Background(), time.Second)
	defer reqCancel()
	payload, err := recvBuf.Request(reqCtx, id, record.ID(3))
	require.NoError(t, err)
	require.Equal(t, []byte{7, 7}, payload)
}

type chanStream struct{ in chan wire.InboundBatch }

func (s *chanStream) Next(ctx context.Context) (wire.InboundBatch, bool, error) {
	select {
	case b := <-s.in:
		return b, true, nil
	case <-ctx.Done():
		return wire.InboundBatch{}, false, ctx.Err()
	}
}
