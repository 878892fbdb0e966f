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

// Package gateway implements C4, the single cooperative event loop per
// helper that multiplexes channel registration, outbound readiness,
// inbound transport frames, and heartbeat stall detection (spec.md
// §4.4).
//
// Per spec.md §4.4/§9, the Gateway is "a single long-running
// cooperative task per helper" — a thread pool here "would lose the
// simple single-mutator invariant inside the buffers." RegisterOutbound
// and an OrderingSender's onReady notification both just enqueue onto
// unbounded eapache/channels.v1 InfiniteChannels (register and
// outboundReady); the one mainLoop goroutine is the sole reader of
// both, and the sole mutator of both the SendBuffer (C3) and the
// outbound registration map. That is what lets SendBuffer carry no
// mutex at all (spec.md §5: "no cross-thread locking is needed inside
// C3/C4").
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/eapache/channels.v1"

	"github.com/katzenpost/ipa-mesh/buffers"
	"github.com/katzenpost/ipa-mesh/channel"
	"github.com/katzenpost/ipa-mesh/internal/worker"
	"github.com/katzenpost/ipa-mesh/metrics"
	"github.com/katzenpost/ipa-mesh/ordering"
	"github.com/katzenpost/ipa-mesh/record"
	"github.com/katzenpost/ipa-mesh/wire"
)

// defaultHeartbeat is the 10-second inactivity timer from spec.md §5.
const defaultHeartbeat = 10 * time.Second

// outboundReg is one channel's registration, handed from an arbitrary
// protocol-code goroutine (via RegisterOutbound) to the event loop.
type outboundReg struct {
	id     channel.ID
	sender *ordering.Sender
	size   int
}

// outboundState is one registered channel's outbound drain cursor.
// Owned exclusively by the event-loop goroutine; never touched from
// any other goroutine.
type outboundState struct {
	sender *ordering.Sender
	size   int
	offset uint64
	done   bool
}

// Gateway owns the transport capabilities for one helper process and
// drives the select loop from spec.md §4.4. Construct one per helper
// and embed it for the lifetime of the process; Halt/Wait via the
// embedded worker.Worker to tear it down.
type Gateway struct {
	worker.Worker

	roleLabel string
	send      *buffers.SendBuffer
	recv      *buffers.ReceiveBuffer
	sink      wire.Sink
	stream    wire.Stream
	metrics   *metrics.Metrics
	log       *log.Logger
	heartbeat time.Duration
	batchCount int

	// register and outboundReady are the only way anything outside the
	// event-loop goroutine touches outbound state: both are unbounded
	// multi-producer/single-consumer queues, drained solely by mainLoop.
	register      *channels.InfiniteChannel // outboundReg values
	outboundReady *channels.InfiniteChannel // channel.ID values

	outbound map[channel.ID]*outboundState
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithHeartbeat overrides the default 10s stall-diagnostic interval.
func WithHeartbeat(d time.Duration) Option {
	return func(g *Gateway) { g.heartbeat = d }
}

// New constructs a Gateway. Call Start to begin the event loop, and
// RegisterOutbound for every channel the Channel Registry creates.
func New(roleLabel string, send *buffers.SendBuffer, recv *buffers.ReceiveBuffer, sink wire.Sink, stream wire.Stream, m *metrics.Metrics, logger *log.Logger, batchCount int, opts ...Option) *Gateway {
	g := &Gateway{
		roleLabel:     roleLabel,
		send:          send,
		recv:          recv,
		sink:          sink,
		stream:        stream,
		metrics:       m,
		log:           logger,
		heartbeat:     defaultHeartbeat,
		batchCount:    batchCount,
		register:      channels.NewInfiniteChannel(),
		outboundReady: channels.NewInfiniteChannel(),
		outbound:      make(map[channel.ID]*outboundState),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start begins the inbound stream drain and the event loop as
// worker.Worker-managed goroutines. A small watcher goroutine derives
// loopCtx from ctx so that Halt() reliably unblocks readLoop's
// stream.Next even when ctx itself has no independent cancellation
// (e.g. callers passing context.Background()): "dropping the Gateway
// aborts the event-loop task" per spec.md §5 must hold regardless of
// what the caller's ctx does.
func (g *Gateway) Start(ctx context.Context) {
	loopCtx, cancelLoop := context.WithCancel(ctx)

	g.Go(func() {
		defer cancelLoop()
		select {
		case <-g.HaltCh():
		case <-ctx.Done():
		}
	})

	inbound := make(chan wire.InboundBatch, 64)
	inboundErrs := make(chan error, 1)

	g.Go(func() { g.readLoop(loopCtx, inbound, inboundErrs) })
	g.Go(func() { g.mainLoop(loopCtx, inbound, inboundErrs) })
}

// RegisterOutbound wires a newly-created channel's OrderingSender into
// the Gateway's outbound path. It never blocks and never touches
// Gateway-owned state directly: it arms the sender's onReady
// notification and enqueues a registration record for the event loop
// to pick up on its next iteration. The Channel Registry's
// GetOrCreate caller (the Mesh layer) calls this exactly once per
// channel, on the created branch.
func (g *Gateway) RegisterOutbound(id channel.ID, sender *ordering.Sender, size int) {
	sender.SetOnReady(func() { g.outboundReady.In() <- id })
	g.register.In() <- outboundReg{id: id, sender: sender, size: size}
}

// drainOutbound pulls any newly-contiguous bytes for id out of its
// OrderingSender and stages them through the SendBuffer, flushing
// completed batches straight to the Sink. Called only from mainLoop,
// so this is the single mutator of both g.outbound and g.send.
func (g *Gateway) drainOutbound(ctx context.Context, id channel.ID) {
	st, ok := g.outbound[id]
	if !ok || st.done {
		return
	}
	data, has, done := st.sender.TryTakeNext()
	if has {
		for o := 0; o+st.size <= len(data); o += st.size {
			recID := (st.offset + uint64(o)) / uint64(st.size)
			env := wire.MessageEnvelope{RecordID: recID, Payload: data[o : o+st.size]}
			if batch, ready := g.send.Push(id, env); ready {
				g.flushBatch(ctx, id, batch)
			}
		}
		st.offset += uint64(len(data))
		return
	}
	if done {
		if batch, ready := g.send.Flush(id); ready {
			g.flushBatch(ctx, id, batch)
		}
		st.done = true
	}
}

func (g *Gateway) flushBatch(ctx context.Context, id channel.ID, batch []wire.MessageEnvelope) {
	encoded, err := wire.EncodeEnvelopes(batch)
	if err != nil {
		g.log.Error("envelope encode failed", "channel", id.String(), "err", err)
		return
	}
	if err := g.sink.Send(ctx, id, encoded); err != nil {
		g.log.Error("sink send failed", "channel", id.String(), "err", err)
		panic(err)
	}
}

// readLoop is the dedicated goroutine draining the transport Stream;
// it exists because wire.Stream.Next is a blocking call and Go has no
// way to select on an arbitrary blocking method, unlike Rust's
// poll-based Stream trait. ctx here is Start's loopCtx, which Halt()
// always cancels, so this never outlives the Gateway.
func (g *Gateway) readLoop(ctx context.Context, out chan<- wire.InboundBatch, errs chan<- error) {
	for {
		batch, ok, err := g.stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Shutdown, not a transport failure: don't panic the loop.
				return
			}
			select {
			case errs <- err:
			default:
			}
			return
		}
		if !ok {
			return
		}
		select {
		case out <- batch:
		case <-ctx.Done():
			return
		}
	}
}

// mainLoop is the Gateway's single cooperative task, racing every
// source of Gateway mutation in one select: new channel registrations,
// outbound readiness notifications, inbound frames, the heartbeat
// timer, and shutdown. Nothing outside this goroutine ever mutates
// g.outbound or calls into g.send. Go's select is already non-biased
// among ready cases, so no fairness bookkeeping is needed beyond
// resetting the ticker each iteration. When the loop ends, every
// receive request still pending is failed with a ReceiveError.
func (g *Gateway) mainLoop(ctx context.Context, inbound <-chan wire.InboundBatch, inboundErrs <-chan error) {
	ticker := time.NewTicker(g.heartbeat)
	defer ticker.Stop()

	defer func() {
		for _, s := range g.recv.Stalled(0) {
			g.recv.Fail(s.Channel, errors.New("gateway: event loop stopped"))
		}
	}()

	for {
		select {
		case v := <-g.register.Out():
			reg := v.(outboundReg)
			g.outbound[reg.id] = &outboundState{sender: reg.sender, size: reg.size}
			g.drainOutbound(ctx, reg.id)

		case v := <-g.outboundReady.Out():
			g.drainOutbound(ctx, v.(channel.ID))

		case batch, ok := <-inbound:
			if !ok {
				return
			}
			for _, msg := range batch.Messages {
				g.recv.Deliver(batch.Channel, record.ID(msg.RecordID), msg.Payload)
			}

		case err := <-inboundErrs:
			g.log.Error("transport stream failed", "err", err)
			panic(err)

		case <-ticker.C:
			g.logStalls()

		case <-ctx.Done():
			return
		}
		ticker.Reset(g.heartbeat)
	}
}

func (g *Gateway) logStalls() {
	for _, s := range g.recv.Stalled(g.heartbeat) {
		g.metrics.StallCount.WithLabelValues(g.roleLabel).Inc()
		g.log.Warn("receive stalled",
			"channel", s.Channel.String(),
			"record", s.Record.String(),
			"since", s.Since,
		)
	}
	if g.batchCount > 0 {
		if n := g.outboundReady.Len(); n > g.batchCount {
			g.log.Warn("outbound readiness backlog exceeds batch_count",
				"backlog", n, "batch_count", g.batchCount)
		}
	}
}
