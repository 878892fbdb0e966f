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

// Command helper wires Role/Gateway/Mesh/DZKP together for a toy
// three-party sum-of-products circuit (SPEC_FULL.md §4.11), running all
// three helpers in one process over the memmesh reference transport.
// It exists to demonstrate end-to-end usage of the packages in this
// repository, not as a production helper binary (a real deployment
// would run one process per helper, wired with transport/quicmesh and a
// config file per SPEC_FULL.md §A5).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/katzenpost/ipa-mesh/buffers"
	"github.com/katzenpost/ipa-mesh/channel"
	"github.com/katzenpost/ipa-mesh/config"
	"github.com/katzenpost/ipa-mesh/dzkp"
	"github.com/katzenpost/ipa-mesh/field"
	"github.com/katzenpost/ipa-mesh/gate"
	"github.com/katzenpost/ipa-mesh/gateway"
	"github.com/katzenpost/ipa-mesh/logging"
	"github.com/katzenpost/ipa-mesh/mesh"
	"github.com/katzenpost/ipa-mesh/metrics"
	"github.com/katzenpost/ipa-mesh/record"
	"github.com/katzenpost/ipa-mesh/registry"
	"github.com/katzenpost/ipa-mesh/role"
	"github.com/katzenpost/ipa-mesh/transport/memmesh"
	"github.com/katzenpost/ipa-mesh/wire"
)

func main() {
	cfgPath := flag.String("config", "", "path to a helper TOML config (unset: use the demo defaults)")
	flag.Parse()

	cfg := config.Default("H1")
	if *cfgPath != "" {
		loaded, err := config.LoadFile(*cfgPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "helper: loading config:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := runLocalDemo(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "helper:", err)
		os.Exit(1)
	}
}

// demoGate is the single gate every helper in the demo opens; a real
// protocol narrows a tree of gates per circuit layer (package gate).
var demoGate = gate.Root().Narrow("demo").Narrow("mult")

// helperNode bundles one in-process helper's Role/Gateway/Mesh stack.
type helperNode struct {
	self role.Role
	mesh *mesh.Mesh
	gw   *gateway.Gateway
}

// runLocalDemo starts three in-process helpers connected by memmesh,
// has H1 compute a DZKP proof over one lambda-sized multiplication
// chunk, ships the proof's two additive shares to H2 and H3 over typed
// mesh channels, and has H1 fold the challenge locally, logging the
// resulting next-round chunk count.
func runLocalDemo(ctx context.Context, cfg config.Config) error {
	net := memmesh.NewMesh()
	nodes := make(map[role.Role]*helperNode, len(role.All))
	for _, r := range role.All {
		nodes[r] = newHelperNode(ctx, r, net, cfg)
	}
	for _, n := range nodes {
		n.gw.Start(ctx)
	}

	h1, h2, h3 := nodes[role.H1], nodes[role.H2], nodes[role.H3]

	lambda := cfg.Lambda
	uv := []dzkp.UVPair[field.Fp31]{sampleChunk(lambda)}
	pg := dzkp.New(field.Fp31Ops, lambda, uv)
	proof := pg.ComputeProof()

	left := make([]field.Fp31, len(proof))
	right := make([]field.Fp31, len(proof))
	for i, g := range proof {
		l := field.NewFp31(uint64(i) + 1) // stand-in for a PRSS-derived share
		left[i] = l
		right[i] = g.Sub(l)
	}

	if err := sendShares(ctx, h1, role.H2, demoGate.Narrow("left"), left); err != nil {
		return fmt.Errorf("sending proof_left to H2: %w", err)
	}
	if err := sendShares(ctx, h1, role.H3, demoGate.Narrow("right"), right); err != nil {
		return fmt.Errorf("sending proof_right to H3: %w", err)
	}

	gotLeft, err := recvShares(ctx, h2, role.H1, demoGate.Narrow("left"), len(proof))
	if err != nil {
		return fmt.Errorf("H2 receiving proof_left: %w", err)
	}
	gotRight, err := recvShares(ctx, h3, role.H1, demoGate.Narrow("right"), len(proof))
	if err != nil {
		return fmt.Errorf("H3 receiving proof_right: %w", err)
	}

	reconstructed := make([]field.Fp31, len(proof))
	for i := range reconstructed {
		reconstructed[i] = gotLeft[i].Add(gotRight[i])
	}
	verified := true
	for i := range reconstructed {
		if reconstructed[i] != proof[i] {
			verified = false
		}
	}

	_, next := pg.GenChallengeAndRecurse(left, right)

	fmt.Printf("proof verified=%v next_round_chunks=%d collapsed=%v\n", verified, len(next.UV()), next.Collapsed())

	for _, n := range nodes {
		n.gw.Halt()
	}
	for _, n := range nodes {
		n.gw.Wait()
	}
	return nil
}

func sampleChunk(lambda int) dzkp.UVPair[field.Fp31] {
	u := make([]field.Fp31, lambda)
	v := make([]field.Fp31, lambda)
	for i := range u {
		u[i] = field.NewFp31(uint64(i*3 + 1))
		v[i] = field.NewFp31(uint64(i*5 + 2))
	}
	return dzkp.UVPair[field.Fp31]{U: u, V: v}
}

// fp31Msg adapts field.Fp31 to encoding.BinaryMarshaler/Unmarshaler so it
// can travel as a one-byte mesh.SendingEnd/ReceivingEnd message.
type fp31Msg field.Fp31

func (m fp31Msg) MarshalBinary() ([]byte, error) {
	return []byte{byte(m)}, nil
}

func (m *fp31Msg) UnmarshalBinary(b []byte) error {
	if len(b) != 1 {
		return fmt.Errorf("fp31Msg: want 1 byte, got %d", len(b))
	}
	*m = fp31Msg(b[0])
	return nil
}

func sendShares(ctx context.Context, n *helperNode, peer role.Role, g gate.Gate, shares []field.Fp31) error {
	se := mesh.NewSendingEnd[fp31Msg](ctx, n.mesh, peer, g, 1, record.SpecifiedTotal(uint64(len(shares))))
	for i, s := range shares {
		if err := se.Send(ctx, record.ID(i), fp31Msg(s)); err != nil {
			return err
		}
	}
	return nil
}

func recvShares(ctx context.Context, n *helperNode, peer role.Role, g gate.Gate, count int) ([]field.Fp31, error) {
	re := mesh.NewReceivingEnd[fp31Msg, *fp31Msg](n.mesh, peer, g)
	out := make([]field.Fp31, count)
	for i := range out {
		v, err := re.Receive(ctx, record.ID(i))
		if err != nil {
			return nil, err
		}
		out[i] = field.Fp31(v)
	}
	return out, nil
}

func newHelperNode(ctx context.Context, self role.Role, net *memmesh.Mesh, cfg config.Config) *helperNode {
	sink := &fanSink{byPeer: make(map[role.Role]wire.Sink)}
	inbound := make(chan wire.InboundBatch, 64)
	for _, peer := range role.All {
		if peer == self {
			continue
		}
		s, _ := net.Connect(self.String(), peer.String())
		_, stream := net.Connect(peer.String(), self.String())
		sink.byPeer[peer] = s
		go pumpInto(ctx, peer, stream, inbound)
	}

	reg := registry.New()
	sendBuf := buffers.NewSendBuffer(cfg.ItemsInBatch)
	recvBuf := buffers.NewReceiveBuffer()
	m := metrics.New(prometheus.NewRegistry())
	logger := logging.New(nil, self.String())

	gw := gateway.New(self.String(), sendBuf, recvBuf, sink, &chanStream{in: inbound}, m, logger, cfg.BatchCount, gateway.WithHeartbeat(cfg.Heartbeat()))

	return &helperNode{
		self: self,
		mesh: mesh.New(self, reg, gw, recvBuf, m),
		gw:   gw,
	}
}

// fanSink routes an outbound frame to whichever peer link its channel
// names, since a single Gateway speaks to both of a helper's peers
// through one wire.Sink (spec.md §6).
type fanSink struct {
	byPeer map[role.Role]wire.Sink
}

func (f *fanSink) Send(ctx context.Context, id channel.ID, payload []byte) error {
	s, ok := f.byPeer[id.Peer]
	if !ok {
		return fmt.Errorf("fanSink: no link to peer %s", id.Peer)
	}
	return s.Send(ctx, id, payload)
}

// chanStream adapts a channel of already-decoded InboundBatch values
// (fed by pumpInto, one per peer link) into the single wire.Stream a
// Gateway expects.
type chanStream struct {
	in chan wire.InboundBatch
}

func (s *chanStream) Next(ctx context.Context) (wire.InboundBatch, bool, error) {
	select {
	case b, ok := <-s.in:
		return b, ok, nil
	case <-ctx.Done():
		return wire.InboundBatch{}, false, ctx.Err()
	}
}

// pumpInto drains one peer link's Stream into the helper's merged
// inbound channel until the link ends or ctx is cancelled. Each
// batch's channel names the receiving helper as its peer on the
// sender's side, so it is re-keyed to from, the helper it came from.
func pumpInto(ctx context.Context, from role.Role, stream wire.Stream, out chan<- wire.InboundBatch) {
	for {
		batch, ok, err := stream.Next(ctx)
		if err != nil || !ok {
			return
		}
		batch.Channel = channel.New(from, batch.Channel.Gate)
		select {
		case out <- batch:
		case <-ctx.Done():
			return
		}
	}
}
