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

// Package dzkp implements C7, the Distributed Zero-Knowledge Proof
// generator: Boyle-Gilboa-Ishai-style batched-multiplication proofs with
// Fiat-Shamir challenge recursion (spec.md §4.7). Each round consumes a
// list of (u, v) lambda-tuples — the coefficients of two degree-(λ−1)
// polynomials per chunk — and produces a (2λ−1)-element proof plus,
// once the prover's and verifier's additive shares of that proof are
// combined, a smaller next-round (u, v) list.
package dzkp

import (
	"github.com/awnumar/memguard"

	"github.com/katzenpost/ipa-mesh/field"
	"github.com/katzenpost/ipa-mesh/lagrange"
)

// UVPair is one chunk of input to a proof round: the values of two
// degree-(λ−1) polynomials p, q at the λ canonical x-coordinates.
type UVPair[F field.Elt[F]] struct {
	U []F
	V []F
}

// State names the per-round lifecycle from spec.md §4.7.
type State int

const (
	// Collecting accepts ComputeProof but not yet GenChallengeAndRecurse.
	Collecting State = iota
	// ProofEmitted means ComputeProof has run; GenChallengeAndRecurse
	// may now be called with the transmitted proof's two shares.
	ProofEmitted
	// ChallengeIssued means the Fiat-Shamir challenge has been derived
	// and the next round's (u, v) list has been produced.
	ChallengeIssued
	// Collapsed means the next round's (u, v) list has exactly one
	// chunk: recursion terminates here.
	Collapsed
)

// ProofGenerator holds one round's (u, v) chunks plus the
// precomputed Lagrange machinery needed to extrapolate and to evaluate
// at a challenge point.
type ProofGenerator[F field.Elt[F]] struct {
	ops    field.Ops[F]
	lambda int
	uv     []UVPair[F]

	denom  *lagrange.Denominator[F]
	extrap *lagrange.Table[F] // K = lambda-1, canonical extrapolation points
	state  State
}

// New constructs a ProofGenerator for one round's uv chunks. Every
// UVPair.U and .V must have length exactly lambda; the caller
// zero-pads the final chunk itself (GenChallengeAndRecurse does this
// automatically when producing the next round).
func New[F field.Elt[F]](ops field.Ops[F], lambda int, uv []UVPair[F]) *ProofGenerator[F] {
	if lambda <= 0 {
		panic("dzkp: lambda must be positive")
	}
	for _, chunk := range uv {
		if len(chunk.U) != lambda || len(chunk.V) != lambda {
			panic("dzkp: every uv chunk must have length lambda")
		}
	}
	denom := lagrange.CanonicalLagrangeDenominator(ops, lambda)
	return &ProofGenerator[F]{
		ops:    ops,
		lambda: lambda,
		uv:     uv,
		denom:  denom,
		extrap: lagrange.NewExtrapolationTable(denom, lambda),
		state:  Collecting,
	}
}

// State reports the generator's current lifecycle state.
func (p *ProofGenerator[F]) State() State { return p.state }

// ComputeProof implements spec.md §4.7's compute_proof: a (2λ−1)-length
// proof G, accumulated pointwise for the canonical λ coordinates and via
// Lagrange extrapolation for the extra λ−1 coordinates.
func (p *ProofGenerator[F]) ComputeProof() []F {
	if p.state != Collecting {
		panic("dzkp: ComputeProof called outside the Collecting state")
	}
	lambda := p.lambda
	G := make([]F, 2*lambda-1)
	for i := range G {
		G[i] = p.ops.Zero
	}

	for _, chunk := range p.uv {
		for i := 0; i < lambda; i++ {
			G[i] = G[i].Add(chunk.U[i].Mul(chunk.V[i]))
		}
		P := p.extrap.Eval(chunk.U)
		Q := p.extrap.Eval(chunk.V)
		for i := 0; i < lambda-1; i++ {
			G[lambda+i] = G[lambda+i].Add(P[i].Mul(Q[i]))
		}
	}

	p.state = ProofEmitted
	return G
}

// GenChallengeAndRecurse implements spec.md §4.7's
// gen_challenge_and_recurse: derive r from the two additive shares of
// the transmitted proof, evaluate every (u, v) chunk at r, and repack
// the resulting values into the next round's lambda-tuples,
// zero-padding the final tuple if necessary.
func (p *ProofGenerator[F]) GenChallengeAndRecurse(proofLeft, proofRight []F) (r F, next *ProofGenerator[F]) {
	if p.state != ProofEmitted {
		panic("dzkp: GenChallengeAndRecurse called outside the ProofEmitted state")
	}

	// proofLeft is the PRSS-derived share only this prover and the
	// verifier that shares its PRSS seed ever see; lock it in guarded
	// memory for the brief window between receipt and its consumption
	// into the Fiat-Shamir hash, the same memguard.LockedBuffer
	// treatment the teacher applies to ratchet key material.
	leftBuf := memguard.NewBufferFromBytes(field.ConcatBytes(p.ops, proofLeft))
	defer leftBuf.Destroy()

	hashLeft := field.ComputeHashBytes(leftBuf.Bytes())
	hashRight := field.ComputeHash(p.ops, proofRight)
	r = field.HashToField(p.ops, hashLeft, hashRight, uint64(p.lambda))

	challengeTable := lagrange.NewChallengeTable(p.denom, p.lambda, r)

	n := len(p.uv)
	us := make([]F, n)
	vs := make([]F, n)
	for k, chunk := range p.uv {
		us[k] = challengeTable.Eval(chunk.U)[0]
		vs[k] = challengeTable.Eval(chunk.V)[0]
	}

	nextUV := repackChunks(p.ops, p.lambda, us, vs)
	next = New(p.ops, p.lambda, nextUV)

	// The round ends in Collapsed when the fold leaves a single chunk,
	// and in ChallengeIssued otherwise.
	if len(nextUV) == 1 {
		p.state = Collapsed
	} else {
		p.state = ChallengeIssued
	}
	return r, next
}

// repackChunks groups the folded (u', v') values into ceil(len(us)/lambda)
// fresh lambda-tuples, zero-padding the final tuple.
func repackChunks[F field.Elt[F]](ops field.Ops[F], lambda int, us, vs []F) []UVPair[F] {
	n := len(us)
	numChunks := (n + lambda - 1) / lambda
	out := make([]UVPair[F], numChunks)
	for c := 0; c < numChunks; c++ {
		u := make([]F, lambda)
		v := make([]F, lambda)
		for i := range u {
			u[i] = ops.Zero
			v[i] = ops.Zero
		}
		for i := 0; i < lambda; i++ {
			idx := c*lambda + i
			if idx >= n {
				break
			}
			u[i] = us[idx]
			v[i] = vs[idx]
		}
		out[c] = UVPair[F]{U: u, V: v}
	}
	return out
}

// Collapsed reports whether this generator's uv list has reduced to a
// single chunk, i.e. recursion should terminate here (spec.md §4.7
// "Recursion terminates when the state collapses to a single
// lambda-tuple").
func (p *ProofGenerator[F]) Collapsed() bool {
	return len(p.uv) == 1
}

// UV exposes the current round's (u, v) chunks, e.g. for a verifier
// reconstructing the next round independently.
func (p *ProofGenerator[F]) UV() []UVPair[F] {
	return p.uv
}
