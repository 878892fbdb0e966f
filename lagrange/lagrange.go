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

// Package lagrange implements C6: canonical Lagrange denominators and
// evaluation tables over a prime field, used by the DZKP prover to
// extrapolate and to evaluate at a Fiat-Shamir challenge (spec.md
// §4.6).
package lagrange

import "github.com/katzenpost/ipa-mesh/field"

// Denominator holds, for canonical x-coordinates x_i = i, i in [0,
// lambda), the precomputed inverse of prod_{j != i} (x_i - x_j) — the
// reciprocal that turns a Lagrange basis polynomial's numerator into a
// weight. Computing the inverse once at construction, rather than per
// table, is what makes building many LagrangeTables at different output
// points cheap.
type Denominator[F field.Elt[F]] struct {
	ops field.Ops[F]
	inv []F
}

// CanonicalLagrangeDenominator computes the Denominator for lambda
// canonical points x_i = i.
func CanonicalLagrangeDenominator[F field.Elt[F]](ops field.Ops[F], lambda int) *Denominator[F] {
	if lambda <= 0 {
		panic("lagrange: lambda must be positive")
	}
	xs := canonicalPoints(ops, lambda)
	inv := make([]F, lambda)
	for i := 0; i < lambda; i++ {
		prod := ops.One
		for j := 0; j < lambda; j++ {
			if j == i {
				continue
			}
			prod = prod.Mul(xs[i].Sub(xs[j]))
		}
		inv[i] = ops.Invert(prod)
	}
	return &Denominator[F]{ops: ops, inv: inv}
}

func canonicalPoints[F field.Elt[F]](ops field.Ops[F], n int) []F {
	xs := make([]F, n)
	for i := 0; i < n; i++ {
		xs[i] = ops.FromU128(uint64(i))
	}
	return xs
}

// Table holds, for each of K output x-coordinates, the lambda
// barycentric weights needed to evaluate a lambda-point polynomial
// (given by its values at the canonical points) at that output.
// Eval runs in O(lambda*K) field multiplies.
type Table[F field.Elt[F]] struct {
	ops     field.Ops[F]
	lambda  int
	weights [][]F // weights[k][i], k in [0,K), i in [0,lambda)
}

// NewTableAtPoints builds a Table evaluating at the given explicit
// output x-coordinates; used both for the canonical K=lambda-1
// extrapolation table (spec.md §4.6) and for the K=1 challenge-point
// table, whose sole point is the Fiat-Shamir challenge r.
func NewTableAtPoints[F field.Elt[F]](denom *Denominator[F], lambda int, points []F) *Table[F] {
	ops := denom.ops
	xs := canonicalPoints(ops, lambda)
	weights := make([][]F, len(points))
	for k, p := range points {
		row := make([]F, lambda)
		for i := 0; i < lambda; i++ {
			numer := ops.One
			for j := 0; j < lambda; j++ {
				if j == i {
					continue
				}
				numer = numer.Mul(p.Sub(xs[j]))
			}
			row[i] = numer.Mul(denom.inv[i])
		}
		weights[k] = row
	}
	return &Table[F]{ops: ops, lambda: lambda, weights: weights}
}

// NewExtrapolationTable builds the canonical K=lambda-1 table that
// extends a lambda-point polynomial to the extra evaluation points
// x = lambda, lambda+1, ..., 2*lambda-2.
func NewExtrapolationTable[F field.Elt[F]](denom *Denominator[F], lambda int) *Table[F] {
	ops := denom.ops
	extra := make([]F, lambda-1)
	for k := 0; k < lambda-1; k++ {
		extra[k] = ops.FromU128(uint64(lambda + k))
	}
	return NewTableAtPoints(denom, lambda, extra)
}

// NewChallengeTable builds the K=1 table evaluating at the Fiat-Shamir
// challenge r.
func NewChallengeTable[F field.Elt[F]](denom *Denominator[F], lambda int, r F) *Table[F] {
	return NewTableAtPoints(denom, lambda, []F{r})
}

// Eval evaluates the polynomial given by its values ys at the canonical
// points, at each of the table's K output points.
func (t *Table[F]) Eval(ys []F) []F {
	if len(ys) != t.lambda {
		panic("lagrange: Eval requires exactly lambda input values")
	}
	out := make([]F, len(t.weights))
	for k, row := range t.weights {
		sum := t.ops.Zero
		for i, w := range row {
			sum = sum.Add(w.Mul(ys[i]))
		}
		out[k] = sum
	}
	return out
}
