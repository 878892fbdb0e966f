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

package lagrange

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/ipa-mesh/field"
)

func fp(v uint64) field.Fp31 { return field.NewFp31(v) }

// TestExtrapolatesQuadratic checks that extrapolating y = x^2 sampled
// at the 4 canonical points reproduces x^2 at the extra points too.
func TestExtrapolatesQuadratic(t *testing.T) {
	lambda := 4
	denom := CanonicalLagrangeDenominator(field.Fp31Ops, lambda)
	table := NewExtrapolationTable(denom, lambda)

	ys := []field.Fp31{fp(0), fp(1), fp(4), fp(9)} // x^2 at x=0,1,2,3

	got := table.Eval(ys)
	require.Equal(t, []field.Fp31{fp(16), fp(25), fp(5)}, got) // x=4,5,6 -> 16,25,36 mod 31
}

func TestChallengeTableSinglePoint(t *testing.T) {
	lambda := 4
	denom := CanonicalLagrangeDenominator(field.Fp31Ops, lambda)
	ys := []field.Fp31{fp(0), fp(1), fp(4), fp(9)}

	table := NewChallengeTable(denom, lambda, fp(10))
	got := table.Eval(ys)
	require.Len(t, got, 1)
	require.Equal(t, fp(100%31), got[0]) // 10^2 = 100 = 7 mod 31
}

func TestEvalWrongLengthPanics(t *testing.T) {
	lambda := 4
	denom := CanonicalLagrangeDenominator(field.Fp31Ops, lambda)
	table := NewExtrapolationTable(denom, lambda)
	require.Panics(t, func() { table.Eval([]field.Fp31{fp(0), fp(1)}) })
}
