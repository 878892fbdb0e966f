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

package field

// Fp31 is the reference prime field GF(31) used by spec.md's published
// DZKP test vectors (§8 S4). It exists to make the dzkp and lagrange
// packages runnable and testable against a concrete field; it is not
// intended as a general-purpose field implementation.
type Fp31 uint8

const fp31Modulus = 31

// NewFp31 reduces v modulo 31.
func NewFp31(v uint64) Fp31 {
	return Fp31(v % fp31Modulus)
}

// Add implements Elt[Fp31].
func (f Fp31) Add(other Fp31) Fp31 {
	return Fp31((uint16(f) + uint16(other)) % fp31Modulus)
}

// Sub implements Elt[Fp31], with wraparound for negative results.
func (f Fp31) Sub(other Fp31) Fp31 {
	return Fp31((uint16(f) + fp31Modulus - uint16(other)) % fp31Modulus)
}

// Mul implements Elt[Fp31].
func (f Fp31) Mul(other Fp31) Fp31 {
	return Fp31((uint16(f) * uint16(other)) % fp31Modulus)
}

// Invert returns f's multiplicative inverse mod 31 via Fermat's little
// theorem (f^29 == f^-1, since the multiplicative group has order 30).
// Panics on zero, matching the field library's own partiality contract:
// the Lagrange machinery never inverts a canonical Lagrange denominator
// of zero because the canonical x-coordinates 0..λ-1 are distinct.
func (f Fp31) Invert() Fp31 {
	if f == 0 {
		panic("field: Fp31 has no inverse of zero")
	}
	result := Fp31(1)
	base := f
	exp := uint(fp31Modulus - 2)
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(base)
		}
		base = base.Mul(base)
		exp >>= 1
	}
	return result
}

// AsU128 returns the element's canonical representative as a uint64 (the
// field's values never exceed 30, so u128 from the original system is
// overkill in Go; callers compare against test vectors expressed as
// plain integers).
func (f Fp31) AsU128() uint64 {
	return uint64(f)
}

// Fp31Ops is the Ops bundle for Fp31, passed to lagrange/dzkp generic
// functions.
var Fp31Ops = Ops[Fp31]{
	Zero:     Fp31(0),
	One:      Fp31(1),
	FromU128: func(v uint64) Fp31 { return NewFp31(v) },
	Bytes: func(f Fp31) []byte {
		return []byte{byte(f)}
	},
	Invert: func(f Fp31) Fp31 { return f.Invert() },
}
