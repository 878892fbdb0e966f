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

// Package field describes the PrimeField boundary the DZKP engine is
// built against (spec.md §6 "Field library" — an external collaborator)
// and ships one small concrete field, Fp31, so the proof engine is
// runnable and its published test vectors (spec.md §8 S4) can be
// exercised without pulling in a general-purpose finite-field library
// that isn't present anywhere in the example corpus. Fp31 is a
// reference/test implementation, not production field arithmetic.
package field

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Elt is the self-referential interface every concrete field element
// type implements: arithmetic methods take and return the same concrete
// type F, so generic code over [F Elt[F]] gets unboxed arithmetic
// instead of paying interface-dispatch cost per multiply — the DZKP
// prover's inner loop runs one multiply per (i, chunk).
type Elt[F any] interface {
	Add(F) F
	Sub(F) F
	Mul(F) F
}

// Ops bundles the free functions a PrimeField needs beyond arithmetic:
// the additive/multiplicative identities, conversion from a small
// integer, and canonical byte encoding. Go has no way to require a
// type parameter to expose "static" constructors, so callers pass these
// explicitly (mirroring how the original system threads F::ZERO /
// F::try_from through trait bounds).
type Ops[F Elt[F]] struct {
	Zero     F
	One      F
	FromU128 func(uint64) F
	Bytes    func(F) []byte
	// Invert returns the multiplicative inverse of a nonzero element.
	// Only the Lagrange/DZKP machinery (package lagrange) needs
	// division, to turn a Lagrange-basis denominator into a weight.
	Invert func(F) F
}

// ConcatBytes concatenates the canonical byte encoding of every element
// in xs, the layout dzkp.GenChallengeAndRecurse locks into guarded
// memory before hashing the left proof share.
func ConcatBytes[F Elt[F]](ops Ops[F], xs []F) []byte {
	var buf []byte
	for _, x := range xs {
		buf = append(buf, ops.Bytes(x)...)
	}
	return buf
}

// ComputeHashBytes hashes an already-concatenated byte encoding, the
// form ConcatBytes produces.
func ComputeHashBytes(b []byte) []byte {
	h, _ := blake2b.New256(nil)
	h.Write(b)
	return h.Sum(nil)
}

// ComputeHash hashes a slice of field elements into a digest, used as one
// half of the Fiat-Shamir challenge derivation in
// dzkp.GenChallengeAndRecurse.
func ComputeHash[F Elt[F]](ops Ops[F], xs []F) []byte {
	return ComputeHashBytes(ConcatBytes(ops, xs))
}

// HashToField derives a challenge field element from two digests and a
// domain-separation tag (here, the chunk size lambda), mirroring
// hash_to_field(seed1, seed2, domain_tag) from spec.md §6.
func HashToField[F Elt[F]](ops Ops[F], seed1, seed2 []byte, domainTag uint64) F {
	h, _ := blake2b.New256(nil)
	h.Write(seed1)
	h.Write(seed2)
	var tagBuf [8]byte
	binary.BigEndian.PutUint64(tagBuf[:], domainTag)
	h.Write(tagBuf[:])
	digest := h.Sum(nil)

	// Fold the digest into a single uint64 accumulator and let
	// FromU128 perform the field's own reduction; this keeps
	// HashToField generic over any prime field whose modulus fits
	// below 2^64, which covers every concrete field this repository
	// tests against.
	var acc uint64
	for i := 0; i < len(digest); i += 8 {
		end := i + 8
		if end > len(digest) {
			end = len(digest)
		}
		var chunk [8]byte
		copy(chunk[:], digest[i:end])
		acc ^= binary.BigEndian.Uint64(chunk[:])
	}
	return ops.FromU128(acc)
}
