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

// Package gate implements the protocol step/gate identifiers that label
// channels and metrics. Gate trees are known in full at build time in the
// original system (one enum variant per pipeline stage, some indexed);
// here they are represented as a flat, immutable path type built by
// repeated narrowing, since Go has no equivalent to the source language's
// compile-time step-tree derive macro.
package gate

import (
	"strconv"
	"strings"
)

// Gate is an immutable identifier for one node in the tree of protocol
// steps. The zero value is the root gate. Gate is a plain comparable
// string under the hood (not a []string) so that channel.ID, which
// embeds a Gate, can be used directly as a map key throughout the
// registry and buffers packages — a slice-backed path would make the
// containing struct non-comparable and break every map[channel.ID]...
// in this repository.
type Gate struct {
	// path holds the nul-delimited segments from the root to this
	// node, exclusive of the root itself. Empty means the root gate.
	path string
}

// Root returns the top-level gate with no segments.
func Root() Gate {
	return Gate{}
}

// Narrow returns the child gate reached by appending name to the current
// path. Gates are immutable: Narrow never mutates the receiver, so the
// same parent Gate can be narrowed many times to produce sibling gates.
func (g Gate) Narrow(name string) Gate {
	if g.path == "" {
		return Gate{path: name}
	}
	return Gate{path: g.path + "\x00" + name}
}

// NarrowIndex is a convenience for the common "indexed child step"
// pattern (e.g. per-row or per-bit steps), equivalent to
// Narrow(fmt.Sprintf("%s=%d", label, i)).
func (g Gate) NarrowIndex(label string, i int) Gate {
	return g.Narrow(label + "=" + strconv.Itoa(i))
}

// AsRef returns the slash-joined path, e.g. "ipa/attribution/row=3/xor1".
// This matches the original system's lexical concatenation of narrowed
// steps, used both for debug display and as the STEP metrics label.
func (g Gate) AsRef() string {
	return strings.ReplaceAll(g.path, "\x00", "/")
}

// String implements fmt.Stringer.
func (g Gate) String() string {
	if g.path == "" {
		return "<root>"
	}
	return g.AsRef()
}

// WireBytes returns the nul-delimited ASCII encoding used on the wire
// (e.g. "attribution\x00row\x003\x00xor1"), per the external interface
// contract in spec.md §6.
func (g Gate) WireBytes() []byte {
	return []byte(g.path)
}

// FromWireBytes parses the nul-delimited encoding back into a Gate.
func FromWireBytes(b []byte) Gate {
	return Gate{path: string(b)}
}

// Depth returns the number of segments from the root.
func (g Gate) Depth() int {
	if g.path == "" {
		return 0
	}
	return strings.Count(g.path, "\x00") + 1
}
