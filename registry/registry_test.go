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

package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/ipa-mesh/channel"
	"github.com/katzenpost/ipa-mesh/gate"
	"github.com/katzenpost/ipa-mesh/record"
	"github.com/katzenpost/ipa-mesh/role"
)

func TestGetOrCreateHandoffOnce(t *testing.T) {
	r := New()
	id := channel.New(role.H2, gate.Root().Narrow("mult"))

	s1, created1 := r.GetOrCreate(id, 4, record.SpecifiedTotal(2))
	require.True(t, created1)
	require.NotNil(t, s1)

	s2, created2 := r.GetOrCreate(id, 4, record.SpecifiedTotal(2))
	require.False(t, created2)
	require.Same(t, s1, s2)

	require.Equal(t, 1, r.Len())
}

func TestGetOrCreateDisagreeingTotalPanics(t *testing.T) {
	r := New()
	id := channel.New(role.H3, gate.Root().Narrow("mult"))

	_, _ = r.GetOrCreate(id, 4, record.SpecifiedTotal(2))

	require.Panics(t, func() {
		r.GetOrCreate(id, 4, record.SpecifiedTotal(3))
	})
}

func TestLookupMissingChannel(t *testing.T) {
	r := New()
	_, ok := r.Lookup(channel.New(role.H1, gate.Root()))
	require.False(t, ok)
}

func TestDifferentChannelsIndependent(t *testing.T) {
	r := New()
	a := channel.New(role.H1, gate.Root().Narrow("a"))
	b := channel.New(role.H1, gate.Root().Narrow("b"))

	sa, _ := r.GetOrCreate(a, 4, record.SpecifiedTotal(1))
	sb, _ := r.GetOrCreate(b, 4, record.SpecifiedTotal(1))
	require.NotSame(t, sa, sb)
	require.Equal(t, 2, r.Len())
}
