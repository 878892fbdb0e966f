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

package quicmesh

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/ipa-mesh/channel"
	"github.com/katzenpost/ipa-mesh/gate"
	"github.com/katzenpost/ipa-mesh/role"
)

func TestHeaderRoundTrip(t *testing.T) {
	id := channel.New(role.H2, gate.Root().Narrow("attribution").NarrowIndex("row", 3).Narrow("xor1"))

	var buf bytes.Buffer
	require.NoError(t, writeHeader(&buf, id))

	got, err := readHeader(&buf)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{1, 2, 3, 4, 5}
	require.NoError(t, writeFrame(&buf, payload))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFrameRoundTripEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, nil))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	// A length prefix claiming far more than maxFrameLen, with no
	// matching body: readFrame must reject before attempting the read.
	oversize := []byte{0xff, 0xff, 0xff, 0xff}
	buf.Write(oversize)

	_, err := readFrame(&buf)
	require.Error(t, err)
}
