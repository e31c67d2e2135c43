// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package piece

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockTiling(t *testing.T) {
	require := require.New(t)

	pieceSize := int64(BlockSize*2 + 100)
	require.Equal(3, NumBlocks(pieceSize))
	require.Equal(Block{Begin: 0, Length: BlockSize}, BlockAt(pieceSize, 0))
	require.Equal(Block{Begin: BlockSize, Length: BlockSize}, BlockAt(pieceSize, 1))
	require.Equal(Block{Begin: BlockSize * 2, Length: 100}, BlockAt(pieceSize, 2))
}

func TestBitfieldWireRoundTrip(t *testing.T) {
	require := require.New(t)

	bf := NewBitfield(10)
	bf.Set(0)
	bf.Set(3)
	bf.Set(9)

	wire := bf.ToWire()
	require.Len(wire, 2)

	decoded, err := FromWire(wire, 10)
	require.NoError(err)
	require.True(decoded.Has(0))
	require.True(decoded.Has(3))
	require.True(decoded.Has(9))
	require.False(decoded.Has(1))
	require.Equal(3, decoded.Count())
}

func TestBitfieldRejectsSpareBits(t *testing.T) {
	require := require.New(t)

	// n=3 needs 1 byte, only the top 3 bits may be set.
	_, err := FromWire([]byte{0x1F}, 3)
	require.Error(err)
}

func TestBitfieldRejectsWrongLength(t *testing.T) {
	require := require.New(t)

	_, err := FromWire([]byte{0x00, 0x00}, 3)
	require.Error(err)
}
