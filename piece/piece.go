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

// Package piece defines the piece/block value types and the peer bitfield
// representation shared between the scheduler and peer sessions.
package piece

import "github.com/willf/bitset"

// BlockSize is the standard request granularity used against peers,
// independent of piece size.
const BlockSize = 16 * 1024

// Block identifies a byte range within a single piece.
type Block struct {
	Begin  int
	Length int
}

// NumBlocks returns how many BlockSize-sized requests (the last possibly
// shorter) are needed to cover a piece of the given size.
func NumBlocks(pieceSize int64) int {
	n := int(pieceSize / BlockSize)
	if pieceSize%BlockSize != 0 {
		n++
	}
	return n
}

// BlockAt returns the Block describing the i'th block of a piece with the
// given total size.
func BlockAt(pieceSize int64, i int) Block {
	begin := i * BlockSize
	length := BlockSize
	if remaining := int(pieceSize) - begin; remaining < length {
		length = remaining
	}
	return Block{Begin: begin, Length: length}
}

// Bitfield tracks which piece indices are held, backed by a willf/bitset.
type Bitfield struct {
	set *bitset.BitSet
	n   uint
}

// NewBitfield returns an empty Bitfield able to hold n pieces.
func NewBitfield(n int) *Bitfield {
	return &Bitfield{set: bitset.New(uint(n)), n: uint(n)}
}

// Has reports whether piece i is set.
func (b *Bitfield) Has(i int) bool {
	return b.set.Test(uint(i))
}

// Set marks piece i as held.
func (b *Bitfield) Set(i int) {
	b.set.Set(uint(i))
}

// Clear unmarks piece i.
func (b *Bitfield) Clear(i int) {
	b.set.Clear(uint(i))
}

// Len returns the number of pieces this bitfield can represent.
func (b *Bitfield) Len() int {
	return int(b.n)
}

// Count returns the number of set pieces.
func (b *Bitfield) Count() int {
	return int(b.set.Count())
}

// FromWire decodes the MSB-first packed bitfield payload of a BEP "bitfield"
// message, covering exactly n pieces. Spare trailing bits in the final byte
// must be zero.
func FromWire(payload []byte, n int) (*Bitfield, error) {
	expectedBytes := (n + 7) / 8
	if len(payload) != expectedBytes {
		return nil, &InvalidBitfieldError{Reason: "unexpected payload length"}
	}
	bf := NewBitfield(n)
	for i := 0; i < n; i++ {
		byteIdx := i / 8
		bitIdx := 7 - uint(i%8)
		if payload[byteIdx]&(1<<bitIdx) != 0 {
			bf.Set(i)
		}
	}
	if n%8 != 0 {
		last := payload[len(payload)-1]
		spareMask := byte(0xFF) >> uint(n%8)
		if last&spareMask != 0 {
			return nil, &InvalidBitfieldError{Reason: "spare bits set"}
		}
	}
	return bf, nil
}

// ToWire packs b into the MSB-first bitfield wire format.
func (b *Bitfield) ToWire() []byte {
	out := make([]byte, (b.n+7)/8)
	for i := uint(0); i < b.n; i++ {
		if b.set.Test(i) {
			out[i/8] |= 1 << (7 - i%8)
		}
	}
	return out
}

// InvalidBitfieldError reports a malformed bitfield message payload.
type InvalidBitfieldError struct {
	Reason string
}

func (e *InvalidBitfieldError) Error() string {
	return "invalid bitfield: " + e.Reason
}
