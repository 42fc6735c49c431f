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

// Package bitfield implements the dense, packed per-piece possession bitmap
// exchanged over the wire protocol: one bit per piece, most-significant bit
// first within each byte.
package bitfield

import (
	"fmt"

	"github.com/willf/bitset"
)

// Bitfield is a possession bitmap over num pieces, backed by willf/bitset.
type Bitfield struct {
	bits *bitset.BitSet
	num  uint
}

// New returns an empty Bitfield over numPieces pieces.
func New(numPieces int) *Bitfield {
	return &Bitfield{bits: bitset.New(uint(numPieces)), num: uint(numPieces)}
}

// FromBytes unpacks a wire-format bitfield (MSB-first within each byte) over
// numPieces pieces.
func FromBytes(b []byte, numPieces int) (*Bitfield, error) {
	expectedLen := (numPieces + 7) / 8
	if len(b) != expectedLen {
		return nil, fmt.Errorf("bitfield: expected %d bytes for %d pieces, got %d", expectedLen, numPieces, len(b))
	}
	bf := New(numPieces)
	for i := 0; i < numPieces; i++ {
		byteIdx := i / 8
		bitIdx := 7 - uint(i%8)
		if b[byteIdx]&(1<<bitIdx) != 0 {
			bf.bits.Set(uint(i))
		}
	}
	return bf, nil
}

// Bytes packs bf into wire format, MSB-first within each byte.
func (bf *Bitfield) Bytes() []byte {
	out := make([]byte, (bf.num+7)/8)
	for i := uint(0); i < bf.num; i++ {
		if bf.bits.Test(i) {
			out[i/8] |= 1 << (7 - i%8)
		}
	}
	return out
}

// Len returns the number of pieces this Bitfield tracks.
func (bf *Bitfield) Len() int {
	return int(bf.num)
}

// Set marks piece i as possessed.
func (bf *Bitfield) Set(i int) {
	bf.bits.Set(uint(i))
}

// Clear marks piece i as not possessed.
func (bf *Bitfield) Clear(i int) {
	bf.bits.Clear(uint(i))
}

// Test reports whether piece i is possessed.
func (bf *Bitfield) Test(i int) bool {
	return bf.bits.Test(uint(i))
}

// Count returns the number of possessed pieces.
func (bf *Bitfield) Count() int {
	return int(bf.bits.Count())
}

// CompletionRatio returns popcount/numPieces, or 0 if there are no pieces.
func (bf *Bitfield) CompletionRatio() float64 {
	if bf.num == 0 {
		return 0
	}
	return float64(bf.Count()) / float64(bf.num)
}

// Full reports whether every piece is possessed.
func (bf *Bitfield) Full() bool {
	return bf.num > 0 && bf.Count() == int(bf.num)
}

// PiecesToRequest returns the indices present in peer but absent from ours:
// peer \ ours, ordered by piece index.
func PiecesToRequest(ours, peer *Bitfield) []int {
	var out []int
	for i := 0; i < int(ours.num); i++ {
		if peer.Test(i) && !ours.Test(i) {
			out = append(out, i)
		}
	}
	return out
}

// HasAny reports whether ours lacks any piece that peer has -- used to
// decide whether to send INTERESTED.
func HasAny(ours, peer *Bitfield) bool {
	for i := 0; i < int(ours.num); i++ {
		if peer.Test(i) && !ours.Test(i) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of bf.
func (bf *Bitfield) Clone() *Bitfield {
	out := New(int(bf.num))
	for i := uint(0); i < bf.num; i++ {
		if bf.bits.Test(i) {
			out.bits.Set(i)
		}
	}
	return out
}
