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

// Package core defines the identifiers shared across the torrent engine:
// info hashes and peer ids.
package core

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// InfoHashLen is the length in bytes of an InfoHash.
const InfoHashLen = 20

// InfoHash is the 20-byte SHA1 digest of the raw source bytes of a torrent's
// info dictionary. It must never be computed over a re-encoding of the
// dictionary -- only over the exact bytes the dictionary occupied in the
// original .torrent file.
type InfoHash [InfoHashLen]byte

// NewInfoHashFromBytes computes the InfoHash of the raw info-dictionary bytes b.
func NewInfoHashFromBytes(b []byte) InfoHash {
	var h InfoHash
	sum := sha1.Sum(b)
	copy(h[:], sum[:])
	return h
}

// NewInfoHashFromHex parses a 40-character hex string into an InfoHash.
func NewInfoHashFromHex(s string) (InfoHash, error) {
	var h InfoHash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hex: %s", err)
	}
	if len(b) != InfoHashLen {
		return h, fmt.Errorf("invalid info hash length: %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// NewInfoHashFromBase32 parses a 32-character base32 string into an InfoHash.
// Magnet links occasionally encode the hash this way.
func NewInfoHashFromBase32(s string) (InfoHash, error) {
	var h InfoHash
	b, err := base32Decode(s)
	if err != nil {
		return h, fmt.Errorf("decode base32: %s", err)
	}
	if len(b) != InfoHashLen {
		return h, fmt.Errorf("invalid info hash length: %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Bytes returns the raw bytes of h.
func (h InfoHash) Bytes() []byte {
	return h[:]
}

// Hex returns the lowercase hex string representation of h.
func (h InfoHash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements fmt.Stringer.
func (h InfoHash) String() string {
	return h.Hex()
}
