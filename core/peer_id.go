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
package core

import (
	"crypto/rand"
	"fmt"
)

// PeerIDLen is the length in bytes of a PeerID.
const PeerIDLen = 20

// clientPrefix identifies this implementation and version in the Azureus-style
// convention: a dash, two letters, four digits, a dash.
const clientPrefix = "-SC0001-"

const printableASCIILow = 0x21
const printableASCIIHigh = 0x7e

// PeerID is the 20-byte identifier a client presents during the handshake.
type PeerID [PeerIDLen]byte

// GeneratePeerID returns a new PeerID with the standard 8-byte client prefix
// followed by 12 random printable-ASCII bytes.
func GeneratePeerID() (PeerID, error) {
	var id PeerID
	copy(id[:], clientPrefix)
	suffix, err := randomPrintableASCII(PeerIDLen - len(clientPrefix))
	if err != nil {
		return id, fmt.Errorf("generate random suffix: %s", err)
	}
	copy(id[len(clientPrefix):], suffix)
	return id, nil
}

func randomPrintableASCII(n int) ([]byte, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = printableASCIILow + b%(printableASCIIHigh-printableASCIILow+1)
	}
	return out, nil
}

// NewPeerID constructs a PeerID from b, which must be exactly PeerIDLen bytes.
func NewPeerID(b []byte) (PeerID, error) {
	var id PeerID
	if len(b) != PeerIDLen {
		return id, fmt.Errorf("invalid peer id length: %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Bytes returns the raw bytes of id.
func (id PeerID) Bytes() []byte {
	return id[:]
}

// String implements fmt.Stringer, rendering id as hex.
func (id PeerID) String() string {
	return fmt.Sprintf("%x", id[:])
}
