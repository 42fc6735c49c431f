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

// Package wire implements the BitTorrent peer wire protocol: the 68-byte
// handshake and the length-prefixed message stream that follows it.
package wire

import (
	"fmt"
	"io"

	"github.com/seedcore-io/torrentd/core"
)

const protocolName = "BitTorrent protocol"

// HandshakeLen is the total length in bytes of a handshake.
const HandshakeLen = 1 + len(protocolName) + 8 + core.InfoHashLen + core.PeerIDLen

// ProtocolError indicates a malformed wire message or a handshake whose
// info hash did not match what was expected.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wire: protocol error: %s", e.Reason)
}

// WriteHandshake writes the 68-byte handshake for infoHash/peerID to w.
// Reserved bytes are always zero; this implementation speaks none of the
// extensions they would advertise.
func WriteHandshake(w io.Writer, infoHash core.InfoHash, peerID core.PeerID) error {
	buf := make([]byte, 0, HandshakeLen)
	buf = append(buf, byte(len(protocolName)))
	buf = append(buf, protocolName...)
	buf = append(buf, make([]byte, 8)...) // reserved
	buf = append(buf, infoHash.Bytes()...)
	buf = append(buf, peerID.Bytes()...)
	_, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("write handshake: %s", err)
	}
	return nil
}

// ReadHandshake reads a 68-byte handshake from r and returns the remote's
// claimed info hash and peer id. It does not itself check the info hash
// against any expectation -- callers performing an outbound connection must
// do so and drop the connection on mismatch.
func ReadHandshake(r io.Reader) (infoHash core.InfoHash, peerID core.PeerID, err error) {
	buf := make([]byte, HandshakeLen)
	if _, err = io.ReadFull(r, buf); err != nil {
		return infoHash, peerID, fmt.Errorf("read handshake: %s", err)
	}
	nameLen := int(buf[0])
	if nameLen != len(protocolName) || string(buf[1:1+nameLen]) != protocolName {
		return infoHash, peerID, &ProtocolError{"unrecognized protocol name in handshake"}
	}
	offset := 1 + len(protocolName) + 8
	copy(infoHash[:], buf[offset:offset+core.InfoHashLen])
	copy(peerID[:], buf[offset+core.InfoHashLen:offset+core.InfoHashLen+core.PeerIDLen])
	return infoHash, peerID, nil
}
