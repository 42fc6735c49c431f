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

// Package piece implements the piece/block state machine: the sole owner of
// in-progress piece buffers and the verified bitfield. It tracks per-peer
// bitfields and the resulting availability histogram, and hands verified
// piece bytes to the disk layer for commit.
package piece

import (
	"fmt"
	"sync"

	"github.com/seedcore-io/torrentd/bitfield"
	"github.com/seedcore-io/torrentd/core"
	"github.com/seedcore-io/torrentd/selector"
)

// BlockSize is the conventional size of a block, the unit of request and
// timeout. The final block of a piece may be shorter.
const BlockSize = 16384

// State is a piece's place in the Missing -> InProgress -> Verified state
// machine.
type State int

// The three piece states.
const (
	Missing State = iota
	InProgressState
	Verified
)

// Block identifies a fixed-size subunit of a piece.
type Block struct {
	PieceIndex int
	Offset     int
	Length     int
}

// AcceptResult is the outcome of delivering block bytes to the manager.
type AcceptResult int

// The possible outcomes of AcceptBlock.
const (
	Complete AcceptResult = iota
	More
	InvalidLength
	PieceNotInProgress
)

// DigestMismatchError indicates a piece's hashed bytes did not match its
// expected digest. The piece is reset to Missing; it is never marked
// Verified or committed to disk in this case.
type DigestMismatchError struct {
	PieceIndex int
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("piece %d: digest mismatch", e.PieceIndex)
}

type inProgressPiece struct {
	buf      []byte
	received map[int]bool // offset -> received
}

// Manager is the sole owner of in-progress piece buffers and the local
// verified bitfield. It is safe for concurrent use; all exported methods
// take the manager's lock for their full duration except where documented.
type Manager struct {
	mu sync.RWMutex

	pieceHashes []core.PieceHash
	pieceLength int64
	totalLength int64

	ours     *bitfield.Bitfield
	progress map[int]*inProgressPiece

	peerBitfields map[core.PeerID]*bitfield.Bitfield
	availability  []int

	priorities map[int]selector.Priority
	sel        *selector.Selector
}

// NewManager constructs a Manager for a torrent with the given piece
// digests and lengths. ours, if non-nil, seeds the verified bitfield (used
// when resuming a session from a persisted snapshot); otherwise an empty
// bitfield is created.
func NewManager(pieceHashes []core.PieceHash, pieceLength, totalLength int64, sel *selector.Selector, ours *bitfield.Bitfield) *Manager {
	numPieces := len(pieceHashes)
	if ours == nil {
		ours = bitfield.New(numPieces)
	}
	return &Manager{
		pieceHashes:   pieceHashes,
		pieceLength:   pieceLength,
		totalLength:   totalLength,
		ours:          ours,
		progress:      make(map[int]*inProgressPiece),
		peerBitfields: make(map[core.PeerID]*bitfield.Bitfield),
		availability:  make([]int, numPieces),
		priorities:    make(map[int]selector.Priority),
		sel:           sel,
	}
}

// NumPieces returns the total number of pieces in the torrent.
func (m *Manager) NumPieces() int {
	return len(m.pieceHashes)
}

// pieceLenAt returns the length of piece i, accounting for the final
// (possibly short) piece. Caller must hold m.mu for reading.
func (m *Manager) pieceLenAt(i int) int64 {
	if i == len(m.pieceHashes)-1 {
		if rem := m.totalLength % m.pieceLength; rem != 0 {
			return rem
		}
	}
	return m.pieceLength
}

func blocksForPieceLength(pieceLen int64) []Block {
	var blocks []Block
	var offset int64
	for offset < pieceLen {
		length := int64(BlockSize)
		if remaining := pieceLen - offset; remaining < length {
			length = remaining
		}
		blocks = append(blocks, Block{Offset: int(offset), Length: int(length)})
		offset += length
	}
	return blocks
}

// SetFilePriority tags the pieces covering [byteOffset, byteOffset+length)
// with priority, for use as the selector's secondary key. Skip removes the
// pieces from candidate sets entirely.
func (m *Manager) SetFilePriority(byteOffset, length int64, priority selector.Priority) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := int(byteOffset / m.pieceLength)
	end := int((byteOffset + length - 1) / m.pieceLength)
	for i := start; i <= end && i < len(m.pieceHashes); i++ {
		m.priorities[i] = priority
	}
}

// OnPeerBitfield registers a peer's initial bitfield, updates the
// availability histogram, and reports whether we lack any piece the peer
// has (used by the caller to decide whether to send INTERESTED).
func (m *Manager) OnPeerBitfield(peerID core.PeerID, bf *bitfield.Bitfield) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.peerBitfields[peerID] = bf
	for i := 0; i < bf.Len() && i < len(m.availability); i++ {
		if bf.Test(i) {
			m.availability[i]++
		}
	}
	return bitfield.HasAny(m.ours, bf)
}

// OnPeerHave records a single HAVE from a known peer, updating their
// bitfield and the availability histogram exactly once, and reports
// whether we now have reason to be interested in them.
func (m *Manager) OnPeerHave(peerID core.PeerID, pieceIndex int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	bf, ok := m.peerBitfields[peerID]
	if !ok {
		return false
	}
	if pieceIndex < 0 || pieceIndex >= len(m.availability) {
		return false
	}
	if !bf.Test(pieceIndex) {
		bf.Set(pieceIndex)
		m.availability[pieceIndex]++
	}
	return !m.ours.Test(pieceIndex)
}

// OnPeerDropped decrements the availability histogram for every piece the
// peer advertised and forgets its bitfield.
func (m *Manager) OnPeerDropped(peerID core.PeerID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bf, ok := m.peerBitfields[peerID]
	if !ok {
		return
	}
	for i := 0; i < bf.Len(); i++ {
		if bf.Test(i) {
			m.availability[i]--
		}
	}
	delete(m.peerBitfields, peerID)
}

// Reserve picks a piece to fetch from peerID via the configured selector,
// allocating its in-progress buffer on first touch, and returns the full
// block list for that piece.
func (m *Manager) Reserve(peerID core.PeerID, endgame bool) (pieceIdx int, blocks []Block, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	peerBF, known := m.peerBitfields[peerID]
	if !known {
		return 0, nil, false
	}

	inProgress := make(map[int]bool, len(m.progress))
	for i := range m.progress {
		inProgress[i] = true
	}

	idx, found := m.sel.Select(m.ours, peerBF, inProgress, m.availabilityMap(), m.priorities, endgame)
	if !found {
		return 0, nil, false
	}

	if _, exists := m.progress[idx]; !exists {
		m.progress[idx] = &inProgressPiece{
			buf:      make([]byte, m.pieceLenAt(idx)),
			received: make(map[int]bool),
		}
	}

	return idx, blocksForPieceLength(m.pieceLenAt(idx)), true
}

// ReserveMissingBlocks supplies the blocks of an already in-progress piece
// that have not yet been received, provided the peer also has that piece.
func (m *Manager) ReserveMissingBlocks(pieceIdx int, peerID core.PeerID) ([]Block, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	peerBF, known := m.peerBitfields[peerID]
	if !known || !peerBF.Test(pieceIdx) {
		return nil, false
	}
	ip, ok := m.progress[pieceIdx]
	if !ok {
		return nil, false
	}
	all := blocksForPieceLength(m.pieceLenAt(pieceIdx))
	var missing []Block
	for _, b := range all {
		if !ip.received[b.Offset] {
			missing = append(missing, b)
		}
	}
	if len(missing) == 0 {
		return nil, false
	}
	return missing, true
}

func (m *Manager) availabilityMap() map[int]int {
	out := make(map[int]int, len(m.availability))
	for i, c := range m.availability {
		out[i] = c
	}
	return out
}

// AcceptBlock writes bytes into the scratch buffer for pieceIdx at offset.
// It returns Complete once every block of the piece has landed (the piece
// is not yet Verified at that point -- the caller must call
// VerifyAndCommit), More if blocks remain outstanding, InvalidLength if
// offset/len(bytes) falls outside the piece, or PieceNotInProgress if the
// piece has no open buffer (e.g. already verified, or never reserved).
func (m *Manager) AcceptBlock(pieceIdx, offset int, data []byte) AcceptResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	ip, ok := m.progress[pieceIdx]
	if !ok {
		return PieceNotInProgress
	}
	if offset < 0 || offset+len(data) > len(ip.buf) {
		return InvalidLength
	}
	copy(ip.buf[offset:], data)
	ip.received[offset] = true

	for _, b := range blocksForPieceLength(m.pieceLenAt(pieceIdx)) {
		if !ip.received[b.Offset] {
			return More
		}
	}
	return Complete
}

// VerifyAndCommit hashes the completed buffer for pieceIdx and compares it
// to the expected digest. On success it sets our bit, drops the buffer, and
// returns the verified bytes for the caller to commit to disk. On mismatch
// it resets the piece to Missing (dropping the buffer so it is re-fetched
// from scratch) and returns a *DigestMismatchError; the piece is never
// marked Verified nor committed in that case.
func (m *Manager) VerifyAndCommit(pieceIdx int) ([]byte, error) {
	m.mu.Lock()
	ip, ok := m.progress[pieceIdx]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("piece %d: not in progress", pieceIdx)
	}
	buf := ip.buf
	m.mu.Unlock()

	// Hashing releases the lock per the O(piece_length) cost note; only the
	// final state mutation below re-acquires it.
	h := core.HashPiece(buf)

	m.mu.Lock()
	defer m.mu.Unlock()

	if h != m.pieceHashes[pieceIdx] {
		delete(m.progress, pieceIdx)
		return nil, &DigestMismatchError{PieceIndex: pieceIdx}
	}
	delete(m.progress, pieceIdx)
	m.ours.Set(pieceIdx)
	return buf, nil
}

// MarkBlockFailed removes a block's pending state so the selector or a peer
// re-request may re-issue it. Used on peer disconnect or a request timeout;
// the piece itself remains InProgress with its other received blocks intact.
func (m *Manager) MarkBlockFailed(b Block) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ip, ok := m.progress[b.PieceIndex]
	if !ok {
		return
	}
	delete(ip.received, b.Offset)
}

// Bitfield returns a snapshot clone of our verified bitfield. It never
// reflects InProgress pieces.
func (m *Manager) Bitfield() *bitfield.Bitfield {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ours.Clone()
}

// DownloadedBytes returns the sum of verified piece lengths.
func (m *Manager) DownloadedBytes() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum int64
	for i := range m.pieceHashes {
		if m.ours.Test(i) {
			sum += m.pieceLenAt(i)
		}
	}
	return sum
}

// MissingCount returns the number of pieces not yet Verified, InProgress
// pieces included.
func (m *Manager) MissingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pieceHashes) - m.ours.Count()
}

// InProgressCount returns the number of pieces currently InProgress.
func (m *Manager) InProgressCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.progress)
}

// Availability returns a snapshot of the availability histogram.
func (m *Manager) Availability() map[int]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.availabilityMap()
}

// Complete reports whether every piece is Verified.
func (m *Manager) Complete() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ours.Full()
}
