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

// Package peer implements the peer session state machine and the manager
// that owns the table of sessions for one torrent: handshake, framed
// message I/O, choke/interest state, pipelined block requests, timeout and
// re-queue, tit-for-tat unchoking, and HAVE broadcast.
package peer

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/seedcore-io/torrentd/core"
	"github.com/seedcore-io/torrentd/piece"
	"github.com/seedcore-io/torrentd/wire"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// MaxPending is the number of outstanding block requests we keep pipelined
// to a single peer.
const MaxPending = 5

// BlockTimeout is how long we wait for a requested block before timing it
// out and releasing it back to the piece manager.
const BlockTimeout = 30 * time.Second

// KeepAliveInterval is the idle duration after which a session sends a
// keep-alive.
const KeepAliveInterval = 2 * time.Minute

// sendBufferSize is the capacity of a session's outbound message channel.
const sendBufferSize = 64

// Session owns one peer's TCP stream. It is the sole reader and sole writer
// of that stream; all other access goes through its Send method or the
// atomic flags below.
type Session struct {
	conn     net.Conn
	addr     string
	peerID   core.PeerID
	infoHash core.InfoHash
	clk      clock.Clock
	logger   *zap.SugaredLogger

	amChoking      atomic.Bool
	amInterested   atomic.Bool
	peerChoking    atomic.Bool
	peerInterested atomic.Bool

	strikes atomic.Int32

	mu              sync.Mutex
	pendingRequests map[piece.Block]time.Time
	lastSent        time.Time
	lastActivity    time.Time

	bytesDownloaded     atomic.Int64
	bytesUploaded       atomic.Int64
	chokeWindowBaseline atomic.Int64

	sender   chan *wire.Message
	received chan *wire.Message

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// newSession wraps an established connection, post-handshake, as a Session.
// am_choking starts true, peer_choking starts true, am_interested and
// peer_interested both start false, per the wire protocol's default state.
func newSession(conn net.Conn, addr string, peerID core.PeerID, infoHash core.InfoHash, clk clock.Clock, logger *zap.SugaredLogger) *Session {
	s := &Session{
		conn:            conn,
		addr:            addr,
		peerID:          peerID,
		infoHash:        infoHash,
		clk:             clk,
		logger:          logger,
		pendingRequests: make(map[piece.Block]time.Time),
		sender:          make(chan *wire.Message, sendBufferSize),
		received:        make(chan *wire.Message, sendBufferSize),
		done:            make(chan struct{}),
		lastActivity:    clk.Now(),
	}
	s.amChoking.Store(true)
	s.peerChoking.Store(true)
	return s
}

// Start spawns the session's read and write loops.
func (s *Session) Start() {
	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
}

// Addr returns the peer's network address.
func (s *Session) Addr() string { return s.addr }

// PeerID returns the peer's handshaken id.
func (s *Session) PeerID() core.PeerID { return s.peerID }

// Received returns the channel of messages read from the peer. The manager
// consumes this channel; it is closed when the session's read loop exits.
func (s *Session) Received() <-chan *wire.Message { return s.received }

// Send enqueues msg for the write loop. It never blocks indefinitely: if
// the session is closed the send is dropped.
func (s *Session) Send(msg *wire.Message) {
	if s.closed.Load() {
		return
	}
	select {
	case s.sender <- msg:
	case <-s.done:
	}
}

// Close tears down the session's stream and loops. Safe to call more than
// once and from any goroutine.
func (s *Session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
		s.conn.Close()
	}
	s.wg.Wait()
}

// IsClosed reports whether the session has been closed.
func (s *Session) IsClosed() bool { return s.closed.Load() }

func (s *Session) readLoop() {
	defer s.wg.Done()
	defer close(s.received)
	for {
		msg, err := wire.ReadMessageTimeout(s.conn, KeepAliveInterval+30*time.Second)
		if err != nil {
			s.logger.With("peer", s.addr).Debugf("read loop ending: %s", err)
			go s.Close()
			return
		}
		if msg == nil {
			continue // unknown message id, already skipped.
		}
		select {
		case s.received <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *Session) writeLoop() {
	defer s.wg.Done()
	ticker := s.clk.Ticker(KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case msg := <-s.sender:
			if err := wire.WriteMessageTimeout(s.conn, msg, 30*time.Second); err != nil {
				s.logger.With("peer", s.addr).Debugf("write loop ending: %s", err)
				go s.Close()
				return
			}
			s.mu.Lock()
			s.lastSent = s.clk.Now()
			s.mu.Unlock()
		case <-ticker.C:
			s.mu.Lock()
			idle := s.clk.Now().Sub(s.lastSent)
			s.mu.Unlock()
			if idle >= KeepAliveInterval {
				if err := wire.WriteMessageTimeout(s.conn, wire.NewKeepAlive(), 30*time.Second); err != nil {
					go s.Close()
					return
				}
			}
		case <-s.done:
			return
		}
	}
}

// CanRequest reports whether we may request blocks from this peer:
// !peer_choking && am_interested.
func (s *Session) CanRequest() bool {
	return !s.peerChoking.Load() && s.amInterested.Load()
}

// CanServe reports whether we may serve a REQUEST from this peer:
// !am_choking && peer_interested.
func (s *Session) CanServe() bool {
	return !s.amChoking.Load() && s.peerInterested.Load()
}

// PendingCount returns the number of outstanding block requests.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingRequests)
}

// TrackRequest records that block was just requested, returning an error if
// it is already pending -- no block may be held twice in one session's
// pending map with the same offset.
func (s *Session) TrackRequest(b piece.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pendingRequests[b]; exists {
		return fmt.Errorf("block %+v already pending", b)
	}
	s.pendingRequests[b] = s.clk.Now()
	return nil
}

// UntrackRequest removes a block from the pending map, e.g. because its
// PIECE arrived or it timed out.
func (s *Session) UntrackRequest(b piece.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingRequests, b)
}

// ExpiredRequests returns pending blocks that have been outstanding longer
// than BlockTimeout, removing them from the pending map.
func (s *Session) ExpiredRequests() []piece.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	var expired []piece.Block
	for b, sentAt := range s.pendingRequests {
		if now.Sub(sentAt) >= BlockTimeout {
			expired = append(expired, b)
			delete(s.pendingRequests, b)
		}
	}
	return expired
}

// AddStrike increments the peer's strike count (accrued on block timeouts
// and digest-mismatch deliveries) and returns the new total.
func (s *Session) AddStrike() int32 {
	return s.strikes.Add(1)
}

// Strikes returns the current strike count.
func (s *Session) Strikes() int32 { return s.strikes.Load() }

// BytesDownloaded returns the total bytes received from this peer.
func (s *Session) BytesDownloaded() int64 { return s.bytesDownloaded.Load() }

// BytesUploaded returns the total bytes sent to this peer.
func (s *Session) BytesUploaded() int64 { return s.bytesUploaded.Load() }

func (s *Session) addDownloaded(n int) { s.bytesDownloaded.Add(int64(n)) }
func (s *Session) addUploaded(n int)   { s.bytesUploaded.Add(int64(n)) }

// ChokeWindowDelta returns bytes received from this peer since the previous
// call, then resets the baseline. Used by the choke round to rank peers by
// recent delivery rate rather than cumulative total, so an early bulk peer
// doesn't stay unchoked forever on stale credit.
func (s *Session) ChokeWindowDelta() int64 {
	total := s.bytesDownloaded.Load()
	prev := s.chokeWindowBaseline.Swap(total)
	return total - prev
}

// touch records that a message was just received from this peer.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = s.clk.Now()
	s.mu.Unlock()
}

// IdleSince returns how long it has been since a message was last received
// from this peer.
func (s *Session) IdleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}
