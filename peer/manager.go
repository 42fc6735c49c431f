package peer

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/seedcore-io/torrentd/bitfield"
	"github.com/seedcore-io/torrentd/core"
	"github.com/seedcore-io/torrentd/piece"
	"github.com/seedcore-io/torrentd/selector"
	"github.com/seedcore-io/torrentd/wire"
	"github.com/uber-go/tally"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/syncmap"
	"golang.org/x/time/rate"
)

// PieceStore is the subset of piece.Manager the peer manager drives. It is
// an interface so tests can substitute a fake without standing up a real
// torrent.
type PieceStore interface {
	OnPeerBitfield(peerID core.PeerID, bf *bitfield.Bitfield) bool
	OnPeerHave(peerID core.PeerID, pieceIndex int) bool
	OnPeerDropped(peerID core.PeerID)
	Reserve(peerID core.PeerID, endgame bool) (int, []piece.Block, bool)
	ReserveMissingBlocks(pieceIdx int, peerID core.PeerID) ([]piece.Block, bool)
	AcceptBlock(pieceIdx, offset int, data []byte) piece.AcceptResult
	VerifyAndCommit(pieceIdx int) ([]byte, error)
	MarkBlockFailed(b piece.Block)
	Bitfield() *bitfield.Bitfield
	MissingCount() int
	NumPieces() int
}

// DiskReader is the subset of disk.Mapper the peer manager needs to answer
// upload REQUESTs and commit verified pieces.
type DiskReader interface {
	ReadPiece(pieceIndex, offset, length int) ([]byte, error)
	WritePiece(pieceIndex, offset int, data []byte) error
}

// Config tunes the peer manager's choking algorithm and dial behavior.
type Config struct {
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	RegularChokeRound time.Duration `yaml:"regular_choke_round"`
	OptimisticRound   time.Duration `yaml:"optimistic_round"`
	UnchokeSlots      int           `yaml:"unchoke_slots"`
	// UploadRateLimit caps aggregate upload bandwidth in bytes/sec across
	// every session this manager serves. Zero means unlimited.
	UploadRateLimit int `yaml:"upload_rate_limit"`
}

func (c Config) applyDefaults() Config {
	if c.DialTimeout == 0 {
		c.DialTimeout = 15 * time.Second
	}
	if c.RegularChokeRound == 0 {
		c.RegularChokeRound = 10 * time.Second
	}
	if c.OptimisticRound == 0 {
		c.OptimisticRound = 30 * time.Second
	}
	if c.UnchokeSlots == 0 {
		c.UnchokeSlots = 4
	}
	return c
}

// Manager owns the table of peer sessions for a single torrent: connection
// establishment, message dispatch, the choking algorithm, and HAVE
// broadcast.
type Manager struct {
	config      Config
	infoHash    core.InfoHash
	localPeerID core.PeerID
	clk         clock.Clock
	logger      *zap.SugaredLogger
	stats       tally.Scope

	pieces PieceStore
	disk   DiskReader

	sessions syncmap.Map // core.PeerID -> *Session

	paused atomic.Bool

	optimisticSlot core.PeerID
	hasOptimistic  bool
	rng            *rand.Rand

	diskErrMu sync.Mutex
	diskErrFn func(error)

	uploadLimiter *rate.Limiter

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// SetDiskErrorHandler registers fn to be invoked when committing a
// verified piece to disk fails. Per the error-handling policy, an IoError
// on a disk write of a verified piece is fatal: the caller (the
// supervisor) is expected to transition to Error and stop issuing
// reservations.
func (m *Manager) SetDiskErrorHandler(fn func(error)) {
	m.diskErrMu.Lock()
	m.diskErrFn = fn
	m.diskErrMu.Unlock()
}

// New constructs a Manager for one torrent's peer swarm.
func New(
	config Config,
	infoHash core.InfoHash,
	localPeerID core.PeerID,
	clk clock.Clock,
	pieces PieceStore,
	disk DiskReader,
	stats tally.Scope,
	logger *zap.SugaredLogger,
) *Manager {
	config = config.applyDefaults()

	var limiter *rate.Limiter
	if config.UploadRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.UploadRateLimit), config.UploadRateLimit)
	}

	return &Manager{
		config:        config,
		infoHash:      infoHash,
		localPeerID:   localPeerID,
		clk:           clk,
		logger:        logger,
		stats:         stats,
		pieces:        pieces,
		disk:          disk,
		rng:           rand.New(rand.NewSource(clk.Now().UnixNano())),
		uploadLimiter: limiter,
		done:          make(chan struct{}),
	}
}

// Start spawns the manager's periodic choking and request-timeout loops.
func (m *Manager) Start() {
	m.wg.Add(2)
	go m.chokeLoop()
	go m.timeoutLoop()
}

// TearDown cancels all background loops and closes every session.
func (m *Manager) TearDown() {
	m.stopOnce.Do(func() { close(m.done) })
	m.sessions.Range(func(_, v interface{}) bool {
		v.(*Session).Close()
		return true
	})
	m.wg.Wait()
}

// Pause stops the manager from issuing new block requests while keeping
// sessions open to continue serving uploads.
func (m *Manager) Pause() { m.paused.Store(true) }

// Resume re-enables issuing new block requests.
func (m *Manager) Resume() { m.paused.Store(false) }

// AddPeer dials addr, performs the handshake, and on success inserts the
// resulting session into the table and spawns its per-session dispatch
// loop. Connection failures are silent drops, per the wire protocol's
// external contract -- they are not surfaced as errors to the caller beyond
// the returned error for logging.
func (m *Manager) AddPeer(addr string) error {
	connected := false
	m.sessions.Range(func(_, v interface{}) bool {
		connected = v.(*Session).Addr() == addr
		return !connected
	})
	if connected {
		return fmt.Errorf("already connected to %s", addr)
	}

	nc, err := net.DialTimeout("tcp", addr, m.config.DialTimeout)
	if err != nil {
		return fmt.Errorf("dial: %s", err)
	}

	if err := wire.WriteHandshake(nc, m.infoHash, m.localPeerID); err != nil {
		nc.Close()
		return fmt.Errorf("send handshake: %s", err)
	}
	remoteHash, remoteID, err := wire.ReadHandshake(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("read handshake: %s", err)
	}
	if remoteHash != m.infoHash {
		nc.Close()
		return &wire.ProtocolError{Reason: "handshake info hash mismatch"}
	}

	s := newSession(nc, addr, remoteID, m.infoHash, m.clk, m.logger)
	m.insertAndServe(s)
	return nil
}

// AcceptPeer wraps an already-accepted connection nc as a session,
// completing the inbound side of the handshake.
func (m *Manager) AcceptPeer(nc net.Conn, addr string) error {
	remoteHash, remoteID, err := wire.ReadHandshake(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("read handshake: %s", err)
	}
	if remoteHash != m.infoHash {
		nc.Close()
		return &wire.ProtocolError{Reason: "handshake info hash mismatch"}
	}
	if err := wire.WriteHandshake(nc, m.infoHash, m.localPeerID); err != nil {
		nc.Close()
		return fmt.Errorf("send handshake: %s", err)
	}

	s := newSession(nc, addr, remoteID, m.infoHash, m.clk, m.logger)
	m.insertAndServe(s)
	return nil
}

func (m *Manager) insertAndServe(s *Session) {
	m.sessions.Store(s.PeerID(), s)
	s.Start()

	ours := m.pieces.Bitfield()
	if ours.Count() > 0 {
		s.Send(wire.NewBitfield(ours.Bytes()))
	}

	m.wg.Add(1)
	go m.serve(s)
}

// RemovePeer closes and removes the named peer's session.
func (m *Manager) RemovePeer(peerID core.PeerID) {
	v, ok := m.sessions.Load(peerID)
	if !ok {
		return
	}
	m.removeSession(v.(*Session))
}

func (m *Manager) removeSession(s *Session) {
	m.sessions.Delete(s.PeerID())
	s.Close()
	m.pieces.OnPeerDropped(s.PeerID())
	s.mu.Lock()
	pending := make([]piece.Block, 0, len(s.pendingRequests))
	for b := range s.pendingRequests {
		pending = append(pending, b)
	}
	s.mu.Unlock()
	for _, b := range pending {
		m.pieces.MarkBlockFailed(b)
	}
}

// BroadcastHave sends HAVE(pieceIndex) to every session. Callers must only
// invoke this after pieceIndex has been both verified and committed to
// disk, so that a peer requesting it afterward always finds it.
func (m *Manager) BroadcastHave(pieceIndex int) {
	m.sessions.Range(func(_, v interface{}) bool {
		v.(*Session).Send(wire.NewHave(pieceIndex))
		return true
	})
}

// PeerCount returns the number of connected sessions.
func (m *Manager) PeerCount() int {
	n := 0
	m.sessions.Range(func(_, _ interface{}) bool { n++; return true })
	return n
}

// PeerView describes one session for external observers.
type PeerView struct {
	Addr            string
	AmChoking       bool
	AmInterested    bool
	PeerChoking     bool
	PeerInterested  bool
	BytesDownloaded int64
	BytesUploaded   int64
	Strikes         int32
	Idle            time.Duration
}

// PeerViews snapshots every connected session.
func (m *Manager) PeerViews() []PeerView {
	now := m.clk.Now()
	var views []PeerView
	m.sessions.Range(func(_, v interface{}) bool {
		s := v.(*Session)
		views = append(views, PeerView{
			Addr:            s.Addr(),
			AmChoking:       s.amChoking.Load(),
			AmInterested:    s.amInterested.Load(),
			PeerChoking:     s.peerChoking.Load(),
			PeerInterested:  s.peerInterested.Load(),
			BytesDownloaded: s.BytesDownloaded(),
			BytesUploaded:   s.BytesUploaded(),
			Strikes:         s.Strikes(),
			Idle:            s.IdleSince(now),
		})
		return true
	})
	return views
}

// SweepIdle drops every session from which no message has been received
// for at least threshold. Used by the engine's idle-peer sweep.
func (m *Manager) SweepIdle(threshold time.Duration) int {
	now := m.clk.Now()
	var stale []*Session
	m.sessions.Range(func(_, v interface{}) bool {
		s := v.(*Session)
		if s.IdleSince(now) >= threshold {
			stale = append(stale, s)
		}
		return true
	})
	for _, s := range stale {
		m.removeSession(s)
	}
	return len(stale)
}

// serve is the per-session dispatch loop: it consumes messages off the
// session's Received channel and reacts to them. A read error ends the
// session and removes it from the table, releasing its reservations.
func (m *Manager) serve(s *Session) {
	defer m.wg.Done()
	for {
		select {
		case msg, ok := <-s.Received():
			if !ok {
				m.removeSession(s)
				return
			}
			m.dispatch(s, msg)
		case <-m.done:
			return
		}
	}
}

func (m *Manager) dispatch(s *Session, msg *wire.Message) {
	s.touch()
	if msg.IsKeepAlive {
		return
	}
	switch msg.ID {
	case wire.Choke:
		s.peerChoking.Store(true)
	case wire.Unchoke:
		s.peerChoking.Store(false)
		m.fillPipeline(s)
	case wire.Interested:
		s.peerInterested.Store(true)
	case wire.NotInterested:
		s.peerInterested.Store(false)
	case wire.Have:
		if m.pieces.OnPeerHave(s.PeerID(), msg.Index) && !s.amInterested.Load() {
			s.amInterested.Store(true)
			s.Send(wire.NewInterested())
		}
	case wire.BitfieldID:
		bf, err := bitfield.FromBytes(msg.Bitfield, m.pieces.NumPieces())
		if err != nil {
			m.logger.With("peer", s.Addr()).Warnf("malformed bitfield: %s", err)
			return
		}
		if m.pieces.OnPeerBitfield(s.PeerID(), bf) {
			s.amInterested.Store(true)
			s.Send(wire.NewInterested())
		}
	case wire.Request:
		m.handleRequest(s, msg)
	case wire.Piece:
		m.handlePiece(s, msg)
	case wire.Cancel:
		// Requests are synchronized within a session; nothing queued
		// asynchronously to cancel.
	}
}

func (m *Manager) handleRequest(s *Session, msg *wire.Message) {
	if !s.CanServe() {
		return
	}
	data, err := m.disk.ReadPiece(msg.Index, msg.Offset, msg.Length)
	if err != nil {
		m.logger.With("peer", s.Addr()).Warnf("read piece for upload: %s", err)
		return
	}
	if m.uploadLimiter != nil {
		if err := m.uploadLimiter.WaitN(context.Background(), len(data)); err != nil {
			m.logger.With("peer", s.Addr()).Warnf("upload rate limiter: %s", err)
			return
		}
	}
	s.addUploaded(len(data))
	s.Send(wire.NewPiece(msg.Index, msg.Offset, data))
}

func (m *Manager) handlePiece(s *Session, msg *wire.Message) {
	b := piece.Block{PieceIndex: msg.Index, Offset: msg.Offset, Length: len(msg.Block)}
	s.UntrackRequest(b)
	s.addDownloaded(len(msg.Block))

	result := m.pieces.AcceptBlock(msg.Index, msg.Offset, msg.Block)
	switch result {
	case piece.Complete:
		bytes, err := m.pieces.VerifyAndCommit(msg.Index)
		if err != nil {
			s.AddStrike()
			m.logger.With("peer", s.Addr()).Infof("piece %d failed verification: %s", msg.Index, err)
			return
		}
		if err := m.disk.WritePiece(msg.Index, 0, bytes); err != nil {
			m.logger.With("peer", s.Addr()).Errorf("commit piece %d: %s", msg.Index, err)
			m.diskErrMu.Lock()
			fn := m.diskErrFn
			m.diskErrMu.Unlock()
			if fn != nil {
				fn(fmt.Errorf("commit piece %d: %s", msg.Index, err))
			}
			return
		}
		m.BroadcastHave(msg.Index)
	case piece.More:
		// fall through to refill below.
	case piece.InvalidLength, piece.PieceNotInProgress:
		m.logger.With("peer", s.Addr()).Warnf("unexpected block for piece %d: %v", msg.Index, result)
		return
	}

	if s.PendingCount() < MaxPending {
		m.fillPipeline(s)
	}
}

// fillPipeline issues additional REQUESTs to s up to MaxPending, if the
// session is able to request at all.
func (m *Manager) fillPipeline(s *Session) {
	if m.paused.Load() || !s.CanRequest() {
		return
	}
	endgame := selectorEndgame(m.pieces)
	for s.PendingCount() < MaxPending {
		pieceIdx, blocks, ok := m.pieces.Reserve(s.PeerID(), endgame)
		if !ok {
			return
		}
		for _, b := range blocks {
			if s.PendingCount() >= MaxPending {
				return
			}
			block := piece.Block{PieceIndex: pieceIdx, Offset: b.Offset, Length: b.Length}
			if err := s.TrackRequest(block); err != nil {
				continue
			}
			s.Send(wire.NewRequest(pieceIdx, b.Offset, b.Length))
		}
	}
}

func selectorEndgame(p PieceStore) bool {
	return selector.ShouldEndgame(p.MissingCount(), p.NumPieces())
}

// sortedAddrs is a test/debug helper returning session addresses in a
// stable order.
func (m *Manager) sortedAddrs() []string {
	var addrs []string
	m.sessions.Range(func(_, v interface{}) bool {
		addrs = append(addrs, v.(*Session).Addr())
		return true
	})
	sort.Strings(addrs)
	return addrs
}
