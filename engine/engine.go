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
package engine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/seedcore-io/torrentd/bitfield"
	"github.com/seedcore-io/torrentd/core"
	"github.com/seedcore-io/torrentd/disk"
	"github.com/seedcore-io/torrentd/metainfo"
	"github.com/seedcore-io/torrentd/peer"
	"github.com/seedcore-io/torrentd/piece"
	"github.com/seedcore-io/torrentd/selector"
	"github.com/seedcore-io/torrentd/tracker"
)

// ErrAwaitingMetadata is returned by Start when the engine's descriptor
// came from a magnet URI whose info dictionary has not yet been supplied.
// This engine does not implement the BEP 9 metadata extension; the caller
// must open the corresponding .torrent file out of band.
var ErrAwaitingMetadata = fmt.Errorf("cannot start: metadata not yet available")

// Engine is the per-torrent supervisor: it owns the descriptor, piece
// state, disk mapper, and peer manager, and drives the tracker announce
// loop, stats aggregation, and periodic persistence described in the
// engine state machine (Stopped -> Starting -> Downloading -> Seeding,
// with Paused entered only from Downloading or Seeding and Error reachable
// from any non-terminal state).
type Engine struct {
	config      Config
	torrent     *metainfo.Torrent
	downloadDir string
	infoHash    core.InfoHash
	localPeerID core.PeerID
	sourceTag   string

	clk    clock.Clock
	logger *zap.SugaredLogger
	stats  tally.Scope
	events Events
	store  Store

	diskMapper    *disk.Mapper
	sel           *selector.Selector
	pieces        *piece.Manager
	peers         *peer.Manager
	trk           *tracker.Tracker
	trackerClient tracker.Client

	mu             sync.Mutex
	state          State
	resumeState    State
	errMsg         string
	addedAt        time.Time
	lastActivity   time.Time
	completedAt    *time.Time
	filePriorities map[int]selector.Priority

	rateMu         sync.Mutex
	prevDownloaded int64
	prevUploaded   int64
	prevTickAt     time.Time
	lastDLRate     float64
	lastULRate     float64

	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// New constructs an Engine for torrent, rooted at downloadDir. resumeBits,
// if non-nil, seeds the verified bitfield from a previously persisted
// Snapshot so completed pieces are never re-downloaded. trackerClient may
// be nil to use the default real HTTP client.
func New(
	config Config,
	t *metainfo.Torrent,
	downloadDir string,
	store Store,
	events Events,
	clk clock.Clock,
	stats tally.Scope,
	logger *zap.SugaredLogger,
	trackerClient tracker.Client,
	sourceTag string,
	resumeBits []byte,
) (*Engine, error) {
	config = config.applyDefaults()
	if store == nil {
		store = NopStore{}
	}
	if events == nil {
		events = NopEvents{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if trackerClient == nil {
		trackerClient = tracker.NewHTTPClient()
	}

	peerID, err := core.GeneratePeerID()
	if err != nil {
		return nil, fmt.Errorf("generate peer id: %s", err)
	}

	stats = stats.Tagged(map[string]string{"module": "engine"})

	strategy := config.Strategy
	sel := selector.New(strategy, clk.Now().UnixNano())

	var ours *bitfield.Bitfield
	if resumeBits != nil {
		ours, err = bitfield.FromBytes(resumeBits, t.NumPieces())
		if err != nil {
			return nil, fmt.Errorf("resume bitfield: %s", err)
		}
	}
	pieces := piece.NewManager(t.PieceHashes, t.PieceLength, t.TotalLength, sel, ours)

	diskMapper := disk.New(downloadDir, t)

	peers := peer.New(config.Peer, t.InfoHash, peerID, clk, pieces, diskMapper, stats, logger)

	trk := tracker.New(config.Tracker, trackerClient, clk, stats, logger, t.Announce, t.AnnounceList)

	now := clk.Now()
	e := &Engine{
		config:         config,
		torrent:        t,
		downloadDir:    downloadDir,
		infoHash:       t.InfoHash,
		localPeerID:    peerID,
		sourceTag:      sourceTag,
		clk:            clk,
		logger:         logger,
		stats:          stats,
		events:         events,
		store:          store,
		diskMapper:     diskMapper,
		sel:            sel,
		pieces:         pieces,
		peers:          peers,
		trk:            trk,
		trackerClient:  trackerClient,
		state:          Stopped,
		addedAt:        now,
		lastActivity:   now,
		filePriorities: make(map[int]selector.Priority),
		prevTickAt:     now,
		done:           make(chan struct{}),
	}
	if pieces.Complete() && t.NumPieces() > 0 {
		e.state = Seeding
	}
	peers.SetDiskErrorHandler(func(err error) { e.enterError(fmt.Sprintf("disk write failed: %s", err)) })
	return e, nil
}

// InfoHash returns the torrent's identifying hash.
func (e *Engine) InfoHash() core.InfoHash { return e.infoHash }

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.events.OnStateChange(s)
}

// Start transitions Stopped -> Starting -> Downloading (or directly to
// Seeding if every piece was already verified on a prior run): it
// allocates files on disk, starts the peer manager, performs the initial
// tracker announce, and attempts connections to the returned peers.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.torrent.AwaitingMetadata() {
		e.mu.Unlock()
		return ErrAwaitingMetadata
	}
	if e.state != Stopped && e.state != Error {
		s := e.state
		e.mu.Unlock()
		return fmt.Errorf("cannot start from state %s", s)
	}
	e.mu.Unlock()

	e.setState(Starting)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.stopOnce = sync.Once{}
	e.done = make(chan struct{})

	if err := e.diskMapper.Allocate(); err != nil {
		e.enterError(fmt.Sprintf("allocate files: %s", err))
		return err
	}

	e.peers.Start()

	if e.pieces.Complete() {
		e.setState(Seeding)
	} else {
		e.setState(Downloading)
	}

	e.wg.Add(2)
	go e.statsLoop()
	go e.announceLoop()

	e.persist()
	return nil
}

// Pause stops the peer manager from issuing new block requests while
// keeping sessions open to continue serving uploads.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.state != Downloading && e.state != Seeding {
		s := e.state
		e.mu.Unlock()
		return fmt.Errorf("cannot pause from state %s", s)
	}
	e.resumeState = e.state
	e.mu.Unlock()

	e.peers.Pause()
	e.setState(Paused)
	e.persist()
	return nil
}

// Resume re-enables issuing new block requests after a Pause.
func (e *Engine) Resume() error {
	e.mu.Lock()
	if e.state != Paused {
		s := e.state
		e.mu.Unlock()
		return fmt.Errorf("cannot resume from state %s", s)
	}
	resumeState := e.resumeState
	e.mu.Unlock()

	e.peers.Resume()
	e.setState(resumeState)
	e.persist()
	return nil
}

// Stop cancels the root token tree, flushes pending writes, persists the
// final snapshot, and tears the peer manager down. Safe to call more than
// once.
func (e *Engine) Stop() {
	e.mu.Lock()
	alreadyStopped := e.state == Stopped
	e.mu.Unlock()
	if alreadyStopped {
		return
	}

	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		close(e.done)
	})
	e.wg.Wait()
	e.peers.TearDown()

	e.setState(Stopped)
	e.persist()
}

func (e *Engine) enterError(msg string) {
	e.mu.Lock()
	e.errMsg = msg
	e.mu.Unlock()
	e.setState(Error)
	e.persist()
}

// ErrorMessage returns the one-line diagnostic attached to the Error
// state, or "" if the engine is not in Error.
func (e *Engine) ErrorMessage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errMsg
}

// AcceptPeer hands an already-accepted inbound connection to the peer
// manager, completing the BitTorrent handshake against this engine's info
// hash. Callers own a listener (e.g. cmd/torrentd) and dispatch accepted
// connections to the matching engine by the handshake's declared info hash.
func (e *Engine) AcceptPeer(nc net.Conn, addr string) error {
	return e.peers.AcceptPeer(nc, addr)
}

// SetStrategy changes the selector's active piece-selection strategy.
func (e *Engine) SetStrategy(s selector.Strategy) {
	e.sel.SetStrategy(s)
}

// SetFilePriority tags every piece covering file fileIdx's byte range with
// priority, for use as the selector's secondary key.
func (e *Engine) SetFilePriority(fileIdx int, priority selector.Priority) error {
	if fileIdx < 0 || fileIdx >= len(e.torrent.Files) {
		return fmt.Errorf("file index %d out of range", fileIdx)
	}
	f := e.torrent.Files[fileIdx]
	e.pieces.SetFilePriority(f.Offset, f.Length, priority)
	e.mu.Lock()
	e.filePriorities[fileIdx] = priority
	e.mu.Unlock()
	return nil
}
