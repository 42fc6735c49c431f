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
	"time"

	"github.com/seedcore-io/torrentd/tracker"
)

// statsLoop recomputes aggregate stats every StatsTick, publishes them to
// Events.OnTick, and persists a Snapshot every PersistInterval. It also
// drives the idle-peer sweep.
func (e *Engine) statsLoop() {
	defer e.wg.Done()

	ticker := e.clk.Ticker(e.config.StatsTick)
	defer ticker.Stop()

	var sincePersist, sinceSweep time.Duration

	for {
		select {
		case <-ticker.C:
			s := e.computeStats()
			e.events.OnTick(s)

			if s.Progress >= 1 && e.markCompleteOnce() {
				e.onComplete()
			}

			sincePersist += e.config.StatsTick
			if sincePersist >= e.config.PersistInterval {
				sincePersist = 0
				e.persist()
			}

			sinceSweep += e.config.StatsTick
			if sinceSweep >= e.config.IdleSweep {
				sinceSweep = 0
				if n := e.peers.SweepIdle(e.config.IdleTimeout); n > 0 {
					e.logger.Infof("idle sweep dropped %d peer(s)", n)
				}
			}
		case <-e.done:
			return
		}
	}
}

// markCompleteOnce transitions Downloading -> Seeding exactly once, on the
// tick that first observes a full bitfield. It returns true only on that
// transition.
func (e *Engine) markCompleteOnce() bool {
	e.mu.Lock()
	if e.state != Downloading {
		e.mu.Unlock()
		return false
	}
	now := e.clk.Now()
	e.completedAt = &now
	e.state = Seeding
	e.mu.Unlock()
	e.events.OnStateChange(Seeding)
	return true
}

func (e *Engine) onComplete() {
	e.events.OnComplete()
	e.persist()
	req := e.announceRequest(tracker.EventCompleted)
	go e.announceOnce(req)
}

// announceLoop performs the initial "started" announce, connects to the
// returned peers, and then re-announces at the tracker-driven interval
// (lower-bounded by the tracker's own min interval) until the engine
// stops.
func (e *Engine) announceLoop() {
	defer e.wg.Done()

	resp, err := e.announceOnce(e.announceRequest(tracker.EventStarted))
	if err == nil && resp != nil {
		e.connectToPeers(resp.Peers)
	}

	timer := e.clk.Timer(e.trk.Interval())
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			resp, err := e.announceOnce(e.announceRequest(tracker.EventNone))
			if err == nil && resp != nil {
				e.connectToPeers(resp.Peers)
			}
			timer.Reset(e.trk.Interval())
		case <-e.done:
			return
		}
	}
}

func (e *Engine) announceRequest(event tracker.Event) tracker.Request {
	return tracker.Request{
		InfoHash:   e.infoHash,
		PeerID:     e.localPeerID,
		Port:       0,
		Uploaded:   e.sumUploaded(),
		Downloaded: e.pieces.DownloadedBytes(),
		Left:       e.torrent.TotalLength - e.pieces.DownloadedBytes(),
		Event:      event,
	}
}

// announceOnce issues one announce round. Per-tracker failures are
// recorded on the tracker view; the engine does not enter Error purely
// because every tracker in the round failed while peers remain connected.
func (e *Engine) announceOnce(req tracker.Request) (*tracker.Response, error) {
	resp, err := e.trk.Announce(e.ctx, req)
	if err != nil {
		e.logger.Warnf("announce failed: %s", err)
		return nil, err
	}
	return resp, nil
}

func (e *Engine) connectToPeers(addrs []tracker.PeerAddr) {
	existing := e.peers.PeerCount()
	slots := e.config.MaxPeers - existing
	for i, p := range addrs {
		if i >= slots {
			break
		}
		addr := p.String()
		go func(addr string) {
			if err := e.peers.AddPeer(addr); err != nil {
				e.logger.Debugf("connect to %s: %s", addr, err)
			}
		}(addr)
	}
}

func (e *Engine) sumUploaded() int64 {
	var total int64
	for _, v := range e.peers.PeerViews() {
		total += v.BytesUploaded
	}
	return total
}

func (e *Engine) persist() {
	e.mu.Lock()
	snap := Snapshot{
		InfoHash:     e.infoHash,
		Name:         e.torrent.Name,
		OurBits:      e.pieces.Bitfield().Bytes(),
		NumPieces:    e.torrent.NumPieces(),
		Downloaded:   e.pieces.DownloadedBytes(),
		Uploaded:     e.sumUploaded(),
		StateLabel:   e.state.String(),
		DownloadDir:  e.downloadDir,
		AddedAt:      e.addedAt,
		LastActivity: e.clk.Now(),
		CompletedAt:  e.completedAt,
		SourceTag:    e.sourceTag,
	}
	e.mu.Unlock()

	if err := e.store.SaveSnapshot(snap); err != nil {
		e.logger.Errorf("persist snapshot: %s", err)
	}
}
