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

	"github.com/seedcore-io/torrentd/peer"
	"github.com/seedcore-io/torrentd/selector"
	"github.com/seedcore-io/torrentd/tracker"
)

// Stats returns the current aggregate stats without waiting for the next
// tick.
func (e *Engine) Stats() Stats {
	return e.computeStats()
}

func (e *Engine) computeStats() Stats {
	downloaded := e.pieces.DownloadedBytes()
	uploaded := e.sumUploaded()

	e.rateMu.Lock()
	now := e.clk.Now()
	elapsed := now.Sub(e.prevTickAt).Seconds()
	if elapsed > 0 {
		e.lastDLRate = float64(downloaded-e.prevDownloaded) / elapsed
		e.lastULRate = float64(uploaded-e.prevUploaded) / elapsed
	}
	e.prevDownloaded = downloaded
	e.prevUploaded = uploaded
	e.prevTickAt = now
	dlRate, ulRate := e.lastDLRate, e.lastULRate
	e.rateMu.Unlock()

	var progress float64
	if total := e.torrent.TotalLength; total > 0 {
		progress = float64(downloaded) / float64(total)
	}

	var eta *time.Duration
	if dlRate > 0 && e.torrent.TotalLength > downloaded {
		remaining := time.Duration(float64(e.torrent.TotalLength-downloaded)/dlRate) * time.Second
		eta = &remaining
	}

	e.mu.Lock()
	state := e.state
	completedAt := e.completedAt
	e.mu.Unlock()

	return Stats{
		State:       state,
		Downloaded:  downloaded,
		Uploaded:    uploaded,
		DLRate:      dlRate,
		ULRate:      ulRate,
		Peers:       e.peers.PeerCount(),
		Progress:    progress,
		ETA:         eta,
		CompletedAt: completedAt,
	}
}

// PeerView snapshots every connected peer session for external observers.
func (e *Engine) PeerView() []peer.PeerView {
	return e.peers.PeerViews()
}

// TrackerView snapshots every tracker URL's current status.
func (e *Engine) TrackerView() []tracker.Record {
	return e.trk.Records()
}

// PiecesView summarizes piece-level possession and availability.
func (e *Engine) PiecesView() PiecesView {
	bf := e.pieces.Bitfield()
	return PiecesView{
		Total:        e.torrent.NumPieces(),
		Have:         bf.Count(),
		InProgress:   e.pieces.InProgressCount(),
		BitMap:       bf.Bytes(),
		Availability: e.pieces.Availability(),
	}
}

// FilesView describes every file in the torrent alongside its download
// progress and assigned priority.
func (e *Engine) FilesView() []FileView {
	bf := e.pieces.Bitfield()
	progress := e.diskMapper.FileProgress(bf)

	e.mu.Lock()
	defer e.mu.Unlock()

	views := make([]FileView, len(e.torrent.Files))
	for i, f := range e.torrent.Files {
		priority, ok := e.filePriorities[i]
		if !ok {
			priority = selector.Normal
		}
		views[i] = FileView{
			Path:       joinPath(f.Path),
			Size:       f.Length,
			Downloaded: int64(progress[i] * float64(f.Length)),
			Priority:   priority,
		}
	}
	return views
}

func joinPath(components []string) string {
	out := ""
	for i, c := range components {
		if i > 0 {
			out += "/"
		}
		out += c
	}
	return out
}
