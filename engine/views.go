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

	"github.com/seedcore-io/torrentd/selector"
)

// Stats is the aggregate snapshot published on every tick and returned by
// Engine.Stats.
type Stats struct {
	State      State
	Downloaded int64
	Uploaded   int64
	DLRate     float64 // bytes/sec
	ULRate     float64 // bytes/sec
	Peers      int
	Progress   float64 // 0..1
	ETA        *time.Duration
	CompletedAt *time.Time
}

// FileView describes one file of the torrent for the external files_view.
type FileView struct {
	Path       string
	Size       int64
	Downloaded int64
	Priority   selector.Priority
}

// PiecesView summarizes piece-level state for the external pieces_view.
type PiecesView struct {
	Total        int
	Have         int
	InProgress   int
	BitMap       []byte
	Availability map[int]int
}

// Events receives the engine's three external notifications. Implementors
// must return promptly -- these are invoked synchronously from the
// supervisor's own goroutines.
type Events interface {
	OnStateChange(State)
	OnTick(Stats)
	OnComplete()
}

// NopEvents implements Events with no-ops, the default when a caller does
// not care to observe the engine.
type NopEvents struct{}

// OnStateChange implements Events.
func (NopEvents) OnStateChange(State) {}

// OnTick implements Events.
func (NopEvents) OnTick(Stats) {}

// OnComplete implements Events.
func (NopEvents) OnComplete() {}
