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

	"github.com/seedcore-io/torrentd/core"
)

// Snapshot is the persisted session record handed to the host's storage
// layer every PersistInterval and on every state transition. The engine is
// its sole producer; it never reads a Snapshot back except to seed OurBits
// on reopen.
type Snapshot struct {
	InfoHash     core.InfoHash
	Name         string
	OurBits      []byte
	NumPieces    int
	Downloaded   int64
	Uploaded     int64
	StateLabel   string
	DownloadDir  string
	AddedAt      time.Time
	LastActivity time.Time
	CompletedAt  *time.Time
	SourceTag    string
}

// Store is the host's persistence collaborator. It is an external
// dependency (key-value session storage) the engine never implements
// itself -- only produces snapshots for.
type Store interface {
	SaveSnapshot(Snapshot) error
}

// NopStore discards every snapshot. Useful for engines that run without a
// host-provided store (e.g. tests, or a one-shot CLI download).
type NopStore struct{}

// SaveSnapshot implements Store.
func (NopStore) SaveSnapshot(Snapshot) error { return nil }
