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
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/seedcore-io/torrentd/engine"
)

// fileStore persists each torrent's Snapshot as one JSON file per info
// hash under a state directory. It is the standalone CLI's host storage
// collaborator; a long-running daemon embedding engine.Engine would swap
// this for a real database-backed Store.
type fileStore struct {
	dir string
	mu  sync.Mutex
}

func newFileStore(dir string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir state dir: %s", err)
	}
	return &fileStore{dir: dir}, nil
}

// SaveSnapshot implements engine.Store.
func (s *fileStore) SaveSnapshot(snap engine.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %s", err)
	}

	path := filepath.Join(s.dir, snap.InfoHash.String()+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %s", err)
	}
	return os.Rename(tmp, path)
}

// loadSnapshot reads back a previously persisted snapshot, if any.
func (s *fileStore) loadSnapshot(infoHashHex string) (*engine.Snapshot, error) {
	path := filepath.Join(s.dir, infoHashHex+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %s", err)
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %s", err)
	}
	return &snap, nil
}
