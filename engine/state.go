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

// Package engine implements the per-torrent supervisor: the state machine
// that drives tracker announces, peer connection attempts, stats
// aggregation, and periodic persistence, tying together the bencode,
// metainfo, bitfield, piece, selector, disk, peer, and tracker packages.
package engine

// State is the supervisor's place in the engine state machine.
type State int

// The engine states. Paused is entered only from Downloading or Seeding
// (Pause rejects every other state, Starting included); Error is reachable
// from any non-terminal state; Stop always returns to Stopped.
const (
	Stopped State = iota
	Starting
	Downloading
	Seeding
	Paused
	Error
)

// String renders the state the way it appears on a persisted snapshot's
// state_label field.
func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Downloading:
		return "downloading"
	case Seeding:
		return "seeding"
	case Paused:
		return "paused"
	case Error:
		return "error"
	default:
		return "stopped"
	}
}
