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

// Package selector chooses the next piece to request from a peer, according
// to one of several strategies: rarest-first, sequential, random, or
// endgame.
package selector

import (
	"math/rand"

	"github.com/seedcore-io/torrentd/bitfield"
)

// Strategy identifies a piece selection policy.
type Strategy int

// The supported selection strategies.
const (
	// RarestFirst prefers pieces advertised by the fewest connected peers.
	// This is the default.
	RarestFirst Strategy = iota
	// Sequential prefers the lowest-index missing piece.
	Sequential
	// Random picks uniformly among candidates.
	Random
)

// Priority tags a piece for file-priority-aware selection. Higher values are
// preferred; Skip removes a piece from candidacy entirely.
type Priority int

// The file priority levels from lowest to highest, plus Skip which excludes
// a piece's blocks from every candidate set.
const (
	Skip Priority = iota
	Low
	Normal
	High
	Critical
)

// EndgameMinRemaining is the piece-count threshold below which the selector
// SHOULD enter endgame mode.
const EndgameMinRemaining = 10

// EndgameMissingFraction is the missing-fraction threshold below which the
// selector SHOULD enter endgame mode.
const EndgameMissingFraction = 0.05

// ShouldEndgame reports whether endgame mode should be entered given the
// current count of missing pieces out of total.
func ShouldEndgame(missing, total int) bool {
	if total == 0 {
		return false
	}
	if missing < EndgameMinRemaining {
		return true
	}
	return float64(missing)/float64(total) < EndgameMissingFraction
}

// Selector picks the next piece to request given the local and peer
// bitfields, the set of pieces already in progress, and the global
// availability histogram.
type Selector struct {
	strategy Strategy
	rng      *rand.Rand
}

// New returns a Selector using strategy. rngSeed controls the Random
// strategy's determinism (tests pass a fixed seed).
func New(strategy Strategy, rngSeed int64) *Selector {
	return &Selector{strategy: strategy, rng: rand.New(rand.NewSource(rngSeed))}
}

// SetStrategy changes the active strategy.
func (s *Selector) SetStrategy(strategy Strategy) {
	s.strategy = strategy
}

// Select returns the next piece index to fetch from peer, or false if none
// is available. priorities may be nil, meaning all pieces are Normal.
// availability maps piece index to the number of connected peers advertising
// it; it is only consulted by RarestFirst.
func (s *Selector) Select(
	ours, peer *bitfield.Bitfield,
	inProgress map[int]bool,
	availability map[int]int,
	priorities map[int]Priority,
	endgame bool,
) (int, bool) {
	candidates := s.candidates(ours, peer, inProgress, priorities, endgame)
	if len(candidates) == 0 {
		return 0, false
	}

	switch s.strategy {
	case Sequential:
		return lowestIndex(candidates, priorities), true
	case Random:
		return s.randomPick(candidates), true
	case RarestFirst:
		fallthrough
	default:
		return rarestFirstPick(candidates, availability, priorities), true
	}
}

func (s *Selector) candidates(
	ours, peer *bitfield.Bitfield,
	inProgress map[int]bool,
	priorities map[int]Priority,
	endgame bool,
) []int {
	var out []int
	for i := 0; i < ours.Len(); i++ {
		if p, tagged := priorities[i]; tagged && p == Skip {
			continue
		}
		if !peer.Test(i) {
			continue
		}
		if ours.Test(i) {
			continue
		}
		if !endgame && inProgress[i] {
			continue
		}
		out = append(out, i)
	}
	return out
}

func lowestIndex(candidates []int, priorities map[int]Priority) int {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if higherOrEqualPriority(c, best, priorities) && c < best {
			best = c
		} else if priorityOf(c, priorities) > priorityOf(best, priorities) {
			best = c
		}
	}
	return best
}

func (s *Selector) randomPick(candidates []int) int {
	return candidates[s.rng.Intn(len(candidates))]
}

func priorityOf(i int, priorities map[int]Priority) Priority {
	if p, tagged := priorities[i]; tagged {
		return p
	}
	return Normal
}

func higherOrEqualPriority(a, b int, priorities map[int]Priority) bool {
	return priorityOf(a, priorities) >= priorityOf(b, priorities)
}

func rarestFirstPick(candidates []int, availability map[int]int, priorities map[int]Priority) int {
	pq := newPriorityQueue()
	for _, c := range candidates {
		// Higher priority sorts first; within a priority tier, lower
		// availability (rarer) sorts first.
		pq.push(item{piece: c, priority: priorityOf(c, priorities), availability: availability[c]})
	}
	return pq.pop().piece
}
