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
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// Status is a tracker URL's last-known health, surfaced on the tracker
// view.
type Status int

// The four tracker statuses.
const (
	Idle Status = iota
	Updating
	Working
	StatusError
)

func (s Status) String() string {
	switch s {
	case Updating:
		return "updating"
	case Working:
		return "working"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Record is one tracker URL's observable state, as exposed by
// engine.Engine's tracker_view.
type Record struct {
	URL            string
	Status         Status
	Message        string
	LastAnnounceAt time.Time
	NextAnnounceAt time.Time
	Peers          int
	Seeds          int
	Leechers       int
}

// Config tunes the multi-tier tracker's default and bounding announce
// cadence, used when a tracker's reply omits "interval"/"min interval".
type Config struct {
	DefaultInterval time.Duration `yaml:"default_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

func (c Config) applyDefaults() Config {
	if c.DefaultInterval == 0 {
		c.DefaultInterval = 30 * time.Minute
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = 2 * time.Hour
	}
	return c
}

// Tracker drives announces across a torrent's primary URL and its tiered
// announce-list, trying each in order and stopping at the first success.
// A "failure reason" from one tracker does not short-circuit the round; the
// client moves on to the next tier URL (spec Open Question resolution).
type Tracker struct {
	config Config
	client Client
	clk    clock.Clock
	stats  tally.Scope
	logger *zap.SugaredLogger

	mu       sync.Mutex
	records  map[string]*Record
	order    []string
	interval time.Duration
}

// New constructs a Tracker for the given primary announce URL plus tiered
// announce-list (each tier tried in order; within a tier, order is
// preserved). A nil/empty announceList falls back to just the primary URL.
func New(config Config, client Client, clk clock.Clock, stats tally.Scope, logger *zap.SugaredLogger, primary string, announceList [][]string) *Tracker {
	config = config.applyDefaults()

	var order []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		order = append(order, u)
	}
	add(primary)
	for _, tier := range announceList {
		for _, u := range tier {
			add(u)
		}
	}

	records := make(map[string]*Record, len(order))
	for _, u := range order {
		records[u] = &Record{URL: u, Status: Idle}
	}

	return &Tracker{
		config:   config,
		client:   client,
		clk:      clk,
		stats:    stats.Tagged(map[string]string{"module": "tracker"}),
		logger:   logger,
		records:  records,
		order:    order,
		interval: config.DefaultInterval,
	}
}

// Interval returns the currently-in-effect announce interval, as set by the
// most recent successful announce (lower-bounded by min interval).
func (t *Tracker) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Announce tries every tracker URL in order, stopping at the first
// success. It records per-URL status/message for the tracker view and
// returns the winning response, or the last error if every URL failed.
func (t *Tracker) Announce(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for _, url := range t.order {
		t.markUpdating(url)
		resp, err := t.client.Announce(ctx, url, req)
		if err != nil {
			t.markError(url, err)
			lastErr = err
			t.stats.Counter("announce_failure").Inc(1)
			continue
		}
		t.markSuccess(url, resp)
		t.applyInterval(resp)
		t.stats.Counter("announce_success").Inc(1)
		return resp, nil
	}
	return nil, lastErr
}

func (t *Tracker) applyInterval(resp *Response) {
	interval := resp.Interval
	if interval == 0 {
		interval = t.config.DefaultInterval
	}
	if resp.MinInterval > interval {
		interval = resp.MinInterval
	}
	if interval > t.config.MaxInterval {
		interval = t.config.DefaultInterval
	}
	t.mu.Lock()
	t.interval = interval
	t.mu.Unlock()
}

func (t *Tracker) markUpdating(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.records[url]
	r.Status = Updating
	r.LastAnnounceAt = t.clk.Now()
}

func (t *Tracker) markError(url string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.records[url]
	r.Status = StatusError
	r.Message = err.Error()
	r.NextAnnounceAt = t.clk.Now().Add(t.interval)
}

func (t *Tracker) markSuccess(url string, resp *Response) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.records[url]
	r.Status = Working
	r.Message = ""
	r.Peers = len(resp.Peers)
	r.Seeds = resp.Complete
	r.Leechers = resp.Incomplete
	r.NextAnnounceAt = t.clk.Now().Add(t.interval)
}

// Records snapshots every tracked URL's current Record, in announce order.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, 0, len(t.order))
	for _, u := range t.order {
		out = append(out, *t.records[u])
	}
	return out
}
