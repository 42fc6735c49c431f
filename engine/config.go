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

// Config tunes the supervisor's own timers. Peer and tracker sub-configs
// are nested so a single YAML document configures the whole engine, the
// way scheduler.Config nests announcer.Config and conn.Config in the
// teacher.
type Config struct {
	StatsTick       time.Duration  `yaml:"stats_tick"`
	PersistInterval time.Duration  `yaml:"persist_interval"`
	MaxPeers        int            `yaml:"max_peers"`
	IdleSweep       time.Duration  `yaml:"idle_sweep"`
	IdleTimeout     time.Duration  `yaml:"idle_timeout"`
	Strategy        selector.Strategy `yaml:"-"`
	Peer            peer.Config    `yaml:"peer"`
	Tracker         tracker.Config `yaml:"tracker"`
}

func (c Config) applyDefaults() Config {
	if c.StatsTick == 0 {
		c.StatsTick = time.Second
	}
	if c.PersistInterval == 0 {
		c.PersistInterval = 30 * time.Second
	}
	if c.MaxPeers == 0 {
		c.MaxPeers = 50
	}
	if c.IdleSweep == 0 {
		c.IdleSweep = time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	return c
}
