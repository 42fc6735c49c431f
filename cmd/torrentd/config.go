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
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/seedcore-io/torrentd/cloudfetch"
	"github.com/seedcore-io/torrentd/engine"
)

// ZapConfig mirrors the handful of zap.Config fields worth exposing in
// YAML; everything else uses the production defaults.
type ZapConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig holds the metrics name prefix (default "torrentd"); it
// does not select a reporter backend.
type MetricsConfig struct {
	Prefix string `yaml:"prefix"`
}

// CloudFetchConfig configures the optional debrid-backed download path.
type CloudFetchConfig struct {
	Enabled        bool             `yaml:"enabled"`
	RealDebridKey  string           `yaml:"real_debrid_key"`
	Client         cloudfetch.Config `yaml:"client"`
}

// Config is the top-level torrentd configuration document.
type Config struct {
	DownloadDir string           `yaml:"download_dir"`
	StateDir    string           `yaml:"state_dir"`
	Engine      engine.Config    `yaml:"engine"`
	ZapLogging  ZapConfig        `yaml:"logging"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	CloudFetch  CloudFetchConfig `yaml:"cloudfetch"`
}

func (c Config) applyDefaults() Config {
	if c.DownloadDir == "" {
		c.DownloadDir = "./downloads"
	}
	if c.StateDir == "" {
		c.StateDir = "./state"
	}
	if c.ZapLogging.Level == "" {
		c.ZapLogging.Level = "info"
	}
	if c.Metrics.Prefix == "" {
		c.Metrics.Prefix = "torrentd"
	}
	return c
}

// loadConfig reads and decodes a YAML configuration document from path. An
// empty path yields the default Config, so torrentd can run with no file at
// all using pure defaults.
func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg.applyDefaults(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %s", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %s", err)
	}
	return cfg.applyDefaults(), nil
}
