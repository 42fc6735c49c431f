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
package cloudfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/cenkalli/backoff"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// Config tunes the poll cadence and HTTP retry behavior of a Client.
type Config struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	MaxRetries   uint64        `yaml:"max_retries"`
}

func (c Config) applyDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = 30 * time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	return c
}

// Client drives one provider through submit -> poll -> stream-to-disk.
type Client struct {
	config   Config
	provider Provider
	httpc    *http.Client
	clk      clock.Clock
	stats    tally.Scope
	logger   *zap.SugaredLogger
}

// New constructs a Client for provider.
func New(config Config, provider Provider, clk clock.Clock, stats tally.Scope, logger *zap.SugaredLogger) *Client {
	config = config.applyDefaults()
	if clk == nil {
		clk = clock.New()
	}
	return &Client{
		config:   config,
		provider: provider,
		httpc:    &http.Client{Timeout: 2 * time.Minute},
		clk:      clk,
		stats:    stats.Tagged(map[string]string{"module": "cloudfetch", "provider": provider.Name()}),
		logger:   logger,
	}
}

// SubmitMagnet hands magnetURI to the provider and returns its assigned id.
func (c *Client) SubmitMagnet(ctx context.Context, magnetURI string) (TorrentID, error) {
	return c.provider.AddMagnet(ctx, magnetURI)
}

// SubmitTorrentFile hands raw .torrent bytes to the provider and returns
// its assigned id.
func (c *Client) SubmitTorrentFile(ctx context.Context, torrentBytes []byte) (TorrentID, error) {
	return c.provider.AddTorrentFile(ctx, torrentBytes)
}

// AwaitReady polls the provider at PollInterval until it reports Ready,
// Failed, PollTimeout elapses, or ctx is cancelled.
func (c *Client) AwaitReady(ctx context.Context, id TorrentID) error {
	deadline := c.clk.Now().Add(c.config.PollTimeout)
	ticker := c.clk.Ticker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		status, err := c.provider.Status(ctx, id)
		if err != nil {
			c.logger.With("provider", c.provider.Name()).Warnf("poll status: %s", err)
		} else {
			switch status {
			case Ready:
				return nil
			case Failed:
				return fmt.Errorf("cloudfetch: %s: torrent %s failed remotely", c.provider.Name(), id)
			}
		}

		if c.clk.Now().After(deadline) {
			return fmt.Errorf("cloudfetch: %s: torrent %s did not become ready within %s", c.provider.Name(), id, c.config.PollTimeout)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Download fetches the provider's resolved file list and streams each
// file's URL to <downloadDir>/<path...>, mirroring the layout the torrent
// engine's disk.Mapper uses for its own files. Each file's GET is retried
// with exponential backoff, grounded on the original debrid client's
// rate-limited request queue.
func (c *Client) Download(ctx context.Context, id TorrentID, downloadDir string) error {
	files, err := c.provider.Files(ctx, id)
	if err != nil {
		return fmt.Errorf("list files: %s", err)
	}
	for _, f := range files {
		if err := c.downloadFile(ctx, f, downloadDir); err != nil {
			return fmt.Errorf("download %s: %s", filepath.Join(f.Path...), err)
		}
	}
	return nil
}

func (c *Client) downloadFile(ctx context.Context, f File, downloadDir string) error {
	dest := filepath.Join(append([]string{downloadDir}, f.Path...)...)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("mkdir: %s", err)
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.config.MaxRetries)
	return backoff.Retry(func() error {
		return c.streamOnce(ctx, f.URL, dest)
	}, backoff.WithContext(b, ctx))
}

func (c *Client) streamOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("new request: %s", err))
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.stats.Counter("fetch_retry").Inc(1)
		return fmt.Errorf("get %s: %s", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		c.stats.Counter("fetch_retry").Inc(1)
		return fmt.Errorf("get %s: server status %d", url, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return backoff.Permanent(fmt.Errorf("get %s: status %d", url, resp.StatusCode))
	}

	out, err := os.Create(dest)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create %s: %s", dest, err))
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write %s: %s", dest, err)
	}
	return out.Sync()
}
