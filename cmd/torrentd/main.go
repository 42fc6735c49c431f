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

// Command torrentd is a standalone CLI driving a single engine.Engine: add
// a .torrent file or magnet URI, watch it download, and serve uploads to
// the swarm until stopped.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/alecthomas/kingpin"
	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seedcore-io/torrentd/cloudfetch"
	"github.com/seedcore-io/torrentd/engine"
	"github.com/seedcore-io/torrentd/metainfo"
)

var (
	app = kingpin.New("torrentd", "standalone BitTorrent download engine")

	configFile = app.Flag("config", "YAML configuration file path").Short('c').Default("").String()
	listenPort = app.Flag("listen-port", "TCP port to accept inbound peer connections on").Short('p').Default("0").Int()

	addCmd       = app.Command("add", "add a torrent and download it")
	addTorrent   = addCmd.Flag("torrent", ".torrent file path").String()
	addMagnet    = addCmd.Flag("magnet", "magnet URI").String()
	addCloudOnly = addCmd.Flag("cloud", "use the debrid cloud-fetch path instead of the swarm").Bool()
)

func main() {
	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case addCmd.FullCommand():
		runAdd()
	}
}

func runAdd() {
	cfg, err := loadConfig(*configFile)
	if err != nil {
		fatalf("load config: %s", err)
	}

	logger := newLogger(cfg.ZapLogging)
	defer logger.Sync()

	stats := tally.NoopScope // a real deployment wires a tally.Reporter here; see metrics.New in the teacher.

	t, err := loadTorrent(*addTorrent, *addMagnet)
	if err != nil {
		fatalf("load torrent: %s", err)
	}

	if *addCloudOnly {
		runCloudFetch(cfg, t, logger)
		return
	}

	store, err := newFileStore(cfg.StateDir)
	if err != nil {
		fatalf("init state store: %s", err)
	}

	var resumeBits []byte
	if prior, err := store.loadSnapshot(t.InfoHash.Hex()); err != nil {
		logger.Warnf("load prior snapshot: %s", err)
	} else if prior != nil {
		resumeBits = prior.OurBits
	}

	eng, err := engine.New(
		cfg.Engine, t, cfg.DownloadDir, store, engine.NopEvents{},
		clock.New(), stats, logger, nil, "torrentd-cli", resumeBits,
	)
	if err != nil {
		fatalf("create engine: %s", err)
	}

	if *listenPort != 0 {
		go acceptInbound(eng, *listenPort, logger)
	}

	if err := eng.Start(); err != nil {
		fatalf("start engine: %s", err)
	}
	logger.Infof("started %s (%s)", t.Name, t.InfoHash.Hex())

	waitForSignalThenStop(eng, logger)
}

func runCloudFetch(cfg Config, t *metainfo.Torrent, logger *zap.SugaredLogger) {
	if !cfg.CloudFetch.Enabled || cfg.CloudFetch.RealDebridKey == "" {
		fatalf("cloudfetch requested but cloudfetch.enabled/real_debrid_key not configured")
	}

	provider := cloudfetch.NewRealDebridProvider(cfg.CloudFetch.RealDebridKey)
	client := cloudfetch.New(cfg.CloudFetch.Client, provider, clock.New(), tally.NoopScope, logger)

	ctx := contextWithInterrupt()

	id, err := client.SubmitMagnet(ctx, magnetFromTorrent(t))
	if err != nil {
		fatalf("submit to %s: %s", provider.Name(), err)
	}
	logger.Infof("submitted %s to %s, awaiting remote download", t.InfoHash.Hex(), provider.Name())

	if err := client.AwaitReady(ctx, id); err != nil {
		fatalf("await ready: %s", err)
	}

	dest := filepath.Join(cfg.DownloadDir, t.Name)
	if err := client.Download(ctx, id, dest); err != nil {
		fatalf("download: %s", err)
	}
	logger.Infof("cloud download complete: %s", dest)
}

func loadTorrent(torrentPath, magnetURI string) (*metainfo.Torrent, error) {
	switch {
	case torrentPath != "":
		b, err := os.ReadFile(torrentPath)
		if err != nil {
			return nil, fmt.Errorf("read torrent file: %s", err)
		}
		return metainfo.Parse(b)
	case magnetURI != "":
		m, err := metainfo.ParseMagnet(magnetURI)
		if err != nil {
			return nil, err
		}
		return m.ToTorrent(), nil
	default:
		return nil, fmt.Errorf("one of --torrent or --magnet is required")
	}
}

func magnetFromTorrent(t *metainfo.Torrent) string {
	return "magnet:?xt=urn:btih:" + t.InfoHash.Hex()
}

func newLogger(cfg ZapConfig) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(cfg.Level))

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	l, err := zapCfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

func acceptInbound(eng *engine.Engine, port int, logger *zap.SugaredLogger) {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		logger.Errorf("listen on port %d: %s", port, err)
		return
	}
	defer ln.Close()

	for {
		nc, err := ln.Accept()
		if err != nil {
			logger.Errorf("accept: %s", err)
			return
		}
		go func() {
			if err := eng.AcceptPeer(nc, nc.RemoteAddr().String()); err != nil {
				logger.Debugf("accept peer %s: %s", nc.RemoteAddr(), err)
			}
		}()
	}
}

func waitForSignalThenStop(eng *engine.Engine, logger *zap.SugaredLogger) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc
	logger.Info("shutting down")
	eng.Stop()
}

func contextWithInterrupt() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		cancel()
	}()
	return ctx
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "torrentd: "+format+"\n", args...)
	os.Exit(1)
}
