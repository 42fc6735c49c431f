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

// Package cloudfetch implements the alternative cloud download path: a
// torrent (or magnet) is delegated to a third-party debrid service, which
// does the actual swarm participation remotely and hands back a set of
// direct HTTP URLs. This package polls the provider until those URLs are
// ready and then streams them into the download directory with the same
// file layout the torrent engine's disk.Mapper uses (plain file writes, not
// through a disk.Mapper), without ever touching the piece, peer, or tracker
// packages.
package cloudfetch

import "context"

// TorrentID identifies a torrent the way a debrid provider tracks it --
// opaque from this package's point of view.
type TorrentID string

// Status is the lifecycle state of a cloud download as reported by the
// provider.
type Status int

// The cloud download lifecycle states.
const (
	Queued Status = iota
	Downloading
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Downloading:
		return "downloading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "queued"
	}
}

// File is one file of a cloud-resolved torrent: its relative path (mirrors
// metainfo.File.Path) and the direct URL the provider will stream bytes
// from.
type File struct {
	Path []string
	Size int64
	URL  string
}

// Provider is the narrow interface a debrid service implements: submit a
// magnet or raw .torrent bytes, poll progress, and fetch the resulting
// direct-download file list once ready.
type Provider interface {
	// Name identifies the provider in logs, errors and stats tags.
	Name() string
	// AddMagnet submits a magnet URI and returns a provider-assigned id.
	AddMagnet(ctx context.Context, magnetURI string) (TorrentID, error)
	// AddTorrentFile submits raw .torrent bytes and returns a
	// provider-assigned id.
	AddTorrentFile(ctx context.Context, torrentBytes []byte) (TorrentID, error)
	// Status reports a submitted torrent's current lifecycle state.
	Status(ctx context.Context, id TorrentID) (Status, error)
	// Files returns the resolved direct-download file list. Callers
	// should only call this once Status reports Ready.
	Files(ctx context.Context, id TorrentID) ([]File, error)
}
