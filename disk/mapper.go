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

// Package disk projects a torrent's flat, concatenated byte stream onto the
// piece-indexed random I/O its files actually require: allocation, writing
// verified pieces, and reading pieces back out for upload.
package disk

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/seedcore-io/torrentd/bitfield"
	"github.com/seedcore-io/torrentd/metainfo"
)

// span is one (file, offset_in_file, bytes) triple a piece-range write or
// read fans out to.
type span struct {
	file       metainfo.File
	fileOffset int64
	length     int64
}

// Mapper maps pieces of a torrent onto the files on disk beneath root.
type Mapper struct {
	mu          sync.Mutex
	root        string
	name        string
	files       []metainfo.File
	pieceLength int64
	totalLength int64
	isSingle    bool
}

// New constructs a Mapper for a torrent's file table rooted at root. For a
// single-file torrent the file lives directly at <root>/<name>; for
// multi-file torrents, under <root>/<name>/<path...>, matching the paths
// already produced by metainfo.Parse.
func New(root string, t *metainfo.Torrent) *Mapper {
	return &Mapper{
		root:        root,
		name:        t.Name,
		files:       t.Files,
		pieceLength: t.PieceLength,
		totalLength: t.TotalLength,
		isSingle:    t.IsSingleFile(),
	}
}

func (m *Mapper) diskPath(f metainfo.File) string {
	parts := append([]string{m.root}, f.Path...)
	return filepath.Join(parts...)
}

// Allocate creates parent directories and sets every file's length to its
// declared size. Sparse allocation is acceptable.
func (m *Mapper) Allocate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.files {
		path := m.diskPath(f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("mkdir for %q: %s", path, err)
		}
		fh, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return fmt.Errorf("create %q: %s", path, err)
		}
		err = fh.Truncate(f.Length)
		closeErr := fh.Close()
		if err != nil {
			return fmt.Errorf("truncate %q: %s", path, err)
		}
		if closeErr != nil {
			return fmt.Errorf("close %q: %s", path, closeErr)
		}
	}
	return nil
}

// spansFor computes the (file, offset_in_file, length) triples touched by
// the global byte range [global, global+length).
func (m *Mapper) spansFor(global, length int64) []span {
	var spans []span
	end := global + length
	for _, f := range m.files {
		fStart := f.Offset
		fEnd := f.Offset + f.Length
		if fEnd <= global || fStart >= end {
			continue
		}
		rangeStart := global
		if fStart > rangeStart {
			rangeStart = fStart
		}
		rangeEnd := end
		if fEnd < rangeEnd {
			rangeEnd = fEnd
		}
		spans = append(spans, span{
			file:       f,
			fileOffset: rangeStart - fStart,
			length:     rangeEnd - rangeStart,
		})
	}
	return spans
}

// WritePiece writes the bytes of piece pieceIndex (or a sub-range of it
// identified by offset/length) to every file it spans, flushing each
// touched file after its final byte of the write lands.
func (m *Mapper) WritePiece(pieceIndex int, offset int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	global := int64(pieceIndex)*m.pieceLength + int64(offset)
	spans := m.spansFor(global, int64(len(data)))
	var consumed int64
	for _, s := range spans {
		path := m.diskPath(s.file)
		fh, err := os.OpenFile(path, os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open %q: %s", path, err)
		}
		if _, err := fh.WriteAt(data[consumed:consumed+s.length], s.fileOffset); err != nil {
			fh.Close()
			return fmt.Errorf("write %q: %s", path, err)
		}
		if err := fh.Sync(); err != nil {
			fh.Close()
			return fmt.Errorf("flush %q: %s", path, err)
		}
		if err := fh.Close(); err != nil {
			return fmt.Errorf("close %q: %s", path, err)
		}
		consumed += s.length
	}
	return nil
}

// ReadPiece reads length bytes starting at offset within piece pieceIndex,
// assembling the result across every file it spans. Used to answer upload
// REQUESTs.
func (m *Mapper) ReadPiece(pieceIndex int, offset int, length int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	global := int64(pieceIndex)*m.pieceLength + int64(offset)
	spans := m.spansFor(global, int64(length))
	out := make([]byte, length)
	var consumed int64
	for _, s := range spans {
		path := m.diskPath(s.file)
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %q: %s", path, err)
		}
		n, err := fh.ReadAt(out[consumed:consumed+s.length], s.fileOffset)
		fh.Close()
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read %q: %s", path, err)
		}
		consumed += int64(n)
	}
	return out, nil
}

// Exists reports whether every file in the torrent is present on disk.
func (m *Mapper) Exists() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.files {
		if _, err := os.Stat(m.diskPath(f)); err != nil {
			return false
		}
	}
	return true
}

// DeleteAll removes every file belonging to the torrent, used by removal
// with "delete data". Directories are left behind.
func (m *Mapper) DeleteAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.files {
		if err := os.Remove(m.diskPath(f)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %q: %s", m.diskPath(f), err)
		}
	}
	return nil
}

// FileProgress returns, for each file, the fraction of its byte range
// covered by verified pieces in bf.
func (m *Mapper) FileProgress(bf *bitfield.Bitfield) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]float64, len(m.files))
	for i, f := range m.files {
		if f.Length == 0 {
			out[i] = 1
			continue
		}
		firstPiece := int(f.Offset / m.pieceLength)
		lastPiece := int((f.Offset + f.Length - 1) / m.pieceLength)
		var coveredBytes int64
		for p := firstPiece; p <= lastPiece; p++ {
			if p >= bf.Len() || !bf.Test(p) {
				continue
			}
			pStart := int64(p) * m.pieceLength
			pEnd := pStart + m.pieceLength
			if pEnd > m.totalLength {
				pEnd = m.totalLength
			}
			rStart := f.Offset
			if pStart > rStart {
				rStart = pStart
			}
			rEnd := f.Offset + f.Length
			if pEnd < rEnd {
				rEnd = pEnd
			}
			if rEnd > rStart {
				coveredBytes += rEnd - rStart
			}
		}
		out[i] = float64(coveredBytes) / float64(f.Length)
	}
	return out
}
