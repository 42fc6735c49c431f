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

// Package metainfo parses .torrent files and magnet URIs into a validated
// Torrent descriptor.
package metainfo

import (
	"fmt"
	"strings"

	"github.com/seedcore-io/torrentd/bencode"
	"github.com/seedcore-io/torrentd/core"
)

// File describes one file within a (possibly multi-file) torrent, as laid
// out in the flat concatenated byte stream.
type File struct {
	// Path is the file's path components relative to the torrent's
	// download directory (for multi-file torrents, nested under the
	// torrent's name).
	Path []string
	// Length is the file's size in bytes.
	Length int64
	// Offset is the file's starting byte offset in the flat stream.
	Offset int64
}

// Torrent is an immutable, validated torrent descriptor. A magnet-derived
// Torrent has an empty PieceHashes table and zero TotalLength; such a
// descriptor is "awaiting metadata" and callers must not attempt to start
// downloading it.
type Torrent struct {
	InfoHash     core.InfoHash
	Name         string
	PieceLength  int64
	PieceHashes  []core.PieceHash
	Files        []File
	TotalLength  int64
	Announce     string
	AnnounceList [][]string
	Comment      string
	CreatedBy    string
}

// IsSingleFile reports whether t describes a single-file torrent.
func (t *Torrent) IsSingleFile() bool {
	return len(t.Files) == 1 && len(t.Files[0].Path) == 1 && t.Files[0].Path[0] == t.Name
}

// AwaitingMetadata reports whether t was derived from a magnet URI and has
// no piece table yet.
func (t *Torrent) AwaitingMetadata() bool {
	return len(t.PieceHashes) == 0
}

// NumPieces returns the number of pieces in t.
func (t *Torrent) NumPieces() int {
	return len(t.PieceHashes)
}

// PieceLengthAt returns the length of piece i, accounting for the final
// (possibly short) piece.
func (t *Torrent) PieceLengthAt(i int) int64 {
	if i == len(t.PieceHashes)-1 {
		if rem := t.TotalLength % t.PieceLength; rem != 0 {
			return rem
		}
	}
	return t.PieceLength
}

// ParseError indicates a malformed .torrent file, naming the offending field.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("metainfo: invalid field %q: %s", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse validates and parses the bytes of a .torrent file into a Torrent
// descriptor. The info hash is computed over the exact source bytes of the
// info dictionary, never a re-encoding.
func Parse(b []byte) (*Torrent, error) {
	root, err := bencode.Decode(b)
	if err != nil {
		return nil, &ParseError{"<root>", err}
	}
	if root.Kind != bencode.KindDict {
		return nil, &ParseError{"<root>", fmt.Errorf("not a dictionary")}
	}

	t := &Torrent{}

	if announce, ok := root.Dict["announce"]; ok {
		s, err := announce.String()
		if err != nil {
			return nil, &ParseError{"announce", err}
		}
		t.Announce = s
	}

	if al, ok := root.Dict["announce-list"]; ok {
		list, err := parseAnnounceList(al)
		if err != nil {
			return nil, &ParseError{"announce-list", err}
		}
		t.AnnounceList = list
	}

	if c, ok := root.Dict["comment"]; ok {
		if s, err := c.String(); err == nil {
			t.Comment = s
		}
	}
	if c, ok := root.Dict["created by"]; ok {
		if s, err := c.String(); err == nil {
			t.CreatedBy = s
		}
	}

	infoVal, ok := root.Dict["info"]
	if !ok {
		return nil, &ParseError{"info", fmt.Errorf("missing field")}
	}
	if infoVal.Kind != bencode.KindDict {
		return nil, &ParseError{"info", fmt.Errorf("not a dictionary")}
	}

	rawInfo, err := bencode.RawField(b, "info")
	if err != nil {
		return nil, &ParseError{"info", err}
	}
	t.InfoHash = core.NewInfoHashFromBytes(rawInfo)

	if err := parseInfo(infoVal, t); err != nil {
		return nil, err
	}

	return t, nil
}

func parseAnnounceList(v *bencode.Value) ([][]string, error) {
	if v.Kind != bencode.KindList {
		return nil, fmt.Errorf("not a list")
	}
	var tiers [][]string
	for _, tierVal := range v.List {
		if tierVal.Kind != bencode.KindList {
			return nil, fmt.Errorf("tier is not a list")
		}
		var tier []string
		for _, urlVal := range tierVal.List {
			s, err := urlVal.String()
			if err != nil {
				return nil, fmt.Errorf("tracker url: %s", err)
			}
			tier = append(tier, s)
		}
		tiers = append(tiers, tier)
	}
	return tiers, nil
}

func parseInfo(info *bencode.Value, t *Torrent) error {
	nameVal, ok := info.Dict["name"]
	if !ok {
		return &ParseError{"info.name", fmt.Errorf("missing field")}
	}
	name, err := nameVal.String()
	if err != nil {
		return &ParseError{"info.name", err}
	}
	t.Name = name

	pieceLenVal, ok := info.Dict["piece length"]
	if !ok {
		return &ParseError{"info.piece length", fmt.Errorf("missing field")}
	}
	pieceLen, err := pieceLenVal.GetInt()
	if err != nil || pieceLen <= 0 {
		return &ParseError{"info.piece length", fmt.Errorf("must be a positive integer")}
	}
	t.PieceLength = pieceLen

	piecesVal, ok := info.Dict["pieces"]
	if !ok {
		return &ParseError{"info.pieces", fmt.Errorf("missing field")}
	}
	if piecesVal.Kind != bencode.KindBytes || len(piecesVal.Bytes)%core.PieceHashLen != 0 {
		return &ParseError{"info.pieces", fmt.Errorf("length must be a multiple of %d", core.PieceHashLen)}
	}
	for i := 0; i < len(piecesVal.Bytes); i += core.PieceHashLen {
		t.PieceHashes = append(t.PieceHashes, core.NewPieceHash(piecesVal.Bytes[i:i+core.PieceHashLen]))
	}

	lengthVal, hasLength := info.Dict["length"]
	filesVal, hasFiles := info.Dict["files"]
	switch {
	case hasLength && hasFiles:
		return &ParseError{"info", fmt.Errorf("exactly one of length or files must be present")}
	case hasLength:
		length, err := lengthVal.GetInt()
		if err != nil || length < 0 {
			return &ParseError{"info.length", fmt.Errorf("must be a non-negative integer")}
		}
		t.Files = []File{{Path: []string{name}, Length: length, Offset: 0}}
		t.TotalLength = length
	case hasFiles:
		files, total, err := parseFiles(filesVal, name)
		if err != nil {
			return &ParseError{"info.files", err}
		}
		t.Files = files
		t.TotalLength = total
	default:
		return &ParseError{"info", fmt.Errorf("exactly one of length or files must be present")}
	}

	expectedPieces := (t.TotalLength + t.PieceLength - 1) / t.PieceLength
	if t.TotalLength == 0 {
		expectedPieces = 0
	}
	if int64(len(t.PieceHashes)) != expectedPieces {
		return &ParseError{"info.pieces", fmt.Errorf(
			"piece count %d does not match expected %d for total length %d", len(t.PieceHashes), expectedPieces, t.TotalLength)}
	}

	return nil
}

func parseFiles(v *bencode.Value, torrentName string) ([]File, int64, error) {
	if v.Kind != bencode.KindList {
		return nil, 0, fmt.Errorf("not a list")
	}
	var files []File
	var offset int64
	for _, fv := range v.List {
		if fv.Kind != bencode.KindDict {
			return nil, 0, fmt.Errorf("file entry is not a dictionary")
		}
		lengthVal, ok := fv.Dict["length"]
		if !ok {
			return nil, 0, fmt.Errorf("file entry missing length")
		}
		length, err := lengthVal.GetInt()
		if err != nil || length < 0 {
			return nil, 0, fmt.Errorf("file length must be a non-negative integer")
		}
		pathVal, ok := fv.Dict["path"]
		if !ok {
			return nil, 0, fmt.Errorf("file entry missing path")
		}
		components, err := parsePath(pathVal)
		if err != nil {
			return nil, 0, err
		}
		full := append([]string{torrentName}, components...)
		files = append(files, File{Path: full, Length: length, Offset: offset})
		offset += length
	}
	return files, offset, nil
}

func parsePath(v *bencode.Value) ([]string, error) {
	if v.Kind != bencode.KindList || len(v.List) == 0 {
		return nil, fmt.Errorf("path must be a non-empty list")
	}
	var components []string
	for _, cv := range v.List {
		c, err := cv.String()
		if err != nil {
			return nil, fmt.Errorf("path component: %s", err)
		}
		if c == "" {
			return nil, fmt.Errorf("path component is empty")
		}
		if c == ".." || strings.HasPrefix(c, "/") {
			return nil, fmt.Errorf("path component %q is not allowed", c)
		}
		components = append(components, c)
	}
	return components, nil
}
