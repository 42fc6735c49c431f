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

// Package bencode implements the bencode encoding used by .torrent files and
// HTTP tracker replies: signed integers, byte strings, lists, and ordered
// dictionaries. Unlike a reflection-based marshaler, this decoder tracks the
// exact byte offsets of every value it parses, so callers can recover the
// original source bytes of a sub-value -- which is required to compute a
// torrent's info hash over the untouched info dictionary rather than a
// re-encoding of it.
package bencode

import (
	"fmt"
	"sort"
)

// Kind identifies which of the four bencode value kinds a Value holds.
type Kind int

// The four bencode value kinds.
const (
	KindInt Kind = iota
	KindBytes
	KindList
	KindDict
)

// Value is a parsed bencode value together with the byte range of the source
// it was parsed from.
type Value struct {
	Kind  Kind
	Int   int64
	Bytes []byte
	List  []*Value
	Dict  map[string]*Value
	// DictKeys preserves the order keys were encountered in, for dicts parsed
	// from source (not required to be sorted).
	DictKeys []string

	// Start and End are the half-open byte range [Start, End) this value
	// occupied in the source slice it was decoded from.
	Start int
	End   int
}

// SyntaxError reports a malformed bencode value along with where in the
// source it was found.
type SyntaxError struct {
	Offset int
	What   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("bencode: syntax error at offset %d: %s", e.Offset, e.What)
}

// Decode parses the whole of b as a single bencode value, failing if any
// trailing bytes remain afterward.
func Decode(b []byte) (*Value, error) {
	d := &decoder{src: b}
	v, err := d.decodeValue()
	if err != nil {
		return nil, err
	}
	if d.pos != len(b) {
		return nil, &SyntaxError{d.pos, "trailing garbage after top-level value"}
	}
	return v, nil
}

// RawField returns the exact source byte range occupied by the value keyed
// key within the top-level dictionary encoded in b. This is the primitive
// used to compute a torrent's info hash over the original info-dict bytes.
func RawField(b []byte, key string) ([]byte, error) {
	v, err := Decode(b)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindDict {
		return nil, fmt.Errorf("bencode: top-level value is not a dict")
	}
	child, ok := v.Dict[key]
	if !ok {
		return nil, fmt.Errorf("bencode: missing field %q", key)
	}
	return b[child.Start:child.End], nil
}

// Encode serializes v, emitting dictionary keys in lexicographic order as
// required by the canonical form.
func Encode(v *Value) []byte {
	var buf []byte
	buf = appendValue(buf, v)
	return buf
}

func appendValue(buf []byte, v *Value) []byte {
	switch v.Kind {
	case KindInt:
		buf = append(buf, 'i')
		buf = append(buf, []byte(fmt.Sprintf("%d", v.Int))...)
		buf = append(buf, 'e')
	case KindBytes:
		buf = append(buf, []byte(fmt.Sprintf("%d:", len(v.Bytes)))...)
		buf = append(buf, v.Bytes...)
	case KindList:
		buf = append(buf, 'l')
		for _, e := range v.List {
			buf = appendValue(buf, e)
		}
		buf = append(buf, 'e')
	case KindDict:
		buf = append(buf, 'd')
		keys := make([]string, 0, len(v.Dict))
		for k := range v.Dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf = appendValue(buf, &Value{Kind: KindBytes, Bytes: []byte(k)})
			buf = appendValue(buf, v.Dict[k])
		}
		buf = append(buf, 'e')
	}
	return buf
}

// Convenience constructors, used by callers building values to encode
// (e.g. tracker announce query construction never needs these, but test
// fixtures do).

// NewInt returns an integer Value.
func NewInt(i int64) *Value { return &Value{Kind: KindInt, Int: i} }

// NewBytes returns a byte-string Value.
func NewBytes(b []byte) *Value { return &Value{Kind: KindBytes, Bytes: b} }

// NewString returns a byte-string Value from a Go string.
func NewString(s string) *Value { return NewBytes([]byte(s)) }

// NewList returns a list Value.
func NewList(vs ...*Value) *Value { return &Value{Kind: KindList, List: vs} }

// NewDict returns a dict Value from a key/value map.
func NewDict(m map[string]*Value) *Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &Value{Kind: KindDict, Dict: m, DictKeys: keys}
}

// String returns v's string contents if v is a byte string, else an error.
func (v *Value) String() (string, error) {
	if v.Kind != KindBytes {
		return "", fmt.Errorf("bencode: value is not a byte string")
	}
	return string(v.Bytes), nil
}

// GetInt returns v's integer value if v is an integer, else an error.
func (v *Value) GetInt() (int64, error) {
	if v.Kind != KindInt {
		return 0, fmt.Errorf("bencode: value is not an integer")
	}
	return v.Int, nil
}

// GetDict returns d[key] or an error if key is absent or d is not a dict.
func (v *Value) GetDict(key string) (*Value, error) {
	if v.Kind != KindDict {
		return nil, fmt.Errorf("bencode: value is not a dict")
	}
	child, ok := v.Dict[key]
	if !ok {
		return nil, fmt.Errorf("bencode: missing field %q", key)
	}
	return child, nil
}
