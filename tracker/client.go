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

// Package tracker implements the HTTP(S) BitTorrent tracker protocol: an
// announce client that builds the query, decodes the bencoded reply, and a
// multi-tier client that drives the periodic announce loop across a
// torrent's announce-list.
package tracker

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/seedcore-io/torrentd/bencode"
	"github.com/seedcore-io/torrentd/core"
)

// AnnounceTimeout bounds a single announce request.
const AnnounceTimeout = 30 * time.Second

// DefaultNumWant is the numwant query parameter sent when the caller does
// not override it.
const DefaultNumWant = 50

// Event identifies the lifecycle event accompanying an announce, per the
// "event" query parameter.
type Event string

// The three announce events. The empty Event is sent for a periodic
// announce and carries no "event" parameter.
const (
	EventNone      Event = ""
	EventStarted   Event = "started"
	EventCompleted Event = "completed"
	EventStopped   Event = "stopped"
)

// PeerAddr is one peer returned by a tracker, in either compact or
// dictionary form.
type PeerAddr struct {
	IP   net.IP
	Port int
	ID   *core.PeerID
}

// String renders the peer as "ip:port".
func (p PeerAddr) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(p.Port))
}

// Request is the set of parameters sent on an announce.
type Request struct {
	InfoHash   core.InfoHash
	PeerID     core.PeerID
	Port       int
	Uploaded   int64
	Downloaded int64
	Left       int64
	NumWant    int
	Event      Event
}

// Response is a decoded, successful announce reply.
type Response struct {
	Interval    time.Duration
	MinInterval time.Duration
	TrackerID   string
	Complete    int
	Incomplete  int
	Peers       []PeerAddr
}

// Error reports an explicit tracker-side failure, carried in the reply's
// "failure reason" field.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("tracker: failure reason: %s", e.Reason)
}

// Client announces to a single tracker URL over HTTP(S).
type Client interface {
	Announce(ctx context.Context, announceURL string, req Request) (*Response, error)
}

// httpClient is the default Client, speaking the real wire protocol.
type httpClient struct {
	hc *http.Client
}

// NewHTTPClient returns a Client that issues real HTTP(S) announce
// requests with a fixed per-request timeout.
func NewHTTPClient() Client {
	return &httpClient{hc: &http.Client{Timeout: AnnounceTimeout}}
}

// Announce builds the query string, issues the GET, and decodes the
// bencoded response. A top-level "failure reason" becomes an *Error;
// everything else about a malformed reply becomes a plain error.
func (c *httpClient) Announce(ctx context.Context, announceURL string, req Request) (*Response, error) {
	u, err := buildAnnounceURL(announceURL, req)
	if err != nil {
		return nil, fmt.Errorf("build announce url: %s", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %s", err)
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("announce: %s", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %s", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("announce: unexpected status %d", resp.StatusCode)
	}

	return decodeResponse(body)
}

// buildAnnounceURL appends the announce query parameters to base,
// percent-encoding info_hash and peer_id as their raw 20 bytes per the
// wire contract -- not as hex.
func buildAnnounceURL(base string, req Request) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	numWant := req.NumWant
	if numWant == 0 {
		numWant = DefaultNumWant
	}

	q := u.Query()
	q.Set("info_hash", string(req.InfoHash.Bytes()))
	q.Set("peer_id", string(req.PeerID.Bytes()))
	q.Set("port", strconv.Itoa(req.Port))
	q.Set("uploaded", strconv.FormatInt(req.Uploaded, 10))
	q.Set("downloaded", strconv.FormatInt(req.Downloaded, 10))
	q.Set("left", strconv.FormatInt(req.Left, 10))
	q.Set("compact", "1")
	q.Set("numwant", strconv.Itoa(numWant))
	if req.Event != EventNone {
		q.Set("event", string(req.Event))
	}
	u.RawQuery = encodeRawQuery(q)
	return u.String(), nil
}

// encodeRawQuery mirrors url.Values.Encode but escapes raw binary fields
// (info_hash, peer_id) the same way url.QueryEscape does -- net/url's
// Encode already percent-encodes arbitrary bytes correctly, so this simply
// documents that the binary fields are not further transformed.
func encodeRawQuery(q url.Values) string {
	return q.Encode()
}

func decodeResponse(body []byte) (*Response, error) {
	v, err := bencode.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("decode bencode: %s", err)
	}
	if v.Kind != bencode.KindDict {
		return nil, fmt.Errorf("tracker response is not a dictionary")
	}

	if fr, ok := v.Dict["failure reason"]; ok {
		reason, _ := fr.String()
		return nil, &Error{Reason: reason}
	}

	resp := &Response{}

	intervalVal, ok := v.Dict["interval"]
	if !ok {
		return nil, fmt.Errorf("tracker response missing interval")
	}
	interval, err := intervalVal.GetInt()
	if err != nil {
		return nil, fmt.Errorf("tracker response interval: %s", err)
	}
	resp.Interval = time.Duration(interval) * time.Second

	if miv, ok := v.Dict["min interval"]; ok {
		if mi, err := miv.GetInt(); err == nil {
			resp.MinInterval = time.Duration(mi) * time.Second
		}
	}
	if tid, ok := v.Dict["tracker id"]; ok {
		if s, err := tid.String(); err == nil {
			resp.TrackerID = s
		}
	}
	if c, ok := v.Dict["complete"]; ok {
		if n, err := c.GetInt(); err == nil {
			resp.Complete = int(n)
		}
	}
	if ic, ok := v.Dict["incomplete"]; ok {
		if n, err := ic.GetInt(); err == nil {
			resp.Incomplete = int(n)
		}
	}

	peersVal, ok := v.Dict["peers"]
	if ok {
		peers, err := decodePeers(peersVal)
		if err != nil {
			return nil, fmt.Errorf("tracker response peers: %s", err)
		}
		resp.Peers = peers
	}

	return resp, nil
}

func decodePeers(v *bencode.Value) ([]PeerAddr, error) {
	switch v.Kind {
	case bencode.KindBytes:
		return decodeCompactPeers(v.Bytes)
	case bencode.KindList:
		return decodeDictPeers(v.List)
	default:
		return nil, fmt.Errorf("peers field is neither a byte string nor a list")
	}
}

// decodeCompactPeers unpacks the 6-bytes-per-peer compact form: 4-byte
// IPv4 address followed by a 2-byte big-endian port.
func decodeCompactPeers(b []byte) ([]PeerAddr, error) {
	const peerLen = 6
	if len(b)%peerLen != 0 {
		return nil, fmt.Errorf("compact peers length %d is not a multiple of %d", len(b), peerLen)
	}
	peers := make([]PeerAddr, 0, len(b)/peerLen)
	for i := 0; i < len(b); i += peerLen {
		ip := net.IPv4(b[i], b[i+1], b[i+2], b[i+3])
		port := int(binary.BigEndian.Uint16(b[i+4 : i+6]))
		peers = append(peers, PeerAddr{IP: ip, Port: port})
	}
	return peers, nil
}

func decodeDictPeers(list []*bencode.Value) ([]PeerAddr, error) {
	peers := make([]PeerAddr, 0, len(list))
	for _, pv := range list {
		if pv.Kind != bencode.KindDict {
			return nil, fmt.Errorf("peer entry is not a dictionary")
		}
		ipVal, ok := pv.Dict["ip"]
		if !ok {
			return nil, fmt.Errorf("peer entry missing ip")
		}
		ipStr, err := ipVal.String()
		if err != nil {
			return nil, fmt.Errorf("peer ip: %s", err)
		}
		ip := net.ParseIP(ipStr)
		if ip == nil {
			return nil, fmt.Errorf("peer ip %q is not valid", ipStr)
		}
		portVal, ok := pv.Dict["port"]
		if !ok {
			return nil, fmt.Errorf("peer entry missing port")
		}
		port, err := portVal.GetInt()
		if err != nil {
			return nil, fmt.Errorf("peer port: %s", err)
		}
		p := PeerAddr{IP: ip, Port: int(port)}
		if idVal, ok := pv.Dict["peer id"]; ok {
			if raw, err := idVal.String(); err == nil {
				if id, err := core.NewPeerID([]byte(raw)); err == nil {
					p.ID = &id
				}
			}
		}
		peers = append(peers, p)
	}
	return peers, nil
}
