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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const realDebridBaseURL = "https://api.real-debrid.com/rest/1.0"

// RealDebridProvider implements Provider against the Real-Debrid REST API.
// It has no retry logic of its own, and a Client retries only the file
// downloads, not these API calls. Status issues one HTTP request;
// AddMagnet and AddTorrentFile issue two (submit, then select all files);
// Files issues one for the torrent info plus one per hoster link.
type RealDebridProvider struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
}

// NewRealDebridProvider constructs a RealDebridProvider authenticating with
// apiKey.
func NewRealDebridProvider(apiKey string) *RealDebridProvider {
	return &RealDebridProvider{
		apiKey:  apiKey,
		baseURL: realDebridBaseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements Provider.
func (p *RealDebridProvider) Name() string { return "real-debrid" }

type rdAddMagnetResponse struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// AddMagnet implements Provider.
func (p *RealDebridProvider) AddMagnet(ctx context.Context, magnetURI string) (TorrentID, error) {
	form := url.Values{"magnet": {magnetURI}}
	var resp rdAddMagnetResponse
	if err := p.postForm(ctx, "/torrents/addMagnet", form, &resp); err != nil {
		return "", err
	}
	if err := p.selectAllFiles(ctx, resp.ID); err != nil {
		return "", fmt.Errorf("select files: %s", err)
	}
	return TorrentID(resp.ID), nil
}

// AddTorrentFile implements Provider.
func (p *RealDebridProvider) AddTorrentFile(ctx context.Context, torrentBytes []byte) (TorrentID, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "torrent.torrent")
	if err != nil {
		return "", fmt.Errorf("create form file: %s", err)
	}
	if _, err := part.Write(torrentBytes); err != nil {
		return "", fmt.Errorf("write form file: %s", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %s", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.baseURL+"/torrents/addTorrent", &body)
	if err != nil {
		return "", fmt.Errorf("new request: %s", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp rdAddMagnetResponse
	if err := p.do(req, &resp); err != nil {
		return "", err
	}
	if err := p.selectAllFiles(ctx, resp.ID); err != nil {
		return "", fmt.Errorf("select files: %s", err)
	}
	return TorrentID(resp.ID), nil
}

func (p *RealDebridProvider) selectAllFiles(ctx context.Context, torrentID string) error {
	form := url.Values{"files": {"all"}}
	var discard json.RawMessage
	return p.postForm(ctx, "/torrents/selectFiles/"+torrentID, form, &discard)
}

type rdFile struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

type rdTorrentInfo struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Hash     string   `json:"hash"`
	Bytes    int64    `json:"bytes"`
	Status   string   `json:"status"`
	Progress float64  `json:"progress"`
	Files    []rdFile `json:"files"`
	Links    []string `json:"links"`
}

// Status implements Provider. Real-Debrid's "downloaded" status maps to
// Ready; "error"/"virus"/"dead" map to Failed; "waiting_files_selection"
// and "queued" map to Queued; every other status (magnet_conversion,
// downloading, compressing, uploading) maps to Downloading.
func (p *RealDebridProvider) Status(ctx context.Context, id TorrentID) (Status, error) {
	info, err := p.torrentInfo(ctx, id)
	if err != nil {
		return Failed, err
	}
	switch info.Status {
	case "downloaded":
		return Ready, nil
	case "error", "virus", "dead":
		return Failed, nil
	case "waiting_files_selection", "queued":
		return Queued, nil
	default:
		return Downloading, nil
	}
}

type rdUnrestrictResponse struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Download string `json:"download"`
}

// Files implements Provider: it unrestricts every hoster link on the
// torrent and returns the resulting direct-download URLs.
func (p *RealDebridProvider) Files(ctx context.Context, id TorrentID) ([]File, error) {
	info, err := p.torrentInfo(ctx, id)
	if err != nil {
		return nil, err
	}

	var selected []rdFile
	for _, f := range info.Files {
		if f.Selected != 0 {
			selected = append(selected, f)
		}
	}
	if len(selected) != len(info.Links) {
		return nil, fmt.Errorf("real-debrid: %d selected files but %d links", len(selected), len(info.Links))
	}

	files := make([]File, 0, len(selected))
	for i, link := range info.Links {
		form := url.Values{"link": {link}}
		var unrestrict rdUnrestrictResponse
		if err := p.postForm(ctx, "/unrestrict/link", form, &unrestrict); err != nil {
			return nil, fmt.Errorf("unrestrict %s: %s", link, err)
		}
		files = append(files, File{
			Path: strings.Split(strings.TrimPrefix(selected[i].Path, "/"), "/"),
			Size: unrestrict.Filesize,
			URL:  unrestrict.Download,
		})
	}
	return files, nil
}

func (p *RealDebridProvider) torrentInfo(ctx context.Context, id TorrentID) (*rdTorrentInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/torrents/info/"+string(id), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %s", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	var info rdTorrentInfo
	if err := p.do(req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (p *RealDebridProvider) postForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %s", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.do(req, out)
}

func (p *RealDebridProvider) do(req *http.Request, out interface{}) error {
	resp, err := p.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("real-debrid: %s", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("real-debrid: read body: %s", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("real-debrid: status %s: %s", strconv.Itoa(resp.StatusCode), string(body))
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("real-debrid: decode response: %s", err)
	}
	return nil
}
