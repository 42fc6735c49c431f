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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRealDebridProvider(handler http.Handler) (*RealDebridProvider, func()) {
	srv := httptest.NewServer(handler)
	p := NewRealDebridProvider("test-key")
	p.baseURL = srv.URL
	return p, srv.Close
}

func TestRealDebridStatusMapsDownloadedToReady(t *testing.T) {
	require := require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/torrents/info/t1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rdTorrentInfo{ID: "t1", Status: "downloaded"})
	})

	p, closeSrv := newTestRealDebridProvider(mux)
	defer closeSrv()

	status, err := p.Status(context.Background(), "t1")
	require.NoError(err)
	require.Equal(Ready, status)
}

func TestRealDebridStatusMapsErrorToFailed(t *testing.T) {
	require := require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/torrents/info/t1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rdTorrentInfo{ID: "t1", Status: "error"})
	})

	p, closeSrv := newTestRealDebridProvider(mux)
	defer closeSrv()

	status, err := p.Status(context.Background(), "t1")
	require.NoError(err)
	require.Equal(Failed, status)
}

func TestRealDebridFilesUnrestrictsEachLink(t *testing.T) {
	require := require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/torrents/info/t1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rdTorrentInfo{
			ID: "t1",
			Files: []rdFile{
				{ID: 1, Path: "/movie.mkv", Bytes: 100, Selected: 1},
			},
			Links: []string{"https://hoster.example/abc"},
		})
	})
	mux.HandleFunc("/unrestrict/link", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rdUnrestrictResponse{
			Filename: "movie.mkv",
			Filesize: 100,
			Download: "https://real-debrid.example/download/xyz",
		})
	})

	p, closeSrv := newTestRealDebridProvider(mux)
	defer closeSrv()

	files, err := p.Files(context.Background(), "t1")
	require.NoError(err)
	require.Len(files, 1)
	require.Equal([]string{"movie.mkv"}, files[0].Path)
	require.Equal("https://real-debrid.example/download/xyz", files[0].URL)
}

func TestRealDebridDoReturnsErrorOnNonSuccessStatus(t *testing.T) {
	require := require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad token"))
	})

	p, closeSrv := newTestRealDebridProvider(mux)
	defer closeSrv()

	err := p.postForm(context.Background(), "/user", nil, &struct{}{})
	require.Error(err)
}
