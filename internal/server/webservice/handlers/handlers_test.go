package handlers_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropdock/dropdock/internal/server/sessions"
	"github.com/dropdock/dropdock/internal/server/webservice/handlers"
)

// staticConfig is a fixed config provider for tests.
type staticConfig struct {
	allowed []string
	quotas  map[string]int64
}

func (c staticConfig) AllowList() []string { return c.allowed }
func (c staticConfig) IsAllowed(namespace string) bool {
	for _, ns := range c.allowed {
		if ns == namespace {
			return true
		}
	}
	return false
}
func (c staticConfig) Quota(namespace string) int64 { return c.quotas[namespace] }

type env struct {
	server     *httptest.Server
	filesDir   string
	journalDir string
}

func newEnv(t *testing.T, cfg staticConfig, maxUpload int64) env {
	t.Helper()

	dir := t.TempDir()
	filesDir := filepath.Join(dir, "files")
	journalDir := filepath.Join(dir, "journal")
	store := handlers.NewStore(cfg, filesDir, journalDir, maxUpload)

	spool, err := sessions.New(filepath.Join(dir, "spool"))
	require.NoError(t, err, "Setup: failed to create session store")
	sh := handlers.NewSessions(store, spool)

	mux := http.NewServeMux()
	mux.Handle("POST /v1/{namespace}/files/{path...}", handlers.NewUpload(store))
	mux.Handle("GET /v1/{namespace}/files/{path...}", handlers.NewDownload(store))
	mux.Handle("GET /v1/{namespace}/entries", handlers.NewEntries(store))
	mux.Handle("GET /v1/{namespace}/entries/{path...}", handlers.NewEntries(store))
	mux.Handle("POST /v1/{namespace}/folders/{path...}", handlers.NewFolders(store))
	mux.Handle("POST /v1/{namespace}/sessions", http.HandlerFunc(sh.Start))
	mux.Handle("PATCH /v1/{namespace}/sessions/{id}", http.HandlerFunc(sh.Append))
	mux.Handle("POST /v1/{namespace}/sessions/{id}/commit", http.HandlerFunc(sh.Commit))
	mux.Handle("GET /v1/{namespace}/usage", handlers.NewUsage(store))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return env{server: server, filesDir: filesDir, journalDir: journalDir}
}

func (e env) do(t *testing.T, method, path string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err, "Setup: failed to create request")
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err, "Setup: request should not fail")
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func defaultConfig() staticConfig {
	return staticConfig{allowed: []string{"alpha", "beta"}}
}

func TestUpload(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg       staticConfig
		path      string
		body      string
		maxUpload int64
		preload   map[string]string

		wantStatus  int
		wantStored  bool
		wantJournal bool
	}{
		"Stores a new file": {
			path: "/v1/alpha/files/docs/report.txt", body: "hello",
			wantStatus: http.StatusCreated, wantStored: true, wantJournal: true,
		},
		"Overwrites an existing file": {
			path: "/v1/alpha/files/docs/report.txt?mode=overwrite", body: "updated",
			preload:    map[string]string{"alpha/docs/report.txt": "old"},
			wantStatus: http.StatusOK, wantStored: true, wantJournal: true,
		},
		"Add mode conflicts with an existing file": {
			path: "/v1/alpha/files/docs/report.txt?mode=add", body: "new",
			preload:    map[string]string{"alpha/docs/report.txt": "old"},
			wantStatus: http.StatusConflict,
		},
		"Invalid write mode": {
			path: "/v1/alpha/files/report.txt?mode=append", body: "data",
			wantStatus: http.StatusBadRequest,
		},
		"Namespace not allowed": {
			path: "/v1/intruder/files/report.txt", body: "data",
			wantStatus: http.StatusForbidden,
		},
		"Consecutive dots inside a file name are allowed": {
			path: "/v1/alpha/files/report..final.csv", body: "hello",
			wantStatus: http.StatusCreated, wantStored: true, wantJournal: true,
		},
		"Upload over the size limit": {
			path: "/v1/alpha/files/big.bin", body: strings.Repeat("x", 2048), maxUpload: 1024,
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		"Upload over quota": {
			cfg:  staticConfig{allowed: []string{"alpha"}, quotas: map[string]int64{"alpha": 10}},
			path: "/v1/alpha/files/big.bin", body: strings.Repeat("x", 100),
			wantStatus: http.StatusInsufficientStorage,
		},
		"Overwrite within quota counts replaced bytes": {
			cfg:  staticConfig{allowed: []string{"alpha"}, quotas: map[string]int64{"alpha": 10}},
			path: "/v1/alpha/files/data.bin?mode=overwrite", body: strings.Repeat("x", 9),
			preload:    map[string]string{"alpha/data.bin": strings.Repeat("y", 8)},
			wantStatus: http.StatusOK, wantStored: true, wantJournal: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if tc.cfg.allowed == nil {
				tc.cfg = defaultConfig()
			}
			if tc.maxUpload == 0 {
				tc.maxUpload = 1 << 20
			}
			e := newEnv(t, tc.cfg, tc.maxUpload)
			for rel, content := range tc.preload {
				p := filepath.Join(e.filesDir, filepath.FromSlash(rel))
				require.NoError(t, os.MkdirAll(filepath.Dir(p), 0700), "Setup: failed to create preload dir")
				require.NoError(t, os.WriteFile(p, []byte(content), 0600), "Setup: failed to preload file")
			}

			resp := e.do(t, http.MethodPost, tc.path, []byte(tc.body))
			require.Equal(t, tc.wantStatus, resp.StatusCode, "Unexpected response status")

			if tc.wantStored {
				var meta struct {
					ID     string `json:"id"`
					Path   string `json:"path"`
					Size   int64  `json:"size"`
					SHA256 string `json:"sha256"`
				}
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta), "Response should be valid metadata JSON")
				require.NotEmpty(t, meta.ID, "Metadata should carry a request ID")
				require.Equal(t, int64(len(tc.body)), meta.Size, "Unexpected stored size")
				sum := sha256.Sum256([]byte(tc.body))
				require.Equal(t, hex.EncodeToString(sum[:]), meta.SHA256, "Unexpected stored checksum")

				onDisk, err := os.ReadFile(filepath.Join(e.filesDir, "alpha", filepath.FromSlash(strings.TrimPrefix(meta.Path, "/"))))
				require.NoError(t, err, "Stored file should exist on disk")
				require.Equal(t, tc.body, string(onDisk), "Stored content should match the upload")
			}

			journal, _ := filepath.Glob(filepath.Join(e.journalDir, "*", "*.json"))
			if tc.wantJournal {
				require.Len(t, journal, 1, "Exactly one journal record should be written")
			} else {
				require.Empty(t, journal, "No journal record should be written")
			}
		})
	}
}

func TestDownload(t *testing.T) {
	t.Parallel()

	e := newEnv(t, defaultConfig(), 1<<20)
	resp := e.do(t, http.MethodPost, "/v1/alpha/files/docs/report.txt", []byte("content"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, "Setup: upload should succeed")

	resp = e.do(t, http.MethodGet, "/v1/alpha/files/docs/report.txt", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "Download should succeed")
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err, "Download body should be readable")
	require.Equal(t, "content", buf.String(), "Downloaded content should match the upload")

	resp = e.do(t, http.MethodGet, "/v1/alpha/files/missing.txt", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "Missing file should not be found")

	resp = e.do(t, http.MethodGet, "/v1/intruder/files/docs/report.txt", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode, "Unknown namespace should be forbidden")
}

func TestEntries(t *testing.T) {
	t.Parallel()

	e := newEnv(t, defaultConfig(), 1<<20)

	// Root of an untouched namespace lists empty.
	resp := e.do(t, http.MethodGet, "/v1/alpha/entries", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "Listing an empty namespace should succeed")
	var entries []struct {
		Name     string `json:"name"`
		Path     string `json:"path"`
		IsFolder bool   `json:"is_folder"`
		Size     int64  `json:"size"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries), "Listing should be valid JSON")
	require.Empty(t, entries, "Untouched namespace should list empty")

	resp = e.do(t, http.MethodPost, "/v1/alpha/files/docs/report.txt", []byte("hello"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, "Setup: upload should succeed")

	resp = e.do(t, http.MethodGet, "/v1/alpha/entries", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "Listing the namespace root should succeed")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries), "Listing should be valid JSON")
	require.Len(t, entries, 1, "Root should contain the docs folder")
	require.True(t, entries[0].IsFolder, "docs should be a folder")
	require.Equal(t, "/docs", entries[0].Path, "Unexpected folder path")

	resp = e.do(t, http.MethodGet, "/v1/alpha/entries/docs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "Listing a folder should succeed")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries), "Listing should be valid JSON")
	require.Len(t, entries, 1, "docs should contain the uploaded file")
	require.False(t, entries[0].IsFolder, "report.txt should be a file")
	require.Equal(t, int64(5), entries[0].Size, "Unexpected file size")

	resp = e.do(t, http.MethodGet, "/v1/alpha/entries/missing", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "Missing folder should not be found")
}

func TestFolders(t *testing.T) {
	t.Parallel()

	e := newEnv(t, defaultConfig(), 1<<20)

	resp := e.do(t, http.MethodPost, "/v1/alpha/folders/a/b/c", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "Folder creation should succeed")

	resp = e.do(t, http.MethodPost, "/v1/alpha/folders/a/b/c", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "Existing folder should respond OK")

	resp = e.do(t, http.MethodPost, "/v1/alpha/files/a/b/c/file.txt", []byte("x"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, "Setup: upload should succeed")
	resp = e.do(t, http.MethodPost, "/v1/alpha/folders/a/b/c/file.txt", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode, "Folder over a file should conflict")
}

func TestSessions(t *testing.T) {
	t.Parallel()

	e := newEnv(t, defaultConfig(), 1<<20)

	resp := e.do(t, http.MethodPost, "/v1/alpha/sessions", []byte("hello "))
	require.Equal(t, http.StatusCreated, resp.StatusCode, "Session start should succeed")
	var session struct {
		ID     string `json:"session_id"`
		Offset int64  `json:"offset"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session), "Session response should be valid JSON")
	require.Equal(t, int64(6), session.Offset, "Unexpected session offset")

	// Wrong offset conflicts.
	resp = e.do(t, http.MethodPatch, fmt.Sprintf("/v1/alpha/sessions/%s?offset=99", session.ID), []byte("world"))
	require.Equal(t, http.StatusConflict, resp.StatusCode, "Wrong offset should conflict")

	resp = e.do(t, http.MethodPatch, fmt.Sprintf("/v1/alpha/sessions/%s?offset=%d", session.ID, session.Offset), []byte("world"))
	require.Equal(t, http.StatusOK, resp.StatusCode, "Append should succeed")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session), "Session response should be valid JSON")
	require.Equal(t, int64(11), session.Offset, "Unexpected session offset after append")

	// Traversal in the commit target is rejected before touching the session.
	resp = e.do(t, http.MethodPost, fmt.Sprintf("/v1/alpha/sessions/%s/commit?path=%s", session.ID, "..%2Fescape"), nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, "Traversal target should be rejected")

	resp = e.do(t, http.MethodPost, fmt.Sprintf("/v1/alpha/sessions/%s/commit?path=/big/data.bin", session.ID), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "Commit should succeed")
	var meta struct {
		Path string `json:"path"`
		Size int64  `json:"size"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta), "Commit response should be valid JSON")
	require.Equal(t, "/big/data.bin", meta.Path, "Unexpected committed path")
	require.Equal(t, int64(11), meta.Size, "Unexpected committed size")

	onDisk, err := os.ReadFile(filepath.Join(e.filesDir, "alpha", "big", "data.bin"))
	require.NoError(t, err, "Committed file should exist on disk")
	require.Equal(t, "hello world", string(onDisk), "Committed content should match the chunks")

	// The session is consumed by the commit.
	resp = e.do(t, http.MethodPost, fmt.Sprintf("/v1/alpha/sessions/%s/commit?path=/big/data.bin", session.ID), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "Committed session should be gone")
}

func TestUsage(t *testing.T) {
	t.Parallel()

	cfg := staticConfig{allowed: []string{"alpha"}, quotas: map[string]int64{"alpha": 1000}}
	e := newEnv(t, cfg, 1<<20)

	resp := e.do(t, http.MethodPost, "/v1/alpha/files/report.txt", []byte("12345"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, "Setup: upload should succeed")

	resp = e.do(t, http.MethodGet, "/v1/alpha/usage", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "Usage should succeed")
	var usage struct {
		Used  int64 `json:"used"`
		Quota int64 `json:"quota"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&usage), "Usage response should be valid JSON")
	require.Equal(t, int64(5), usage.Used, "Unexpected used bytes")
	require.Equal(t, int64(1000), usage.Quota, "Unexpected quota")
}

// mockRecorder captures upload accounting calls.
type mockRecorder struct {
	mu       sync.Mutex
	uploads  int
	bytes    int64
	lastMode string
}

func (r *mockRecorder) RecordUpload(namespace, mode string, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads++
	r.bytes += size
	r.lastMode = mode
}

func TestUploadsReportedToRecorder(t *testing.T) {
	t.Parallel()

	rec := &mockRecorder{}
	dir := t.TempDir()
	store := handlers.NewStore(defaultConfig(), filepath.Join(dir, "files"), filepath.Join(dir, "journal"), 1<<20,
		handlers.WithUploadRecorder(rec))

	mux := http.NewServeMux()
	mux.Handle("POST /v1/{namespace}/files/{path...}", handlers.NewUpload(store))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	resp, err := http.Post(server.URL+"/v1/alpha/files/report.txt?mode=add", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err, "Setup: upload should not fail")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode, "Setup: upload should succeed")

	// A rejected upload must not be accounted.
	resp, err = http.Post(server.URL+"/v1/alpha/files/report.txt?mode=add", "text/plain", strings.NewReader("again"))
	require.NoError(t, err, "Setup: upload should not fail")
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode, "Setup: duplicate add should conflict")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, 1, rec.uploads, "Exactly one stored upload should be recorded")
	require.Equal(t, int64(5), rec.bytes, "Recorded bytes should match the stored content")
	require.Equal(t, "add", rec.lastMode, "Recorded mode should match the request")
}
