package remote_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropdock/dropdock/internal/remote"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		namespace string
		baseURL   string

		wantErr error
	}{
		"Valid namespace":           {namespace: "testns"},
		"Custom base URL":           {namespace: "testns", baseURL: "https://drop.example.com"},
		"Empty namespace is denied": {namespace: "", wantErr: remote.ErrEmptyNamespace},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var args []remote.Options
			if tc.baseURL != "" {
				args = append(args, remote.WithBaseURL(tc.baseURL))
			}

			c, err := remote.New(tc.namespace, "token", args...)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr, "New returned the wrong error")
				return
			}
			require.NoError(t, err, "New should not have failed")
			require.NotNil(t, c, "New should have returned a client")
		})
	}
}

func TestUpload(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status int

		wantErr error
	}{
		"Created":        {status: http.StatusCreated},
		"Overwritten":    {status: http.StatusOK},
		"Conflict":       {status: http.StatusConflict, wantErr: remote.ErrConflict},
		"Quota exceeded": {status: http.StatusInsufficientStorage, wantErr: remote.ErrQuotaExceeded},
		"Server error":   {status: http.StatusInternalServerError, wantErr: remote.ErrRequestFailed},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var gotPath, gotMode, gotAuth string
			var gotBody []byte
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotMode = r.URL.Query().Get("mode")
				gotAuth = r.Header.Get("Authorization")
				gotBody, _ = io.ReadAll(r.Body)

				w.WriteHeader(tc.status)
				if tc.status == http.StatusCreated || tc.status == http.StatusOK {
					writeJSON(t, w, remote.FileMetadata{Path: "/docs/a.txt", Size: 5})
				}
			}))
			t.Cleanup(ts.Close)

			c := newClient(t, ts.URL)
			meta, err := c.Upload(t.Context(), "docs/a.txt", bytes.NewReader([]byte("hello")), remote.ModeOverwrite)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr, "Upload returned the wrong error")
				return
			}
			require.NoError(t, err, "Upload should not have failed")

			assert.Equal(t, "/v1/testns/files/docs/a.txt", gotPath, "Unexpected request path")
			assert.Equal(t, "overwrite", gotMode, "Unexpected write mode")
			assert.Equal(t, "Bearer token", gotAuth, "Unexpected authorization header")
			assert.Equal(t, "hello", string(gotBody), "Unexpected uploaded content")
			assert.Equal(t, "/docs/a.txt", meta.Path, "Unexpected metadata path")
		})
	}
}

func TestList(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status  int
		entries []remote.Entry

		wantErr error
	}{
		"Folder with entries": {
			status: http.StatusOK,
			entries: []remote.Entry{
				{Name: "docs", Path: "/docs", IsFolder: true},
				{Name: "a.txt", Path: "/a.txt", Size: 12},
			},
		},
		"Empty folder":   {status: http.StatusOK},
		"Missing folder": {status: http.StatusNotFound, wantErr: remote.ErrNotFound},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/testns/entries", r.URL.Path, "Unexpected request path")
				w.WriteHeader(tc.status)
				if tc.status == http.StatusOK {
					writeJSON(t, w, tc.entries)
				}
			}))
			t.Cleanup(ts.Close)

			c := newClient(t, ts.URL)
			entries, err := c.List(t.Context(), "")
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr, "List returned the wrong error")
				return
			}
			require.NoError(t, err, "List should not have failed")
			assert.Equal(t, tc.entries, entries, "Unexpected folder entries")
		})
	}
}

func TestCreateFolder(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method, "Unexpected method")
		assert.Equal(t, "/v1/testns/folders/docs/sub", r.URL.Path, "Unexpected request path")
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(ts.Close)

	c := newClient(t, ts.URL)
	require.NoError(t, c.CreateFolder(t.Context(), "docs/sub"), "CreateFolder should not have failed")
}

func TestDownload(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/testns/files/a.txt", r.URL.Path, "Unexpected request path")
		_, _ = w.Write([]byte("file content"))
	}))
	t.Cleanup(ts.Close)

	c := newClient(t, ts.URL)
	var buf bytes.Buffer
	n, err := c.Download(t.Context(), "a.txt", &buf)
	require.NoError(t, err, "Download should not have failed")
	assert.Equal(t, int64(12), n, "Unexpected byte count")
	assert.Equal(t, "file content", buf.String(), "Unexpected downloaded content")
}

func TestUsage(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/testns/usage", r.URL.Path, "Unexpected request path")
		writeJSON(t, w, remote.Usage{Used: 50, Quota: 200})
	}))
	t.Cleanup(ts.Close)

	c := newClient(t, ts.URL)
	u, err := c.Usage(t.Context())
	require.NoError(t, err, "Usage should not have failed")
	assert.Equal(t, remote.Usage{Used: 50, Quota: 200}, u)
	assert.InDelta(t, 25.0, u.Percentage(), 0.001, "Unexpected usage percentage")
}

func TestUsagePercentageWithoutQuota(t *testing.T) {
	t.Parallel()

	u := remote.Usage{Used: 50}
	assert.Zero(t, u.Percentage(), "Percentage without quota should be zero")
}

func TestServerVersion(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/version", r.URL.Path, "Unexpected request path")
		_, _ = w.Write([]byte(`{"version":"1.2.3"}`))
	}))
	t.Cleanup(ts.Close)

	c := newClient(t, ts.URL)
	v, err := c.ServerVersion(t.Context())
	require.NoError(t, err, "ServerVersion should not have failed")
	assert.Equal(t, "1.2.3", v)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	var assembled bytes.Buffer
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/testns/sessions", func(w http.ResponseWriter, r *http.Request) {
		chunk, _ := io.ReadAll(r.Body)
		assembled.Write(chunk)
		w.WriteHeader(http.StatusCreated)
		writeJSON(t, w, remote.Session{ID: "sess-1", Offset: int64(len(chunk))})
	})
	mux.HandleFunc("PATCH /v1/testns/sessions/sess-1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") != "6" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		chunk, _ := io.ReadAll(r.Body)
		assembled.Write(chunk)
		writeJSON(t, w, remote.Session{ID: "sess-1", Offset: int64(assembled.Len())})
	})
	mux.HandleFunc("POST /v1/testns/sessions/sess-1/commit", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/big.bin", r.URL.Query().Get("path"), "Unexpected commit path")
		assert.Equal(t, "add", r.URL.Query().Get("mode"), "Unexpected commit mode")
		w.WriteHeader(http.StatusCreated)
		writeJSON(t, w, remote.FileMetadata{Path: "/big.bin", Size: int64(assembled.Len())})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	c := newClient(t, ts.URL)

	session, err := c.StartSession(t.Context(), []byte("hello "))
	require.NoError(t, err, "StartSession should not have failed")
	assert.Equal(t, int64(6), session.Offset, "Unexpected session offset")

	session, err = c.AppendSession(t.Context(), session, []byte("world"))
	require.NoError(t, err, "AppendSession should not have failed")
	assert.Equal(t, int64(11), session.Offset, "Unexpected session offset")

	meta, err := c.CommitSession(t.Context(), session, "/big.bin", remote.ModeAdd)
	require.NoError(t, err, "CommitSession should not have failed")
	assert.Equal(t, int64(11), meta.Size, "Unexpected committed size")
	assert.Equal(t, "hello world", assembled.String(), "Unexpected assembled content")
}

func TestAppendSessionOffsetMismatch(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	t.Cleanup(ts.Close)

	c := newClient(t, ts.URL)
	_, err := c.AppendSession(t.Context(), remote.Session{ID: "sess-1", Offset: 3}, []byte("abc"))
	require.ErrorIs(t, err, remote.ErrOffsetMismatch, "AppendSession should report the offset mismatch")
}

func TestRequestFailedOnConnectionError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // Refuse connections.

	c := newClient(t, ts.URL)
	_, err := c.Usage(t.Context())
	require.ErrorIs(t, err, remote.ErrRequestFailed, "Connection errors should map to ErrRequestFailed")
}

func newClient(t *testing.T, baseURL string) *remote.Client {
	t.Helper()

	c, err := remote.New("testns", "token", remote.WithBaseURL(baseURL))
	require.NoError(t, err, "Setup: failed to create client")
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v), "Setup: failed to encode response")
}
