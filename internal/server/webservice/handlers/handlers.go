// Package handlers provides HTTP handlers for the dropdock web service.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dropdock/dropdock/internal/fileutils"
	"github.com/dropdock/dropdock/internal/server/config"
)

// JournalRecord is the journal entry written for every stored upload.
// The catalog service consumes these records.
type JournalRecord struct {
	ID         string    `json:"id"`
	Namespace  string    `json:"namespace"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	SHA256     string    `json:"sha256"`
	MIME       string    `json:"mime"`
	Mode       string    `json:"mode"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Store holds the state shared by the endpoint handlers and implements the
// filesystem layout: files under filesDir/<namespace>/<path>, journal
// records under journalDir/<namespace>/<id>.json.
type Store struct {
	config        config.Provider
	filesDir      string
	journalDir    string
	maxUploadSize int64
	recorder      UploadRecorder
}

// UploadRecorder accounts stored uploads for metrics.
type UploadRecorder interface {
	RecordUpload(namespace, mode string, size int64)
}

// StoreOption tweaks the creation of a Store.
type StoreOption func(*Store)

// WithUploadRecorder reports every stored upload to rec.
func WithUploadRecorder(rec UploadRecorder) StoreOption {
	return func(s *Store) { s.recorder = rec }
}

// NewStore creates the handler state shared by the endpoint handlers.
func NewStore(cfg config.Provider, filesDir, journalDir string, maxUploadSize int64, args ...StoreOption) *Store {
	s := &Store{
		config:        cfg,
		filesDir:      filesDir,
		journalDir:    journalDir,
		maxUploadSize: maxUploadSize,
	}
	for _, opt := range args {
		opt(s)
	}
	return s
}

var errInvalidPath = errors.New("invalid path")

// resolve validates namespace and remote path from the request and returns
// the remote path in slash form and its location on disk.
func (s *Store) resolve(r *http.Request) (namespace, remotePath, fsPath string, err error) {
	namespace = r.PathValue("namespace")
	if namespace == "" || !s.config.IsAllowed(namespace) {
		return "", "", "", fmt.Errorf("namespace %q is not allowed", namespace)
	}

	remotePath, err = cleanRemotePath(r.PathValue("path"))
	if err != nil {
		return "", "", "", err
	}

	return namespace, remotePath, s.fsPath(namespace, remotePath), nil
}

func (s *Store) fsPath(namespace, remotePath string) string {
	return filepath.Join(s.filesDir, namespace, filepath.FromSlash(strings.TrimPrefix(remotePath, "/")))
}

// cleanRemotePath normalizes a remote path from the URL and rejects any
// traversal attempt. Only a whole ".." path segment is a traversal; file
// names containing consecutive dots, like "report..final.csv", are valid.
func cleanRemotePath(p string) (string, error) {
	p = strings.ReplaceAll(p, `\`, "/")
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return "", errInvalidPath
		}
	}
	return path.Clean("/" + p), nil
}

// usedBytes walks a namespace directory and sums the stored file sizes.
func (s *Store) usedBytes(namespace string) (int64, error) {
	root := filepath.Join(s.filesDir, namespace)
	var used int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		used += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk namespace directory: %v", err)
	}
	return used, nil
}

// checkQuota reports whether storing size more bytes, replacing replaced
// existing bytes, fits in the namespace quota.
func (s *Store) checkQuota(namespace string, size, replaced int64) (bool, error) {
	quota := s.config.Quota(namespace)
	if quota <= 0 {
		return true, nil
	}
	used, err := s.usedBytes(namespace)
	if err != nil {
		return false, err
	}
	return used-replaced+size <= quota, nil
}

// journal writes the journal record for a stored upload. Journal failures
// are logged but do not fail the upload: the file is already in place.
func (s *Store) journal(rec JournalRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Error("Failed to marshal journal record", "req_id", rec.ID, "err", err)
		return
	}

	dir := filepath.Join(s.journalDir, rec.Namespace)
	if err := os.MkdirAll(dir, 0750); err != nil {
		slog.Error("Failed to create journal directory", "req_id", rec.ID, "err", err)
		return
	}
	if err := fileutils.AtomicWrite(filepath.Join(dir, rec.ID+".json"), data); err != nil {
		slog.Error("Failed to write journal record", "req_id", rec.ID, "err", err)
	}
}

func mimeType(remotePath string) string {
	if t := mime.TypeByExtension(path.Ext(remotePath)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write JSON response", "err", err)
	}
}
