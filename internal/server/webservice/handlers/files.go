package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dropdock/dropdock/internal/fileutils"
)

// fileMetadata is the response body for a stored file.
type fileMetadata struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	SHA256   string    `json:"sha256"`
	MIME     string    `json:"mime"`
	Modified time.Time `json:"modified"`
}

// Upload is a handler for storing a file in a single request.
type Upload struct {
	store *Store
}

// NewUpload creates a new Upload handler.
func NewUpload(store *Store) *Upload {
	return &Upload{store: store}
}

// ServeHTTP handles incoming file upload requests.
func (h *Upload) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()
	namespace, remotePath, fsPath, err := h.store.resolve(r)
	if err != nil {
		http.Error(w, "Invalid namespace or path in URL", http.StatusForbidden)
		slog.Error("Rejected upload request", "req_id", reqID, "err", err)
		return
	}
	if remotePath == "/" {
		http.Error(w, "Missing file path in URL", http.StatusBadRequest)
		return
	}

	slog.Info("Upload request recv'd", "req_id", reqID, "namespace", namespace, "path", remotePath)

	r.Body = http.MaxBytesReader(w, r.Body, h.store.maxUploadSize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "Upload too large for a single request", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		slog.Error("Error reading upload body", "req_id", reqID, "namespace", namespace, "err", err)
		return
	}

	meta, status, err := h.store.put(reqID, namespace, remotePath, fsPath, data, r.URL.Query().Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), status)
		slog.Error("Upload failed", "req_id", reqID, "namespace", namespace, "path", remotePath, "err", err)
		return
	}

	slog.Info("File successfully stored", "req_id", reqID, "namespace", namespace, "path", remotePath, "size", meta.Size)
	writeJSON(w, status, meta)
}

// put stores data at the target path, enforcing write mode and quota, and
// journals the upload. It returns the stored metadata and the HTTP status to
// respond with.
func (s *Store) put(reqID, namespace, remotePath, fsPath string, data []byte, mode string) (fileMetadata, int, error) {
	if mode == "" {
		mode = "overwrite"
	}
	if mode != "add" && mode != "overwrite" {
		return fileMetadata{}, http.StatusBadRequest, errors.New("invalid write mode")
	}

	var replaced int64
	if info, err := os.Stat(fsPath); err == nil {
		if info.IsDir() {
			return fileMetadata{}, http.StatusConflict, errors.New("path is a folder")
		}
		if mode == "add" {
			return fileMetadata{}, http.StatusConflict, errors.New("file already exists")
		}
		replaced = info.Size()
	}

	ok, err := s.checkQuota(namespace, int64(len(data)), replaced)
	if err != nil {
		return fileMetadata{}, http.StatusInternalServerError, errors.New("failed to check namespace usage")
	}
	if !ok {
		return fileMetadata{}, http.StatusInsufficientStorage, errors.New("namespace quota exceeded")
	}

	if err := os.MkdirAll(filepath.Dir(fsPath), 0750); err != nil {
		return fileMetadata{}, http.StatusInternalServerError, errors.New("failed to create folder")
	}
	if err := fileutils.AtomicWrite(fsPath, data); err != nil {
		return fileMetadata{}, http.StatusInternalServerError, errors.New("failed to store file")
	}

	sum := sha256.Sum256(data)
	now := time.Now().UTC()
	meta := fileMetadata{
		ID:       reqID,
		Path:     remotePath,
		Size:     int64(len(data)),
		SHA256:   hex.EncodeToString(sum[:]),
		MIME:     mimeType(remotePath),
		Modified: now,
	}

	s.journal(JournalRecord{
		ID:         reqID,
		Namespace:  namespace,
		Path:       remotePath,
		Size:       meta.Size,
		SHA256:     meta.SHA256,
		MIME:       meta.MIME,
		Mode:       mode,
		UploadedAt: now,
	})
	if s.recorder != nil {
		s.recorder.RecordUpload(namespace, mode, meta.Size)
	}

	status := http.StatusCreated
	if replaced > 0 {
		status = http.StatusOK
	}
	return meta, status, nil
}

// Download is a handler for retrieving a stored file.
type Download struct {
	store *Store
}

// NewDownload creates a new Download handler.
func NewDownload(store *Store) *Download {
	return &Download{store: store}
}

// ServeHTTP handles incoming file download requests.
func (h *Download) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, remotePath, fsPath, err := h.store.resolve(r)
	if err != nil {
		http.Error(w, "Invalid namespace or path in URL", http.StatusForbidden)
		return
	}

	info, err := os.Stat(fsPath)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", mimeType(remotePath))
	http.ServeFile(w, r, fsPath)
}
