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
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dropdock/dropdock/internal/server/sessions"
)

// sessionState is the response body for session start and append requests.
type sessionState struct {
	ID     string `json:"session_id"`
	Offset int64  `json:"offset"`
}

// Sessions is a handler for chunked upload sessions.
type Sessions struct {
	store *Store
	spool *sessions.Store
}

// NewSessions creates a new Sessions handler spooling chunks through spool.
func NewSessions(store *Store, spool *sessions.Store) *Sessions {
	return &Sessions{store: store, spool: spool}
}

// Start handles requests opening a new upload session with its first chunk.
func (h *Sessions) Start(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r) {
		return
	}

	chunk, ok := h.readChunk(w, r)
	if !ok {
		return
	}

	id, offset, err := h.spool.Start(chunk)
	if err != nil {
		http.Error(w, "Failed to start upload session", http.StatusInternalServerError)
		slog.Error("Error starting upload session", "err", err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionState{ID: id, Offset: offset})
}

// Append handles requests adding a chunk to an existing session.
func (h *Sessions) Append(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r) {
		return
	}

	offset, err := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid offset", http.StatusBadRequest)
		return
	}

	chunk, ok := h.readChunk(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	newOffset, err := h.spool.Append(id, offset, chunk)
	switch {
	case errors.Is(err, sessions.ErrOffsetMismatch):
		http.Error(w, "Session offset mismatch", http.StatusConflict)
		return
	case errors.Is(err, sessions.ErrNotFound), errors.Is(err, sessions.ErrInvalidID):
		http.Error(w, "Upload session not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "Failed to append to upload session", http.StatusInternalServerError)
		slog.Error("Error appending to upload session", "session", id, "err", err)
		return
	}

	writeJSON(w, http.StatusOK, sessionState{ID: id, Offset: newOffset})
}

// Commit handles requests finalizing a session into a stored file.
func (h *Sessions) Commit(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()
	namespace := r.PathValue("namespace")
	if namespace == "" || !h.store.config.IsAllowed(namespace) {
		http.Error(w, "Invalid namespace in URL", http.StatusForbidden)
		return
	}

	remotePath, err := cleanRemotePath(r.URL.Query().Get("path"))
	if err != nil || remotePath == "/" {
		http.Error(w, "Invalid target path", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	spoolPath, err := h.spool.Commit(id)
	switch {
	case errors.Is(err, sessions.ErrNotFound), errors.Is(err, sessions.ErrInvalidID):
		http.Error(w, "Upload session not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "Failed to commit upload session", http.StatusInternalServerError)
		slog.Error("Error committing upload session", "req_id", reqID, "session", id, "err", err)
		return
	}

	fsPath := h.store.fsPath(namespace, remotePath)
	meta, status, err := h.store.putSpooled(reqID, namespace, remotePath, fsPath, spoolPath, r.URL.Query().Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), status)
		slog.Error("Session commit failed", "req_id", reqID, "namespace", namespace, "path", remotePath, "err", err)
		return
	}

	slog.Info("Session successfully committed", "req_id", reqID, "namespace", namespace, "path", remotePath, "size", meta.Size)
	writeJSON(w, status, meta)
}

func (h *Sessions) allowed(w http.ResponseWriter, r *http.Request) bool {
	namespace := r.PathValue("namespace")
	if namespace == "" || !h.store.config.IsAllowed(namespace) {
		http.Error(w, "Invalid namespace in URL", http.StatusForbidden)
		return false
	}
	return true
}

func (h *Sessions) readChunk(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.store.maxUploadSize)
	chunk, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "Chunk too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	return chunk, true
}

// putSpooled moves an assembled spool file into its final location,
// enforcing write mode and quota, and journals the upload. The spool file is
// consumed on success.
func (s *Store) putSpooled(reqID, namespace, remotePath, fsPath, spoolPath, mode string) (fileMetadata, int, error) {
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

	f, err := os.Open(spoolPath)
	if err != nil {
		return fileMetadata{}, http.StatusInternalServerError, errors.New("failed to read assembled upload")
	}
	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	f.Close()
	if err != nil {
		return fileMetadata{}, http.StatusInternalServerError, errors.New("failed to read assembled upload")
	}

	ok, err := s.checkQuota(namespace, size, replaced)
	if err != nil {
		return fileMetadata{}, http.StatusInternalServerError, errors.New("failed to check namespace usage")
	}
	if !ok {
		return fileMetadata{}, http.StatusInsufficientStorage, errors.New("namespace quota exceeded")
	}

	if err := os.MkdirAll(filepath.Dir(fsPath), 0750); err != nil {
		return fileMetadata{}, http.StatusInternalServerError, errors.New("failed to create folder")
	}
	if err := os.Rename(spoolPath, fsPath); err != nil {
		return fileMetadata{}, http.StatusInternalServerError, errors.New("failed to store file")
	}

	now := time.Now().UTC()
	meta := fileMetadata{
		ID:       reqID,
		Path:     remotePath,
		Size:     size,
		SHA256:   hex.EncodeToString(hasher.Sum(nil)),
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
