package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
)

// Folders is a handler for creating folders.
type Folders struct {
	store *Store
}

// NewFolders creates a new Folders handler.
func NewFolders(store *Store) *Folders {
	return &Folders{store: store}
}

// ServeHTTP handles incoming folder creation requests. Creating a folder
// that already exists responds OK, missing parents are created.
func (h *Folders) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	namespace, remotePath, fsPath, err := h.store.resolve(r)
	if err != nil {
		http.Error(w, "Invalid namespace or path in URL", http.StatusForbidden)
		return
	}

	if info, err := os.Stat(fsPath); err == nil {
		if !info.IsDir() {
			http.Error(w, "Path is a file", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	} else if !errors.Is(err, os.ErrNotExist) {
		http.Error(w, "Failed to create folder", http.StatusInternalServerError)
		return
	}

	if err := os.MkdirAll(fsPath, 0750); err != nil {
		http.Error(w, "Failed to create folder", http.StatusInternalServerError)
		slog.Error("Error creating folder", "namespace", namespace, "path", remotePath, "err", err)
		return
	}

	slog.Info("Folder created", "namespace", namespace, "path", remotePath)
	w.WriteHeader(http.StatusCreated)
}
