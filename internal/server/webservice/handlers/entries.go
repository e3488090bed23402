package handlers

import (
	"errors"
	"net/http"
	"os"
	"path"
	"time"
)

// entry is a single folder listing item.
type entry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	IsFolder bool      `json:"is_folder"`
	Size     int64     `json:"size,omitempty"`
	Modified time.Time `json:"modified,omitzero"`
}

// Entries is a handler for listing the contents of a folder.
type Entries struct {
	store *Store
}

// NewEntries creates a new Entries handler.
func NewEntries(store *Store) *Entries {
	return &Entries{store: store}
}

// ServeHTTP handles incoming folder listing requests.
func (h *Entries) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, remotePath, fsPath, err := h.store.resolve(r)
	if err != nil {
		http.Error(w, "Invalid namespace or path in URL", http.StatusForbidden)
		return
	}

	items, err := os.ReadDir(fsPath)
	if errors.Is(err, os.ErrNotExist) {
		// The namespace root always lists, even before its first upload.
		if remotePath == "/" {
			writeJSON(w, http.StatusOK, []entry{})
			return
		}
		http.Error(w, "Folder not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to list folder", http.StatusInternalServerError)
		return
	}

	entries := make([]entry, 0, len(items))
	for _, item := range items {
		e := entry{
			Name:     item.Name(),
			Path:     path.Join(remotePath, item.Name()),
			IsFolder: item.IsDir(),
		}
		if !item.IsDir() {
			info, err := item.Info()
			if err != nil {
				continue
			}
			e.Size = info.Size()
			e.Modified = info.ModTime().UTC()
		}
		entries = append(entries, e)
	}

	writeJSON(w, http.StatusOK, entries)
}
