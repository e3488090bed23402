package handlers

import (
	"net/http"
)

// Usage is a handler for reporting namespace storage usage.
type Usage struct {
	store *Store
}

// NewUsage creates a new Usage handler.
func NewUsage(store *Store) *Usage {
	return &Usage{store: store}
}

// ServeHTTP handles incoming usage requests.
func (h *Usage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	namespace := r.PathValue("namespace")
	if namespace == "" || !h.store.config.IsAllowed(namespace) {
		http.Error(w, "Invalid namespace in URL", http.StatusForbidden)
		return
	}

	used, err := h.store.usedBytes(namespace)
	if err != nil {
		http.Error(w, "Failed to compute namespace usage", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Used  int64 `json:"used"`
		Quota int64 `json:"quota"`
	}{
		Used:  used,
		Quota: h.store.config.Quota(namespace),
	})
}
