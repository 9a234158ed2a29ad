package api

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/roamorg/internal/storage"
)

// FileHandler serves the raw content of org files under the roam directory.
type FileHandler struct {
	store storage.Provider
}

// NewFileHandler creates a handler reading through store.
func NewFileHandler(store storage.Provider) *FileHandler {
	return &FileHandler{store: store}
}

// filePath extracts the file path from the URL (everything after /files/).
// Encoded slashes are accepted.
func filePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ServeFile handles GET /api/files/*.
func (h *FileHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	path := filePath(r)
	if path == "" || filepath.Ext(path) != storage.Ext {
		writeJSON(w, http.StatusBadRequest, errorBody("an org file path is required"))
		return
	}
	rel, err := h.store.Rel(path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("path escapes roam directory"))
		return
	}
	data, err := h.store.Read(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("api: read file failed", slog.String("path", rel), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
