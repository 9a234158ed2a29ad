package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/roamorg/internal/commands"
	"github.com/starford/roamorg/internal/storage"
)

// NewRouter creates a chi router with all API routes mounted. A non-empty
// token is required as a Bearer token on every route. sseHandler, if
// non-nil, is served at GET /events behind the same check.
func NewRouter(runner *commands.Runner, store storage.Provider, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(runner)
	fh := NewFileHandler(store)

	r := chi.NewRouter()
	r.Use(RequireBearer(token))

	// Configuration and layout.
	r.Get("/validate", h.Validate)
	r.Post("/mkdirs", h.MakeDirs)
	r.Post("/top-index", h.TopIndex)

	// Organizing commands.
	r.Post("/relocate", h.Relocate)
	r.Post("/delete", h.Delete)
	r.Post("/update-mocs", h.UpdateMOCs)
	r.Post("/ref-backlinks", h.RefBacklinks)

	// Mode.
	r.Get("/mode", h.Mode)
	r.Post("/mode/{action}", h.SetMode)

	// Index.
	r.Post("/sync", h.Sync)
	r.Get("/nodes/{id}", h.GetNode)
	r.Get("/search", h.Search)
	r.Get("/files/*", fh.ServeFile)

	// Event stream.
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
