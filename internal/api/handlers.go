package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/roamorg/internal/commands"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	runner *commands.Runner
}

// NewHandler creates a new Handler.
func NewHandler(runner *commands.Runner) *Handler {
	return &Handler{runner: runner}
}

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// Validate handles GET /api/validate.
//
//	@Summary		Validate every roam setting
//	@Tags			config
//	@Produce		json
//	@Success		200	{object}	commands.Status
//	@Failure		422	{object}	commands.Status
//	@Security		BearerAuth
//	@Router			/validate [get]
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, h.runner.Validate(r.Context()))
}

// MakeDirs handles POST /api/mkdirs.
//
//	@Summary		Create the configured directories
//	@Tags			layout
//	@Produce		json
//	@Success		200	{object}	commands.Status
//	@Security		BearerAuth
//	@Router			/mkdirs [post]
func (h *Handler) MakeDirs(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, h.runner.MakeDirs(r.Context()))
}

// TopIndex handles POST /api/top-index.
func (h *Handler) TopIndex(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, h.runner.TopIndex(r.Context()))
}

// Relocate handles POST /api/relocate.
//
//	@Summary		Relocate the node linked from the headline at a position
//	@Tags			organize
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PositionRequest	true	"Entry position"
//	@Success		200		{object}	commands.Status
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	commands.Status
//	@Failure		422		{object}	commands.Status
//	@Security		BearerAuth
//	@Router			/relocate [post]
func (h *Handler) Relocate(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !decode(w, r, &req) {
		return
	}
	pos, err := req.Position()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeStatus(w, h.runner.Relocate(r.Context(), pos))
}

// Delete handles POST /api/delete.
//
//	@Summary		Delete the node linked from the headline at a position
//	@Tags			organize
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PositionRequest	true	"Entry position"
//	@Success		200		{object}	commands.Status
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/delete [post]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !decode(w, r, &req) {
		return
	}
	pos, err := req.Position()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeStatus(w, h.runner.Delete(r.Context(), pos))
}

// UpdateMOCs handles POST /api/update-mocs.
func (h *Handler) UpdateMOCs(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, h.runner.UpdateMOCs(r.Context()))
}

// RefBacklinks handles POST /api/ref-backlinks.
func (h *Handler) RefBacklinks(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, h.runner.RefBacklinks(r.Context()))
}

// Mode handles GET /api/mode.
func (h *Handler) Mode(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, h.runner.ModeStatus(r.Context()))
}

// SetMode handles POST /api/mode/{action} where action is enable, disable
// or toggle.
//
//	@Summary		Change the roamorg mode
//	@Tags			mode
//	@Accept			json
//	@Produce		json
//	@Param			action	path		string		true	"Action"	Enums(enable, disable, toggle)
//	@Param			body	body		ModeRequest	false	"Options"
//	@Success		200		{object}	commands.Status
//	@Failure		422		{object}	commands.Status
//	@Security		BearerAuth
//	@Router			/mode/{action} [post]
func (h *Handler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if !decode(w, r, &req) {
		return
	}
	switch chi.URLParam(r, "action") {
	case "enable":
		writeStatus(w, h.runner.ModeEnable(r.Context(), req.AnyDir))
	case "disable":
		writeStatus(w, h.runner.ModeDisable(r.Context()))
	case "toggle":
		writeStatus(w, h.runner.ModeToggle(r.Context(), req.AnyDir))
	default:
		writeJSON(w, http.StatusNotFound, errorBody("unknown mode action"))
	}
}

// Sync handles POST /api/sync.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, h.runner.Sync(r.Context()))
}

// GetNode handles GET /api/nodes/{id}.
//
//	@Summary		Look a node up by id
//	@Tags			nodes
//	@Produce		json
//	@Param			id	path		string	true	"Node id"
//	@Success		200	{object}	commands.Status
//	@Failure		404	{object}	commands.Status
//	@Security		BearerAuth
//	@Router			/nodes/{id} [get]
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, h.runner.Find(r.Context(), chi.URLParam(r, "id")))
}

// Search handles GET /api/search?q=...&limit=N.
//
//	@Summary		Search node titles and tags
//	@Tags			nodes
//	@Produce		json
//	@Param			q		query		string	true	"Query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	commands.Status
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q parameter is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	writeStatus(w, h.runner.Search(r.Context(), q, limit))
}
