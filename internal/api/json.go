package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/roamorg/internal/apperr"
	"github.com/starford/roamorg/internal/commands"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeStatus writes a command Status with the HTTP code matching its
// outcome.
func writeStatus(w http.ResponseWriter, st commands.Status) {
	writeJSON(w, statusCode(st), st)
}

func statusCode(st commands.Status) int {
	switch {
	case st.Err == nil && st.Level != commands.LevelError:
		return http.StatusOK
	case errors.Is(st.Err, apperr.ErrDisabled):
		return http.StatusConflict
	case errors.Is(st.Err, apperr.ErrNotFound), errors.Is(st.Err, apperr.ErrUnknownNode):
		return http.StatusNotFound
	case st.Err == nil,
		errors.Is(st.Err, apperr.ErrNotAHeadline),
		errors.Is(st.Err, apperr.ErrNoIDLink),
		errors.Is(st.Err, apperr.ErrInvalidConfig),
		errors.Is(st.Err, apperr.ErrOutsideRoot):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
