package api

import (
	"strconv"

	"github.com/starford/roamorg/internal/models"
)

// PositionRequest is the body of relocate and delete. Either At ("file:line")
// or File and Line must be set.
type PositionRequest struct {
	At   string `json:"at,omitempty" example:"inbox.org:12"`
	File string `json:"file,omitempty" example:"inbox.org"`
	Line int    `json:"line,omitempty" example:"12"`
}

// Position resolves the request to a models.Position.
func (p PositionRequest) Position() (models.Position, error) {
	if p.At != "" {
		return models.ParsePosition(p.At)
	}
	return models.ParsePosition(p.File + ":" + strconv.Itoa(p.Line))
}

// ModeRequest is the optional body of mode enable and toggle.
type ModeRequest struct {
	// AnyDir skips the working directory check.
	AnyDir bool `json:"any_dir,omitempty"`
}
