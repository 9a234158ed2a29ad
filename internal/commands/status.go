// Package commands turns the organizing operations into user-facing
// commands. Every command returns a Status; no outcome goes unreported.
package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/starford/roamorg/internal/apperr"
)

// Level grades a Status.
type Level string

// Status levels.
const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warning"
	LevelError Level = "error"
)

// Status is the outcome of a command as shown to the user.
type Status struct {
	Command string `json:"command"`
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`

	// Err is the error behind a failed or skipped command.
	Err error `json:"-"`
}

// Failed reports whether the command did not complete.
func (s Status) Failed() bool { return s.Level == LevelError }

func (s Status) String() string {
	if s.Level == LevelInfo {
		return s.Message
	}
	return strings.ToUpper(string(s.Level)) + ": " + s.Message
}

func info(cmd, msg string, details any) Status {
	return Status{Command: cmd, Level: LevelInfo, Message: msg, Details: details}
}

func warn(cmd, msg string, details any) Status {
	return Status{Command: cmd, Level: LevelWarn, Message: msg, Details: details}
}

// failure describes err for the user. Disabled mode is a warning, not an
// error: the command simply did nothing.
func failure(cmd string, err error) Status {
	var msg string
	switch {
	case errors.Is(err, apperr.ErrDisabled):
		st := warn(cmd, cmd+" skipped: roamorg mode is disabled (run `mode enable`)", nil)
		st.Err = err
		return st
	case errors.Is(err, apperr.ErrNotAHeadline):
		msg = "not on a headline"
	case errors.Is(err, apperr.ErrNoIDLink):
		msg = "headline title has no [[id:...][...]] link"
	case errors.Is(err, apperr.ErrUnknownNode):
		msg = "linked node is not in the index"
	case errors.Is(err, apperr.ErrInvalidConfig):
		msg = "configuration is invalid"
	case errors.Is(err, apperr.ErrOutsideRoot):
		msg = "outside of the roam directory"
	case errors.Is(err, apperr.ErrNotFound):
		msg = "not found"
	default:
		msg = "failed"
	}
	return Status{Command: cmd, Level: LevelError, Message: fmt.Sprintf("%s: %s (%v)", cmd, msg, err), Err: err}
}
