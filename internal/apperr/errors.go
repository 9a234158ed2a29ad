// Package apperr defines the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Input errors: the invocation aborts before touching any file.
	ErrNotAHeadline = errors.New("position is not inside a headline")
	ErrNoIDLink     = errors.New("headline title has no id link")
	ErrUnknownNode  = errors.New("unknown node")

	ErrDisabled      = errors.New("organize mode is disabled")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrOutsideRoot   = errors.New("working directory is outside the roam directory")
	ErrUnknownKind   = errors.New("unknown setting kind")
)
