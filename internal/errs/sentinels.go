// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (owner already submitted the natural key).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState indicates a record is not in the state the transition requires.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidArgument indicates malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrQueueFull indicates the background verification queue cannot take more work.
	ErrQueueFull = errors.New("verification queue full")

	// ErrFileRejected is matched by every FileError.
	ErrFileRejected = errors.New("file rejected")
)

// FileError rejects a whole upload before any row is ingested.
type FileError struct {
	Reason   string
	Missing  []string // canonical fields with no alias present
	Detected []string // headers seen in the file
}

func (e *FileError) Error() string {
	var b strings.Builder
	b.WriteString(e.Reason)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing required columns: %s", strings.Join(e.Missing, ", "))
	}
	if len(e.Detected) > 0 {
		fmt.Fprintf(&b, " (detected columns: %s)", strings.Join(e.Detected, ", "))
	}
	return b.String()
}

// Is makes errors.Is(err, ErrFileRejected) hold for any FileError.
func (e *FileError) Is(target error) bool { return target == ErrFileRejected }
