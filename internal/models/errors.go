package models

import (
	"errors"
	"fmt"
)

// ErrNotFound signals an unknown ticket id. Surfaced to callers.
var ErrNotFound = errors.New("ticket not found")

// ErrInvalidCategory signals a correction target outside the closed
// enumeration. Surfaced to callers; the ticket is left unmodified.
var ErrInvalidCategory = errors.New("invalid category")

// ValidationError reports a request field that failed validation before any
// pipeline work began.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
