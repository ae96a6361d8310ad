package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	// from the entity's current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotFound is returned when a referenced entity does not exist or is
	// not visible to the tenant
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an optimistic-lock version check fails;
	// the caller must re-read and retry, the engine never retries on its own
	ErrConflict = errors.New("version conflict")

	// ErrForbidden is returned when the acting user lacks permission or is
	// not the step's assignee
	ErrForbidden = errors.New("forbidden")
)

// ValidationFailedError carries the complete list of structural violations
// found by the graph validator or by input-level checks. Callers must surface
// the whole list, not just the first entry.
type ValidationFailedError struct {
	Violations []ValidationError
}

// Error returns all violation messages joined into one line
func (e *ValidationFailedError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// NewValidationFailed wraps a non-empty violation list into an error
func NewValidationFailed(violations []ValidationError) error {
	return &ValidationFailedError{Violations: violations}
}
