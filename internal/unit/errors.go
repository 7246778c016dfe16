package unit

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an unknown unit or cluster id.
var ErrNotFound = errors.New("not found")

// ValidationError reports a missing or invalid required field. It is
// non-fatal to the caller and maps to a success:false response at the
// command boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundf wraps ErrNotFound with a description of what was looked up.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}
