package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound is returned when no source has the given id.
	ErrSourceNotFound = errors.New("source not found")
	// ErrRunInProgress is returned when a run is requested while one is in flight.
	ErrRunInProgress = errors.New("a run is already in progress")
)

// ValidationError rejects caller input before any state is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) ErrorKind() string { return "validation" }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
