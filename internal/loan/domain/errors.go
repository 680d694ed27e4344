package loan

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("loan: validation failed")
	// ErrApplicationNotFound is returned when an application is absent.
	ErrApplicationNotFound = errors.New("loan: application not found")
	// ErrForbidden is returned when the caller does not own the application.
	ErrForbidden = errors.New("loan: forbidden")
)

// ValidationError reports malformed loan input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("loan: %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
