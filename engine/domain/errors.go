package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnknownSource   = errors.New("unknown source")
	ErrInvalidRecord   = errors.New("invalid record")
	ErrTranslation     = errors.New("translation failed")
	ErrPersistence     = errors.New("persistence failed")
	ErrNotFound        = errors.New("not found")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// StageError records which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }
