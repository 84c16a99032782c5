// Package errors provides the sentinel errors and wrapping helpers shared by
// the statistics engine.
//
// Callers test error categories with Is/As (re-exported from the standard
// library) rather than comparing messages.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Table persistence
	ErrMalformedTable = errors.New("malformed stats table")
	ErrTableNotFound  = errors.New("stats table not found")

	// Event recording
	ErrClockSkew        = errors.New("negative upload latency (clock skew or malformed filename)")
	ErrInvalidImagePath = errors.New("invalid image path")
	ErrInvalidKey       = errors.New("invalid table key")

	// Configuration
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")

	// Lifecycle
	ErrNotRunning     = errors.New("service not running")
	ErrAlreadyRunning = errors.New("service already running")
)

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// New is a convenience wrapper for errors.New
var New = errors.New

// ============================================================================
// MalformedTableError
// ============================================================================

// MalformedTableError reports a persisted table that cannot be loaded without
// fabricating data: a line with the wrong number of fields, an unparseable
// value, or a data-line count other than one per minute of the day.
type MalformedTableError struct {
	Path   string
	Line   int // 1-based line number, 0 when the problem is not line-specific
	Reason string
}

// Error implements the error interface.
func (e *MalformedTableError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Unwrap lets errors.Is(err, ErrMalformedTable) match.
func (e *MalformedTableError) Unwrap() error {
	return ErrMalformedTable
}

// NewMalformedTable creates a MalformedTableError.
func NewMalformedTable(path string, line int, format string, args ...interface{}) error {
	return &MalformedTableError{
		Path:   path,
		Line:   line,
		Reason: fmt.Sprintf(format, args...),
	}
}

// IsMalformedTable returns true if err is or wraps a MalformedTableError.
func IsMalformedTable(err error) bool {
	return errors.Is(err, ErrMalformedTable)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
