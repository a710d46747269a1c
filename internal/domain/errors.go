package domain

import (
	"errors"
	"fmt"
)

// The closed set of error kinds every operation can fail with.
var (
	// ErrValidation is returned for bad input. It is raised before any write
	// and is user-correctable.
	ErrValidation = errors.New("validation failed")

	// ErrStorage marks a transient infrastructure fault. Callers retry it with
	// backoff at the call site.
	ErrStorage = errors.New("storage failure")

	// ErrNotFound is returned for a missing ledger record or blob. It is never retried.
	ErrNotFound = errors.New("not found")

	// ErrProcessing is returned when the processing engine fails on valid input.
	ErrProcessing = errors.New("processing failed")

	// ErrDelivery is returned when a callback could not be delivered.
	ErrDelivery = errors.New("callback delivery failed")
)

// ErrorKind names one member of the error taxonomy.
type ErrorKind string

// Error kinds, one per sentinel above.
const (
	KindValidation ErrorKind = "validation"
	KindStorage    ErrorKind = "storage"
	KindNotFound   ErrorKind = "not_found"
	KindProcessing ErrorKind = "processing"
	KindDelivery   ErrorKind = "delivery"
)

// KindOf classifies err into exactly one error kind. Errors that carry no
// taxonomy marker are treated as infrastructure faults.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrProcessing):
		return KindProcessing
	case errors.Is(err, ErrDelivery):
		return KindDelivery
	default:
		return KindStorage
	}
}

// ValidationError describes which input field was rejected and why.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// Unwrap exposes the specific cause, if any.
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil || e.Err == ErrValidation {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// NewValidationError creates a ValidationError for field. err is an optional
// more specific cause; the result always matches ErrValidation.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// ProcessingError wraps a failure reported by the processing engine.
type ProcessingError struct {
	Err error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing failed: %v", e.Err)
}

// Unwrap exposes both the kind marker and the engine's cause.
func (e *ProcessingError) Unwrap() []error {
	return []error{ErrProcessing, e.Err}
}

// NewProcessingError wraps err as a processing failure. A nil err yields nil.
func NewProcessingError(err error) error {
	if err == nil {
		return nil
	}
	return &ProcessingError{Err: err}
}
