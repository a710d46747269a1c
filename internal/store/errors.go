package store

import (
	"errors"
	"fmt"

	"github.com/phrazzld/jobpipe/internal/domain"
)

// Contract errors shared by every store implementation.
var (
	// ErrJobNotFound is returned when no ledger record exists for a job id.
	ErrJobNotFound = fmt.Errorf("%w: job", domain.ErrNotFound)

	// ErrObjectNotFound is returned when a bucket/key pair has no object.
	ErrObjectNotFound = fmt.Errorf("%w: object", domain.ErrNotFound)

	// ErrAlreadyExists is returned by JobLedger.Create when the id is taken.
	// Submission must never silently overwrite a record.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrStatusConflict is returned by JobLedger.CompareAndSet when the
	// stored status differs from the expected one.
	ErrStatusConflict = errors.New("job status conflict")

	// ErrQueueEmpty is returned by WorkQueue.Pop when the timeout elapses
	// before an item becomes available.
	ErrQueueEmpty = errors.New("queue empty")
)

// IsNotFoundError reports whether err is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// StoreError adds context to a failure of a backing store. It always matches
// domain.ErrStorage so callers can retry it.
type StoreError struct {
	Entity    string // e.g. "job", "object", "queue"
	Operation string // e.g. "create", "put", "pop"
	Err       error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %v", e.Operation, e.Entity, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed", e.Operation, e.Entity)
}

// Unwrap supports errors.Is/errors.As against both domain.ErrStorage and the cause.
func (e *StoreError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrStorage}
	}
	return []error{domain.ErrStorage, e.Err}
}

// NewStorageError wraps a transient backend failure.
func NewStorageError(operation, entity string, err error) error {
	return &StoreError{Entity: entity, Operation: operation, Err: err}
}
