package service

import "fmt"

// Submission steps reported in a ServiceError.
const (
	OpStoreInput = "store_input"
	OpCreateJob  = "create_job"
	OpEnqueueJob = "enqueue_job"
)

// ServiceError records which step of a service operation failed. It unwraps
// to the underlying error so the domain error kind is preserved.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s service %s operation failed", e.Service, e.Op)
	}
	return fmt.Sprintf("%s service %s operation failed: %v", e.Service, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a ServiceError.
func NewServiceError(service, op string, err error) error {
	return &ServiceError{Service: service, Op: op, Err: err}
}

func submitError(op string, err error) error {
	return NewServiceError("job", op, err)
}
