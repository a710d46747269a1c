package store

import (
	"context"
	"time"

	"github.com/phrazzld/jobpipe/internal/domain"
)

// Object is a stored blob with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// BlobStore stores named byte objects inside named buckets.
//
// Transient failures are returned as StoreError and should be retried by the
// caller; missing objects are reported as ErrObjectNotFound and never retried.
type BlobStore interface {
	// EnsureBucket creates bucket if it does not exist. It is idempotent.
	EnsureBucket(ctx context.Context, bucket string) error

	// Put stores data under bucket/key, replacing any previous object.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error

	// Get returns the object stored under bucket/key.
	Get(ctx context.Context, bucket, key string) (*Object, error)

	// Delete removes the object stored under bucket/key.
	Delete(ctx context.Context, bucket, key string) error
}

// JobLedger is the durable per-job record store and the single source of
// truth for job status.
//
// Every write is one atomic multi-field update: a concurrent reader never
// sees part of an update applied.
type JobLedger interface {
	// Create inserts a new record. Returns ErrAlreadyExists if the id exists.
	Create(ctx context.Context, job *domain.Job) error

	// Get returns the record for id, or ErrJobNotFound.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// SetFields applies update unconditionally. Returns ErrJobNotFound if absent.
	SetFields(ctx context.Context, id string, update domain.JobUpdate) error

	// CompareAndSet applies update only if the stored status equals expected.
	// Returns ErrJobNotFound if absent and ErrStatusConflict on a mismatch.
	CompareAndSet(ctx context.Context, id string, expected domain.JobStatus, update domain.JobUpdate) error

	// ListByStatus returns all records with status, oldest first.
	ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error)
}

// WorkQueue is a FIFO handoff of job ids from submitters to workers with
// at-least-once delivery.
type WorkQueue interface {
	// Push appends id to the tail.
	Push(ctx context.Context, id string) error

	// Pop removes and returns the head, blocking up to timeout. A timeout of
	// zero or less blocks until ctx is done. Returns ErrQueueEmpty when the
	// timeout elapses first.
	Pop(ctx context.Context, timeout time.Duration) (string, error)

	// Ack marks a popped id as handled so it is not redelivered.
	Ack(ctx context.Context, id string) error

	// List returns pending ids, head first, without mutating the queue.
	List(ctx context.Context) ([]string, error)
}

// Recoverer is implemented by queues that track popped-but-unacknowledged
// ids and can redeliver them after a crash.
type Recoverer interface {
	// RecoverInflight moves every unacknowledged id back to the pending list
	// and returns how many were moved.
	RecoverInflight(ctx context.Context) (int, error)
}

// Pinger is implemented by backends that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
