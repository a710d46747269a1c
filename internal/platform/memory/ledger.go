package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/store"
)

// JobLedger is a map-backed store.JobLedger. Records are copied on the way
// in and out, so every update is visible all at once or not at all.
type JobLedger struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

var _ store.JobLedger = (*JobLedger)(nil)

// NewJobLedger returns an empty ledger.
func NewJobLedger() *JobLedger {
	return &JobLedger{
		jobs: make(map[string]*domain.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create implements store.JobLedger.
func (l *JobLedger) Create(ctx context.Context, job *domain.Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.jobs[job.ID]; exists {
		return store.ErrAlreadyExists
	}
	l.jobs[job.ID] = job.Clone()
	return nil
}

// Get implements store.JobLedger.
func (l *JobLedger) Get(ctx context.Context, id string) (*domain.Job, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	job, ok := l.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return job.Clone(), nil
}

// SetFields implements store.JobLedger.
func (l *JobLedger) SetFields(ctx context.Context, id string, update domain.JobUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	job, ok := l.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	job.Apply(update, l.now())
	return nil
}

// CompareAndSet implements store.JobLedger.
func (l *JobLedger) CompareAndSet(ctx context.Context, id string, expected domain.JobStatus, update domain.JobUpdate) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	job, ok := l.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != expected {
		return store.ErrStatusConflict
	}
	job.Apply(update, l.now())
	return nil
}

// ListByStatus implements store.JobLedger.
func (l *JobLedger) ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.Job, 0)
	for _, job := range l.jobs {
		if job.Status == status {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
