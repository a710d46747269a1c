package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/jobpipe/internal/domain"
)

// JobFinished is emitted after a job's terminal status has been committed
// to the ledger. It carries everything a handler needs, so handlers do not
// read the ledger back.
type JobFinished struct {
	// ID uniquely identifies this event.
	ID         uuid.UUID        `json:"event_id"`
	JobID      string           `json:"job_id"`
	Status     domain.JobStatus `json:"status"`
	ResultRefs []domain.Locator `json:"result_refs,omitempty"`
	Error      string           `json:"error,omitempty"`
	Callback   *domain.Callback `json:"callback,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}

// NewJobFinished builds the event for a job in a terminal state.
func NewJobFinished(job *domain.Job) *JobFinished {
	refs := append([]domain.Locator(nil), job.ResultRefs...)
	return &JobFinished{
		ID:         uuid.New(),
		JobID:      job.ID,
		Status:     job.Status,
		ResultRefs: refs,
		Error:      job.Error,
		Callback:   job.Callback,
		FinishedAt: time.Now().UTC(),
	}
}

// Succeeded reports whether the job completed.
func (e *JobFinished) Succeeded() bool {
	return e.Status == domain.JobStatusCompleted
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event. Returned errors are logged by
	// the emitter and never affect the job's recorded outcome.
	HandleEvent(ctx context.Context, event *JobFinished) error
}

// EventEmitter defines an interface for components that can emit events.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *JobFinished) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *JobFinished) error

// HandleEvent implements EventHandler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *JobFinished) error {
	return f(ctx, event)
}
