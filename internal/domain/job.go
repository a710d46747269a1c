package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the processing state of a job
type JobStatus string

// Possible job status values
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Common validation errors for Job
var (
	ErrEmptyJobID       = errors.New("job ID cannot be empty")
	ErrInvalidJobStatus = errors.New("invalid job status")
	ErrEmptyInputRef    = errors.New("job input locator cannot be empty")
)

// ParseJobStatus converts a raw string into a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if !status.IsValid() {
		return "", NewValidationError("status", "must be one of queued, processing, completed, failed", ErrInvalidJobStatus)
	}
	return status, nil
}

// IsValid reports whether s is one of the known statuses.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is legal out of s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether moving from s to next is a legal forward step.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// Locator addresses one object inside the blob store.
type Locator struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// String renders the locator as bucket/key.
func (l Locator) String() string {
	return l.Bucket + "/" + l.Key
}

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool {
	return l.Bucket == "" && l.Key == ""
}

// Callback is the caller-supplied completion hook. Data is opaque and echoed
// back verbatim.
type Callback struct {
	URL  string          `json:"url"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Job is one submitted unit of work tracked end-to-end by its ID.
// The ledger record for a job is the single source of truth for its status.
type Job struct {
	ID         string    `json:"job_id"`
	Status     JobStatus `json:"status"`
	Input      Locator   `json:"input_ref"`
	Callback   *Callback `json:"callback,omitempty"`
	ResultRefs []Locator `json:"result_refs"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewJob creates a queued job for the given input.
// Returns an error if validation fails.
func NewJob(id string, input Locator, callback *Callback) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:         id,
		Status:     JobStatusQueued,
		Input:      input,
		Callback:   callback,
		ResultRefs: []Locator{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
func (j *Job) Validate() error {
	if j.ID == "" {
		return ErrEmptyJobID
	}

	if j.Input.Bucket == "" || j.Input.Key == "" {
		return ErrEmptyInputRef
	}

	if !j.Status.IsValid() {
		return ErrInvalidJobStatus
	}

	return nil
}

// Apply folds an update into an in-memory copy of the job. Store
// implementations use it so that every backend applies updates identically.
func (j *Job) Apply(update JobUpdate, now time.Time) {
	if update.Status != nil {
		j.Status = *update.Status
	}
	if len(update.AppendResultRefs) > 0 {
		j.ResultRefs = append(j.ResultRefs, update.AppendResultRefs...)
	}
	if update.Error != nil {
		j.Error = *update.Error
	}
	j.UpdatedAt = now
}

// Clone returns a deep copy so callers never share slices with a store.
func (j *Job) Clone() *Job {
	c := *j
	c.ResultRefs = append([]Locator{}, j.ResultRefs...)
	if j.Callback != nil {
		cb := *j.Callback
		cb.Data = append(json.RawMessage(nil), j.Callback.Data...)
		c.Callback = &cb
	}
	return &c
}

// JobUpdate is a partial set of fields written to the ledger in one atomic step.
// Nil fields are left untouched; AppendResultRefs is appended in order.
type JobUpdate struct {
	Status           *JobStatus
	AppendResultRefs []Locator
	Error            *string
}

// StatusUpdate builds an update that only changes the status.
func StatusUpdate(status JobStatus) JobUpdate {
	return JobUpdate{Status: &status}
}

// FailureUpdate builds an update that marks a job failed with a cause.
func FailureUpdate(cause string) JobUpdate {
	status := JobStatusFailed
	return JobUpdate{Status: &status, Error: &cause}
}

// InputKey returns the object key under which a job's input payload is stored.
func InputKey(jobID string) string {
	return jobID + ".input"
}

// ArtifactKey returns the object key of a named artifact produced for a job.
func ArtifactKey(jobID, name string) string {
	return jobID + "/" + name
}
