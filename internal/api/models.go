package api

import (
	"encoding/json"
	"time"

	"github.com/phrazzld/jobpipe/internal/domain"
)

// SubmitJobRequest defines the payload for POST /jobs.
type SubmitJobRequest struct {
	// Payload is the job input; base64 in JSON.
	Payload []byte `json:"payload" validate:"required"`

	// Callback is notified once when the job finishes
	Callback *CallbackRequest `json:"callback,omitempty"`
}

// CallbackRequest is the callback part of a submission.
type CallbackRequest struct {
	URL string `json:"url" validate:"required,http_url"`

	// Data is echoed back verbatim in the callback payload
	Data json.RawMessage `json:"data,omitempty"`
}

// SubmitJobResponse defines the successful response for POST /jobs.
type SubmitJobResponse struct {
	JobID string `json:"job_id"`
}

// CallbackEcho is the stored callback as returned by the status endpoint.
type CallbackEcho struct {
	URL  string          `json:"url"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JobResponse is the external view of a job record.
type JobResponse struct {
	JobID        string           `json:"job_id"`
	Status       domain.JobStatus `json:"status"`
	ResultRefs   []domain.Locator `json:"result_refs"`
	Error        string           `json:"error,omitempty"`
	CallbackEcho *CallbackEcho    `json:"callback_echo,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ListQueuedResponse defines the response for GET /jobs.
type ListQueuedResponse struct {
	Queued []string `json:"queued"`
}

// ListJobsResponse defines the response for GET /jobs?status=...
type ListJobsResponse struct {
	Status domain.JobStatus `json:"status"`
	Jobs   []JobResponse    `json:"jobs"`
}

// DeleteArtifactResponse defines the response for DELETE /jobs/{id}/artifacts/{name}.
type DeleteArtifactResponse struct {
	Deleted string `json:"deleted"`
}

// jobToResponse converts a domain job into its response shape.
func jobToResponse(job *domain.Job) JobResponse {
	refs := job.ResultRefs
	if refs == nil {
		refs = []domain.Locator{}
	}
	resp := JobResponse{
		JobID:      job.ID,
		Status:     job.Status,
		ResultRefs: refs,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
	if job.Callback != nil {
		resp.CallbackEcho = &CallbackEcho{URL: job.Callback.URL, Data: job.Callback.Data}
	}
	return resp
}
