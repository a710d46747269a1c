package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/phrazzld/jobpipe/internal/api/shared"
	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/platform/logger"
	"github.com/phrazzld/jobpipe/internal/service"
	"github.com/phrazzld/jobpipe/internal/store"
)

// JobService is the subset of service.JobService the handlers depend on.
type JobService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (string, error)
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListQueued(ctx context.Context) ([]string, error)
	ListByStatus(ctx context.Context, status string) ([]*domain.Job, error)
	GetArtifact(ctx context.Context, id, name string) (*store.Object, error)
	DeleteArtifact(ctx context.Context, id, name string) error
}

// base64 overhead plus room for the callback and JSON framing.
const requestEnvelopeBytes = 64 << 10

// JobHandler handles job-related HTTP requests.
type JobHandler struct {
	jobs        JobService
	maxBodySize int64
	logger      *slog.Logger
}

// NewJobHandler creates a new JobHandler. maxPayloadBytes is the submission
// payload limit; the request body limit is derived from it.
func NewJobHandler(jobs JobService, maxPayloadBytes int64, logger *slog.Logger) (*JobHandler, error) {
	if jobs == nil {
		return nil, domain.NewValidationError("jobs", "cannot be nil", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = service.DefaultMaxPayloadBytes
	}

	return &JobHandler{
		jobs:        jobs,
		maxBodySize: maxPayloadBytes/3*4 + 4 + requestEnvelopeBytes,
		logger:      logger.With(slog.String("component", "job_handler")),
	}, nil
}

// SubmitJob handles POST /jobs.
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOr(r.Context(), h.logger)

	var req SubmitJobRequest
	if err := shared.DecodeJSON(w, r, &req, h.maxBodySize); err != nil {
		if errors.Is(err, shared.ErrBodyTooLarge) {
			handleAPIError(w, r, err)
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		handleAPIError(w, r, err)
		return
	}

	submit := service.SubmitRequest{Payload: req.Payload}
	if req.Callback != nil {
		submit.Callback = &domain.Callback{URL: req.Callback.URL, Data: req.Callback.Data}
	}

	id, err := h.jobs.Submit(r.Context(), submit)
	if err != nil {
		handleAPIError(w, r, err)
		return
	}

	log.Info("job submitted", slog.String("job_id", id), slog.Int("payload_bytes", len(req.Payload)))
	shared.RespondWithJSON(w, r, http.StatusOK, SubmitJobResponse{JobID: id})
}

// ListJobs handles GET /jobs. Without a status filter it returns the ids
// still waiting in the queue; with ?status= it returns matching records.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		ids, err := h.jobs.ListQueued(r.Context())
		if err != nil {
			handleAPIError(w, r, err)
			return
		}
		shared.RespondWithJSON(w, r, http.StatusOK, ListQueuedResponse{Queued: ids})
		return
	}

	jobs, err := h.jobs.ListByStatus(r.Context(), status)
	if err != nil {
		handleAPIError(w, r, err)
		return
	}

	resp := ListJobsResponse{Status: domain.JobStatus(status), Jobs: make([]JobResponse, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, jobToResponse(job))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		handleAPIError(w, r, err)
		return
	}

	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		handleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// GetArtifact handles GET /jobs/{id}/artifacts/{name} and serves the stored
// bytes with their stored content type.
func (h *JobHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	id, name, ok := h.artifactParams(w, r)
	if !ok {
		return
	}

	obj, err := h.jobs.GetArtifact(r.Context(), id, name)
	if err != nil {
		handleAPIError(w, r, err)
		return
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(obj.Data); err != nil {
		logger.FromContextOr(r.Context(), h.logger).Debug("artifact write aborted",
			slog.String("job_id", id), slog.String("error", err.Error()))
	}
}

// DeleteArtifact handles DELETE /jobs/{id}/artifacts/{name}.
func (h *JobHandler) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	id, name, ok := h.artifactParams(w, r)
	if !ok {
		return
	}

	if err := h.jobs.DeleteArtifact(r.Context(), id, name); err != nil {
		handleAPIError(w, r, err)
		return
	}

	logger.FromContextOr(r.Context(), h.logger).Info("artifact deleted",
		slog.String("job_id", id), slog.String("artifact", name))
	shared.RespondWithJSON(w, r, http.StatusOK, DeleteArtifactResponse{Deleted: name})
}

func (h *JobHandler) artifactParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	id, err := pathParam(r, "id")
	if err != nil {
		handleAPIError(w, r, err)
		return "", "", false
	}
	name, err := pathParam(r, "name")
	if err != nil {
		handleAPIError(w, r, err)
		return "", "", false
	}
	return id, name, true
}
