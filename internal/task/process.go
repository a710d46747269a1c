package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/engine"
	"github.com/phrazzld/jobpipe/internal/redact"
	"github.com/phrazzld/jobpipe/internal/store"
)

// handle claims job id and drives it to a terminal status.
func (r *Runner) handle(ctx context.Context, workerID int, id string) Outcome {
	log := r.logger.With("job_id", id, "worker_id", workerID)

	err := r.compareAndSet(ctx, log, "ledger.claim", id, domain.JobStatusQueued, domain.StatusUpdate(domain.JobStatusProcessing))
	switch {
	case errors.Is(err, store.ErrStatusConflict), errors.Is(err, store.ErrJobNotFound):
		log.Debug("discarding job that is not queued", "reason", err)
		r.ack(ctx, log, id)
		return OutcomeDiscarded
	case err != nil:
		log.Error("failed to claim job, leaving it unacknowledged", "error", err)
		return OutcomeDeferred
	}

	log.Info("job claimed")
	start := time.Now()

	job, refs, procErr := r.process(ctx, log, id)
	if job == nil {
		job = &domain.Job{ID: id}
	}
	job.ResultRefs = append(job.ResultRefs, refs...)

	outcome := OutcomeCompleted
	if procErr == nil {
		procErr = r.commit(ctx, log, id, domain.StatusUpdate(domain.JobStatusCompleted))
		if errors.Is(procErr, store.ErrStatusConflict) {
			log.Warn("job left processing before it could complete", "error", procErr)
			r.ack(ctx, log, id)
			return OutcomeAbandoned
		}
		if procErr == nil {
			job.Status = domain.JobStatusCompleted
		}
	}

	if procErr != nil {
		outcome = OutcomeFailed
		cause := redact.Cause(procErr)
		log.Error("job failed", "error", cause, "duration_ms", time.Since(start).Milliseconds())

		if err := r.commit(ctx, log, id, domain.FailureUpdate(cause)); err != nil {
			log.Error("failed to record job failure", "error", err)
			r.ack(ctx, log, id)
			return OutcomeAbandoned
		}
		job.Status = domain.JobStatusFailed
		job.Error = cause
	} else {
		log.Info("job completed",
			"artifact_count", len(refs),
			"duration_ms", time.Since(start).Milliseconds())
	}

	job.UpdatedAt = r.now()
	r.emit(ctx, log, job)
	r.ack(ctx, log, id)
	return outcome
}

// commit applies a terminal update guarded by the processing status.
func (r *Runner) commit(ctx context.Context, log *slog.Logger, id string, update domain.JobUpdate) error {
	return r.compareAndSet(ctx, log, "ledger.commit", id, domain.JobStatusProcessing, update)
}

// compareAndSet applies a status-guarded update, retrying transient
// failures. A storage error does not say whether the write landed, so a
// conflict seen after one is checked against the stored record: if it
// already holds the update, the earlier attempt succeeded.
func (r *Runner) compareAndSet(
	ctx context.Context,
	log *slog.Logger,
	operation, id string,
	expected domain.JobStatus,
	update domain.JobUpdate,
) error {
	uncertain := false
	err := store.Retry(ctx, r.config.Retry, operation, log, func(ctx context.Context) error {
		err := r.deps.Ledger.CompareAndSet(ctx, id, expected, update)
		if errors.Is(err, domain.ErrStorage) {
			uncertain = true
		}
		return err
	})
	if !uncertain || !errors.Is(err, store.ErrStatusConflict) {
		return err
	}

	var job *domain.Job
	getErr := store.Retry(ctx, r.config.Retry, "ledger.get", log, func(ctx context.Context) error {
		var err error
		job, err = r.deps.Ledger.Get(ctx, id)
		return err
	})
	if getErr != nil {
		log.Warn("could not verify an interrupted status update", "operation", operation, "error", getErr)
		return err
	}
	if !holdsUpdate(job, update) {
		return err
	}

	log.Info("interrupted status update had been applied", "operation", operation, "status", job.Status)
	return nil
}

// holdsUpdate reports whether job already reflects the status and error
// carried by update.
func holdsUpdate(job *domain.Job, update domain.JobUpdate) bool {
	if update.Status == nil || job.Status != *update.Status {
		return false
	}
	return update.Error == nil || job.Error == *update.Error
}

// process runs the engine for a claimed job and stores its artifacts. It
// returns the job record as loaded before processing and the locators that
// were appended to it.
func (r *Runner) process(ctx context.Context, log *slog.Logger, id string) (*domain.Job, []domain.Locator, error) {
	var job *domain.Job
	err := store.Retry(ctx, r.config.Retry, "ledger.get", log, func(ctx context.Context) error {
		var err error
		job, err = r.deps.Ledger.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load job record: %w", err)
	}

	var input *store.Object
	err = store.Retry(ctx, r.config.Retry, "blob.get", log, func(ctx context.Context) error {
		var err error
		input, err = r.deps.Blobs.Get(ctx, job.Input.Bucket, job.Input.Key)
		return err
	})
	if err != nil {
		return job, nil, fmt.Errorf("failed to fetch input %s: %w", job.Input, err)
	}

	artifacts, err := r.runEngine(ctx, log, input.Data, engine.JobContext{
		JobID:       id,
		Input:       job.Input,
		ContentType: input.ContentType,
	})
	if err != nil {
		return job, nil, err
	}
	if err := checkArtifacts(artifacts); err != nil {
		return job, nil, err
	}

	refs := make([]domain.Locator, 0, len(artifacts))
	for _, a := range artifacts {
		loc, err := r.storeArtifact(ctx, log, id, a)
		if err != nil {
			return job, refs, err
		}
		refs = append(refs, loc)
	}
	return job, refs, nil
}

// storeArtifact writes one artifact and appends its locator while the job
// is still processing.
func (r *Runner) storeArtifact(ctx context.Context, log *slog.Logger, id string, a domain.Artifact) (domain.Locator, error) {
	loc := domain.Locator{Bucket: r.config.OutputBucket, Key: domain.ArtifactKey(id, a.Name)}
	contentType := a.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(a.Data).String()
	}

	err := store.Retry(ctx, r.config.Retry, "blob.put", log, func(ctx context.Context) error {
		return r.deps.Blobs.Put(ctx, loc.Bucket, loc.Key, a.Data, contentType)
	})
	if err != nil {
		return loc, fmt.Errorf("failed to store artifact %s: %w", a.Name, err)
	}

	// Not retried: a lost acknowledgement would append the locator twice.
	err = r.deps.Ledger.CompareAndSet(ctx, id, domain.JobStatusProcessing, domain.JobUpdate{
		AppendResultRefs: []domain.Locator{loc},
	})
	if err != nil {
		return loc, fmt.Errorf("failed to record artifact %s: %w", a.Name, err)
	}

	log.Debug("artifact stored", "artifact", a.Name, "bytes", len(a.Data), "content_type", contentType)
	return loc, nil
}

// runEngine invokes the engine, turning a panic into a processing error.
func (r *Runner) runEngine(ctx context.Context, log *slog.Logger, input []byte, jc engine.JobContext) (artifacts []domain.Artifact, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("engine panicked", "panic", p, "stack", string(debug.Stack()))
			artifacts = nil
			err = domain.NewProcessingError(fmt.Errorf("engine panic: %v", p))
		}
	}()

	artifacts, err = r.deps.Engine.Run(ctx, input, jc)
	if err != nil && !errors.Is(err, domain.ErrProcessing) {
		err = domain.NewProcessingError(err)
	}
	return artifacts, err
}

// checkArtifacts rejects invalid or duplicate names before anything is stored.
func checkArtifacts(artifacts []domain.Artifact) error {
	seen := make(map[string]struct{}, len(artifacts))
	for _, a := range artifacts {
		if err := domain.ValidateArtifactName(a.Name); err != nil {
			return domain.NewProcessingError(fmt.Errorf("engine returned an invalid artifact name %q: %w", a.Name, err))
		}
		if _, dup := seen[a.Name]; dup {
			return domain.NewProcessingError(fmt.Errorf("engine returned artifact %q twice", a.Name))
		}
		seen[a.Name] = struct{}{}
	}
	return nil
}
