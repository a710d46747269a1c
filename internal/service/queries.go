package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/store"
)

// ValidateJobID rejects ids that Submit could not have produced.
func ValidateJobID(id string) error {
	if id == "" {
		return domain.NewValidationError("job_id", "cannot be empty", domain.ErrEmptyJobID)
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.NewValidationError("job_id", "must be a UUID", nil)
	}
	return nil
}

// GetJob returns the ledger record for id. An id Submit could not have
// produced is reported as ErrJobNotFound.
func (s *JobService) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	if err := ValidateJobID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrJobNotFound, err)
	}

	var job *domain.Job
	err := store.Retry(ctx, s.cfg.Retry, "ledger.get", s.logger, func(ctx context.Context) error {
		var err error
		job, err = s.ledger.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListQueued returns the pending queue contents, head first.
func (s *JobService) ListQueued(ctx context.Context) ([]string, error) {
	var ids []string
	err := store.Retry(ctx, s.cfg.Retry, "queue.list", s.logger, func(ctx context.Context) error {
		var err error
		ids, err = s.queue.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// ListByStatus returns every job in status, oldest first. status is parsed
// from its external form.
func (s *JobService) ListByStatus(ctx context.Context, status string) ([]*domain.Job, error) {
	st, err := domain.ParseJobStatus(status)
	if err != nil {
		return nil, err
	}

	var jobs []*domain.Job
	err = store.Retry(ctx, s.cfg.Retry, "ledger.list", s.logger, func(ctx context.Context) error {
		var err error
		jobs, err = s.ledger.ListByStatus(ctx, st)
		return err
	})
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	return jobs, nil
}

// ArtifactLocator resolves where the artifact name of job id is stored.
// No artifact can exist under a malformed job id, so that case is reported
// as ErrObjectNotFound.
func (s *JobService) ArtifactLocator(id, name string) (domain.Locator, error) {
	if err := ValidateJobID(id); err != nil {
		return domain.Locator{}, fmt.Errorf("%w: %v", store.ErrObjectNotFound, err)
	}
	if err := domain.ValidateArtifactName(name); err != nil {
		return domain.Locator{}, err
	}
	return domain.Locator{Bucket: s.cfg.OutputBucket, Key: domain.ArtifactKey(id, name)}, nil
}

// GetArtifact returns the stored bytes of one artifact.
func (s *JobService) GetArtifact(ctx context.Context, id, name string) (*store.Object, error) {
	loc, err := s.ArtifactLocator(id, name)
	if err != nil {
		return nil, err
	}

	var obj *store.Object
	err = store.Retry(ctx, s.cfg.Retry, "blob.get", s.logger, func(ctx context.Context) error {
		var err error
		obj, err = s.blobs.Get(ctx, loc.Bucket, loc.Key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// DeleteArtifact removes one artifact. The job's result_refs are frozen and
// keep the locator.
func (s *JobService) DeleteArtifact(ctx context.Context, id, name string) error {
	loc, err := s.ArtifactLocator(id, name)
	if err != nil {
		return err
	}

	err = store.Retry(ctx, s.cfg.Retry, "blob.delete", s.logger, func(ctx context.Context) error {
		return s.blobs.Delete(ctx, loc.Bucket, loc.Key)
	})
	if err != nil {
		return err
	}
	s.logger.Info("artifact deleted", "job_id", id, "artifact", name)
	return nil
}
