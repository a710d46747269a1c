package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/store"
)

// stuckJobMonitor periodically fails jobs that stopped making progress
func (r *Runner) stuckJobMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.loopCtx.Done():
			return
		case <-ticker.C:
			if _, err := r.SweepStuckJobs(r.loopCtx); err != nil && r.loopCtx.Err() == nil {
				r.logger.Error("failed to check for stuck jobs", "error", err)
			}
		}
	}
}

// SweepStuckJobs marks failed every processing job whose last update is
// older than StuckJobAge and returns how many it failed. The transition is
// the same forward-only compare-and-set a worker uses, so a worker that
// later tries to commit the job gets a status conflict.
func (r *Runner) SweepStuckJobs(ctx context.Context) (int, error) {
	age := r.config.StuckJobAge
	if age <= 0 {
		return 0, nil
	}

	jobs, err := r.deps.Ledger.ListByStatus(ctx, domain.JobStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to list processing jobs: %w", err)
	}

	cutoff := r.now().Add(-age)
	cause := fmt.Sprintf("abandoned: no progress within %s", age)
	failed := 0

	for _, job := range jobs {
		if !job.UpdatedAt.Before(cutoff) {
			continue
		}
		log := r.logger.With("job_id", job.ID)

		update := domain.FailureUpdate(cause)
		err := r.deps.Ledger.CompareAndSet(ctx, job.ID, domain.JobStatusProcessing, update)
		if errors.Is(err, store.ErrStatusConflict) || errors.Is(err, store.ErrJobNotFound) {
			continue
		}
		if err != nil {
			log.Error("failed to fail stuck job", "error", err)
			continue
		}

		log.Warn("failed stuck job", "last_update", job.UpdatedAt, "stuck_job_age", age.String())
		job.Apply(update, r.now())
		r.emit(ctx, log, job)
		failed++
	}

	if failed > 0 {
		r.logger.Info("stale sweep failed stuck jobs", "count", failed)
	}
	return failed, nil
}
