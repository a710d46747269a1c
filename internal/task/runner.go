package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/engine"
	"github.com/phrazzld/jobpipe/internal/events"
	"github.com/phrazzld/jobpipe/internal/store"
)

// RunnerConfig holds configuration for the job runner
type RunnerConfig struct {
	// WorkerCount determines how many jobs are processed concurrently
	WorkerCount int

	// PopTimeout bounds each blocking queue pop. Zero blocks until shutdown.
	PopTimeout time.Duration

	// OutputBucket receives every artifact
	OutputBucket string

	// StuckJobAge enables the stale sweep when positive: jobs in processing
	// whose last update is older than this are marked failed
	StuckJobAge time.Duration

	// StuckCheckInterval defines how often the stale sweep runs.
	// If zero, defaults to 1 minute
	StuckCheckInterval time.Duration

	// RecoverOnStart re-queues popped but unacknowledged ids before the
	// workers start, when the queue supports it
	RecoverOnStart bool

	// Retry bounds retries of transient storage failures
	Retry store.RetryPolicy

	// QueueErrorBackoff is how long a worker pauses after a failed pop
	QueueErrorBackoff time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:        4,
		PopTimeout:         5 * time.Second,
		OutputBucket:       "artifacts",
		StuckCheckInterval: time.Minute,
		RecoverOnStart:     true,
		Retry:              store.DefaultRetryPolicy,
		QueueErrorBackoff:  time.Second,
	}
}

// Dependencies are the shared handles a Runner works against.
type Dependencies struct {
	Blobs  store.BlobStore
	Ledger store.JobLedger
	Queue  store.WorkQueue
	Engine engine.Engine
	// Events is optional; finished jobs are announced through it.
	Events events.EventEmitter
}

// Outcome reports what one ProcessOne cycle did.
type Outcome string

// Possible cycle outcomes
const (
	// OutcomeIdle means the pop timed out without a job.
	OutcomeIdle Outcome = "idle"
	// OutcomeDiscarded means the popped job was not queued and was skipped.
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeDeferred means the claim could not be attempted and the id was
	// left unacknowledged for redelivery.
	OutcomeDeferred Outcome = "deferred"
	// OutcomeCompleted means the job was committed as completed.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means the job was committed as failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeAbandoned means processing ended but no terminal status could
	// be committed, usually because the stale sweep already failed the job.
	OutcomeAbandoned Outcome = "abandoned"
)

// Runner manages the worker pool
type Runner struct {
	deps   Dependencies
	config RunnerConfig
	logger *slog.Logger

	// loopCtx stops the workers from popping; workCtx aborts jobs in flight.
	loopCtx   context.Context
	stopLoop  context.CancelFunc
	workCtx   context.Context
	abortWork context.CancelFunc

	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	now     func() time.Time
}

// NewRunner creates a new Runner.
// It returns an error if any of the required dependencies are nil.
func NewRunner(deps Dependencies, config RunnerConfig, logger *slog.Logger) (*Runner, error) {
	if deps.Blobs == nil {
		return nil, domain.NewValidationError("blobs", "cannot be nil", nil)
	}
	if deps.Ledger == nil {
		return nil, domain.NewValidationError("ledger", "cannot be nil", nil)
	}
	if deps.Queue == nil {
		return nil, domain.NewValidationError("queue", "cannot be nil", nil)
	}
	if deps.Engine == nil {
		return nil, domain.NewValidationError("engine", "cannot be nil", nil)
	}
	if config.OutputBucket == "" {
		return nil, domain.NewValidationError("output_bucket", "cannot be empty", nil)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "job_runner")

	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}
	if config.StuckCheckInterval <= 0 {
		config.StuckCheckInterval = time.Minute
	}
	if config.Retry == (store.RetryPolicy{}) {
		config.Retry = store.DefaultRetryPolicy
	}
	if config.QueueErrorBackoff <= 0 {
		config.QueueErrorBackoff = time.Second
	}

	workCtx, abort := context.WithCancel(context.Background())
	return &Runner{
		deps:      deps,
		config:    config,
		logger:    logger,
		workCtx:   workCtx,
		abortWork: abort,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Start recovers unacknowledged queue items if configured, then launches
// the workers and the stale sweep. Cancelling ctx stops the workers from
// taking new jobs.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("runner already started")
	}

	if r.config.RecoverOnStart {
		if err := r.Recover(ctx); err != nil {
			return fmt.Errorf("failed to recover jobs: %w", err)
		}
	}

	r.loopCtx, r.stopLoop = context.WithCancel(ctx)
	r.started = true

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	if r.config.StuckJobAge > 0 {
		r.wg.Add(1)
		go r.stuckJobMonitor()
	}

	r.logger.Info("job runner started",
		"worker_count", r.config.WorkerCount,
		"stale_sweep", r.config.StuckJobAge > 0)
	return nil
}

// Stop stops the workers from taking new jobs and waits for jobs in flight
// to finish. If ctx expires first, in-flight jobs are cancelled and ctx's
// error is returned.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopLoop != nil {
		r.stopLoop()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.abortWork()
		r.logger.Info("job runner stopped")
		return nil
	case <-ctx.Done():
		r.abortWork()
		r.logger.Warn("job runner stop timed out, cancelled jobs in flight")
		return fmt.Errorf("failed to stop job runner: %w", ctx.Err())
	}
}

// Recover moves popped but unacknowledged ids back onto the queue. Queues
// without that capability are left alone.
func (r *Runner) Recover(ctx context.Context) error {
	rec, ok := r.deps.Queue.(store.Recoverer)
	if !ok {
		return nil
	}

	n, err := rec.RecoverInflight(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Info("re-queued unacknowledged jobs", "count", n)
	}
	return nil
}

// worker pops and processes jobs until the runner stops
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	log := r.logger.With("worker_id", id)
	log.Debug("starting worker")

	for {
		if r.loopCtx.Err() != nil {
			log.Debug("stopping worker")
			return
		}

		if _, err := r.ProcessOne(r.loopCtx, id); err != nil {
			if r.loopCtx.Err() != nil {
				log.Debug("stopping worker")
				return
			}
			log.Error("failed to pop from work queue", "error", err)

			select {
			case <-r.loopCtx.Done():
				log.Debug("stopping worker")
				return
			case <-time.After(r.config.QueueErrorBackoff):
			}
		}
	}
}

// ProcessOne runs one pop, claim, process and commit cycle. ctx bounds the
// pop only; a claimed job runs to its terminal commit unless Stop aborts it.
// The returned error is a queue failure; job failures are recorded in the
// ledger instead.
func (r *Runner) ProcessOne(ctx context.Context, workerID int) (Outcome, error) {
	id, err := r.deps.Queue.Pop(ctx, r.config.PopTimeout)
	if errors.Is(err, store.ErrQueueEmpty) {
		return OutcomeIdle, nil
	}
	if err != nil {
		return OutcomeIdle, fmt.Errorf("failed to pop job: %w", err)
	}

	return r.handle(r.workCtx, workerID, id), nil
}

func (r *Runner) ack(ctx context.Context, log *slog.Logger, id string) {
	err := store.Retry(ctx, r.config.Retry, "queue.ack", log, func(ctx context.Context) error {
		return r.deps.Queue.Ack(ctx, id)
	})
	if err != nil {
		log.Error("failed to acknowledge job", "error", err)
	}
}

func (r *Runner) emit(ctx context.Context, log *slog.Logger, job *domain.Job) {
	if r.deps.Events == nil {
		return
	}
	if err := r.deps.Events.EmitEvent(ctx, events.NewJobFinished(job)); err != nil {
		log.Warn("job outcome handler failed", "error", err)
	}
}
