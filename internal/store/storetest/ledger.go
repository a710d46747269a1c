package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewJob builds a queued job with a fresh id for use in tests.
func NewJob(t *testing.T) *domain.Job {
	t.Helper()
	id := uuid.NewString()
	job, err := domain.NewJob(id, domain.Locator{Bucket: "inputs", Key: domain.InputKey(id)}, nil)
	require.NoError(t, err)
	return job
}

// RunLedgerSuite exercises the store.JobLedger contract. newLedger must
// return an empty, isolated ledger on each call.
func RunLedgerSuite(t *testing.T, newLedger func(t *testing.T) store.JobLedger) {
	t.Run("create and get", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		job := NewJob(t)
		job.Callback = &domain.Callback{URL: "http://example.com/cb", Data: json.RawMessage(`{"song":"abc","n":[1,2]}`)}
		require.NoError(t, ledger.Create(ctx, job))

		got, err := ledger.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, domain.JobStatusQueued, got.Status)
		assert.Equal(t, job.Input, got.Input)
		require.NotNil(t, got.Callback)
		assert.Equal(t, job.Callback.URL, got.Callback.URL)
		assert.JSONEq(t, string(job.Callback.Data), string(got.Callback.Data))
		assert.Empty(t, got.ResultRefs)
		assert.Empty(t, got.Error)
		assert.WithinDuration(t, job.CreatedAt, got.CreatedAt, time.Millisecond)
	})

	t.Run("create rejects duplicates", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		job := NewJob(t)
		require.NoError(t, ledger.Create(ctx, job))

		dup := *job
		dup.Status = domain.JobStatusCompleted
		assert.ErrorIs(t, ledger.Create(ctx, &dup), store.ErrAlreadyExists)

		got, err := ledger.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusQueued, got.Status)
	})

	t.Run("missing job", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		_, err := ledger.Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrJobNotFound)
		assert.ErrorIs(t, ledger.SetFields(ctx, "missing", domain.StatusUpdate(domain.JobStatusFailed)), store.ErrJobNotFound)
		assert.ErrorIs(t, ledger.CompareAndSet(ctx, "missing", domain.JobStatusQueued, domain.StatusUpdate(domain.JobStatusProcessing)), store.ErrJobNotFound)
	})

	t.Run("set fields appends result refs in order", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		job := NewJob(t)
		require.NoError(t, ledger.Create(ctx, job))

		a := domain.Locator{Bucket: "artifacts", Key: domain.ArtifactKey(job.ID, "a")}
		b := domain.Locator{Bucket: "artifacts", Key: domain.ArtifactKey(job.ID, "b")}
		require.NoError(t, ledger.SetFields(ctx, job.ID, domain.JobUpdate{AppendResultRefs: []domain.Locator{a}}))
		require.NoError(t, ledger.SetFields(ctx, job.ID, domain.JobUpdate{AppendResultRefs: []domain.Locator{b}}))

		got, err := ledger.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, []domain.Locator{a, b}, got.ResultRefs)
		assert.Equal(t, domain.JobStatusQueued, got.Status)
		assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
	})

	t.Run("compare and set", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		job := NewJob(t)
		require.NoError(t, ledger.Create(ctx, job))

		require.NoError(t, ledger.CompareAndSet(ctx, job.ID, domain.JobStatusQueued, domain.StatusUpdate(domain.JobStatusProcessing)))
		assert.ErrorIs(t,
			ledger.CompareAndSet(ctx, job.ID, domain.JobStatusQueued, domain.StatusUpdate(domain.JobStatusProcessing)),
			store.ErrStatusConflict)

		require.NoError(t, ledger.CompareAndSet(ctx, job.ID, domain.JobStatusProcessing, domain.FailureUpdate("engine crashed")))

		got, err := ledger.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusFailed, got.Status)
		assert.Equal(t, "engine crashed", got.Error)
	})

	t.Run("terminal records are immutable under claims", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		job := NewJob(t)
		require.NoError(t, ledger.Create(ctx, job))
		ref := domain.Locator{Bucket: "artifacts", Key: domain.ArtifactKey(job.ID, "out")}

		require.NoError(t, ledger.CompareAndSet(ctx, job.ID, domain.JobStatusQueued, domain.StatusUpdate(domain.JobStatusProcessing)))
		require.NoError(t, ledger.SetFields(ctx, job.ID, domain.JobUpdate{AppendResultRefs: []domain.Locator{ref}}))
		require.NoError(t, ledger.CompareAndSet(ctx, job.ID, domain.JobStatusProcessing, domain.StatusUpdate(domain.JobStatusCompleted)))

		for _, expected := range []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusProcessing} {
			err := ledger.CompareAndSet(ctx, job.ID, expected, domain.JobUpdate{
				Status:           ptr(domain.JobStatusFailed),
				AppendResultRefs: []domain.Locator{{Bucket: "artifacts", Key: "other"}},
				Error:            ptr("late"),
			})
			assert.ErrorIs(t, err, store.ErrStatusConflict)
		}

		got, err := ledger.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, got.Status)
		assert.Equal(t, []domain.Locator{ref}, got.ResultRefs)
		assert.Empty(t, got.Error)
	})

	t.Run("concurrent claims have one winner", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		job := NewJob(t)
		require.NoError(t, ledger.Create(ctx, job))

		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := ledger.CompareAndSet(ctx, job.ID, domain.JobStatusQueued, domain.StatusUpdate(domain.JobStatusProcessing))
				switch {
				case err == nil:
					wins.Add(1)
				case assert.ErrorIs(t, err, store.ErrStatusConflict):
					conflicts.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(15), conflicts.Load())
	})

	t.Run("readers never see completed without refs", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		job := NewJob(t)
		require.NoError(t, ledger.Create(ctx, job))
		require.NoError(t, ledger.CompareAndSet(ctx, job.ID, domain.JobStatusQueued, domain.StatusUpdate(domain.JobStatusProcessing)))

		stop := make(chan struct{})
		var bad atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					got, err := ledger.Get(ctx, job.ID)
					if err == nil && got.Status == domain.JobStatusCompleted && len(got.ResultRefs) == 0 {
						bad.Add(1)
					}
				}
			}()
		}

		ref := domain.Locator{Bucket: "artifacts", Key: domain.ArtifactKey(job.ID, "a")}
		require.NoError(t, ledger.CompareAndSet(ctx, job.ID, domain.JobStatusProcessing, domain.JobUpdate{
			Status:           ptr(domain.JobStatusCompleted),
			AppendResultRefs: []domain.Locator{ref},
		}))
		time.Sleep(20 * time.Millisecond)
		close(stop)
		wg.Wait()

		assert.Zero(t, bad.Load())
	})

	t.Run("list by status is ordered by creation", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		base := time.Now().UTC().Add(-time.Hour)
		var ids []string
		for i := 0; i < 5; i++ {
			job := NewJob(t)
			job.CreatedAt = base.Add(time.Duration(i) * time.Second)
			job.UpdatedAt = job.CreatedAt
			require.NoError(t, ledger.Create(ctx, job))
			ids = append(ids, job.ID)
		}
		require.NoError(t, ledger.CompareAndSet(ctx, ids[2], domain.JobStatusQueued, domain.StatusUpdate(domain.JobStatusProcessing)))

		queued, err := ledger.ListByStatus(ctx, domain.JobStatusQueued)
		require.NoError(t, err)
		assert.Equal(t, []string{ids[0], ids[1], ids[3], ids[4]}, jobIDs(queued))

		processing, err := ledger.ListByStatus(ctx, domain.JobStatusProcessing)
		require.NoError(t, err)
		assert.Equal(t, []string{ids[2]}, jobIDs(processing))

		completed, err := ledger.ListByStatus(ctx, domain.JobStatusCompleted)
		require.NoError(t, err)
		assert.Empty(t, completed)
	})

	t.Run("concurrent creates of distinct jobs", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make(chan error, 50)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				job, err := domain.NewJob(uuid.NewString(), domain.Locator{Bucket: "inputs", Key: fmt.Sprintf("k%d", i)}, nil)
				if err == nil {
					err = ledger.Create(ctx, job)
				}
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}

		queued, err := ledger.ListByStatus(ctx, domain.JobStatusQueued)
		require.NoError(t, err)
		assert.Len(t, queued, 50)
	})
}

func jobIDs(jobs []*domain.Job) []string {
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}

func ptr[T any](v T) *T {
	return &v
}
