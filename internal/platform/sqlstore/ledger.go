package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/store"
)

// JobLedger is a store.JobLedger backed by PostgreSQL or SQLite. Every
// update runs in one transaction, so readers see it entirely or not at all.
type JobLedger struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

var _ store.JobLedger = (*JobLedger)(nil)

// NewJobLedger wraps an open database whose schema is migrated.
func NewJobLedger(db *sql.DB, dialect Dialect, logger *slog.Logger) *JobLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobLedger{db: db, dialect: dialect, logger: logger.With("component", "sql_ledger")}
}

// Ping verifies the database connection is alive.
func (l *JobLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *JobLedger) q(query string) string {
	return rebind(l.dialect, query)
}

// Create implements store.JobLedger.
func (l *JobLedger) Create(ctx context.Context, job *domain.Job) error {
	var cbURL, cbData sql.NullString
	if job.Callback != nil {
		cbURL = sql.NullString{String: job.Callback.URL, Valid: true}
		if len(job.Callback.Data) > 0 {
			cbData = sql.NullString{String: string(job.Callback.Data), Valid: true}
		}
	}

	err := store.RunInTransaction(ctx, l.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, l.q(`
			INSERT INTO jobs (id, status, input_bucket, input_key, callback_url, callback_data, error, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			job.ID,
			string(job.Status),
			job.Input.Bucket,
			job.Input.Key,
			cbURL,
			cbData,
			job.Error,
			job.CreatedAt.UnixMicro(),
			job.UpdatedAt.UnixMicro(),
		)
		if err != nil {
			return err
		}
		return l.appendResults(ctx, tx, job.ID, job.ResultRefs)
	})
	if err != nil {
		mapped := MapError(err, "create")
		if !errors.Is(mapped, store.ErrAlreadyExists) {
			l.logger.Error("failed to create job", "job_id", job.ID, "error", err)
		}
		return mapped
	}
	return nil
}

// Get implements store.JobLedger. The job row is read before its results;
// since results are only appended, the list is never older than the row.
func (l *JobLedger) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := l.getJob(ctx, l.db, id)
	if err != nil {
		return nil, err
	}
	refs, err := l.getResults(ctx, l.db, id)
	if err != nil {
		return nil, err
	}
	job.ResultRefs = refs
	return job, nil
}

func (l *JobLedger) getJob(ctx context.Context, db store.DBTX, id string) (*domain.Job, error) {
	row := db.QueryRowContext(ctx, l.q(`
		SELECT id, status, input_bucket, input_key, callback_url, callback_data, error, created_at, updated_at
		FROM jobs WHERE id = ?`), id)
	job, err := scanJob(row)
	if err != nil {
		return nil, MapError(err, "get")
	}
	return job, nil
}

func (l *JobLedger) getResults(ctx context.Context, db store.DBTX, id string) ([]domain.Locator, error) {
	rows, err := db.QueryContext(ctx, l.q(`
		SELECT bucket, object_key FROM job_results WHERE job_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, MapError(err, "get")
	}
	defer func() { _ = rows.Close() }()

	refs := make([]domain.Locator, 0)
	for rows.Next() {
		var ref domain.Locator
		if err := rows.Scan(&ref.Bucket, &ref.Key); err != nil {
			return nil, MapError(err, "get")
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err, "get")
	}
	return refs, nil
}

// SetFields implements store.JobLedger.
func (l *JobLedger) SetFields(ctx context.Context, id string, update domain.JobUpdate) error {
	return l.update(ctx, "set_fields", id, nil, update)
}

// CompareAndSet implements store.JobLedger.
func (l *JobLedger) CompareAndSet(ctx context.Context, id string, expected domain.JobStatus, update domain.JobUpdate) error {
	return l.update(ctx, "compare_and_set", id, &expected, update)
}

var errConflict = errors.New("status mismatch")

func (l *JobLedger) update(ctx context.Context, op, id string, expected *domain.JobStatus, update domain.JobUpdate) error {
	var status, errText sql.NullString
	if update.Status != nil {
		status = sql.NullString{String: string(*update.Status), Valid: true}
	}
	if update.Error != nil {
		errText = sql.NullString{String: *update.Error, Valid: true}
	}
	now := time.Now().UTC().UnixMicro()

	err := store.RunInTransaction(ctx, l.db, func(ctx context.Context, tx *sql.Tx) error {
		query := `UPDATE jobs SET status = COALESCE(?, status), error = COALESCE(?, error), updated_at = ? WHERE id = ?`
		args := []any{status, errText, now, id}
		if expected != nil {
			query += ` AND status = ?`
			args = append(args, string(*expected))
		}

		// The UPDATE also takes the row lock that serializes result appends.
		result, err := tx.ExecContext(ctx, l.q(query), args...)
		if err != nil {
			return err
		}
		ok, err := CheckRowsAffected(result)
		if err != nil {
			return err
		}
		if !ok {
			var current string
			err := tx.QueryRowContext(ctx, l.q(`SELECT status FROM jobs WHERE id = ?`), id).Scan(&current)
			if err != nil {
				return err
			}
			return errConflict
		}

		return l.appendResults(ctx, tx, id, update.AppendResultRefs)
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errConflict):
		return store.ErrStatusConflict
	default:
		mapped := MapError(err, op)
		if !errors.Is(mapped, store.ErrJobNotFound) {
			l.logger.Error("failed to update job", "job_id", id, "operation", op, "error", err)
		}
		return mapped
	}
}

func (l *JobLedger) appendResults(ctx context.Context, tx *sql.Tx, id string, refs []domain.Locator) error {
	if len(refs) == 0 {
		return nil
	}

	var next int64
	err := tx.QueryRowContext(ctx, l.q(`SELECT COALESCE(MAX(seq), 0) FROM job_results WHERE job_id = ?`), id).Scan(&next)
	if err != nil {
		return err
	}

	for _, ref := range refs {
		next++
		_, err := tx.ExecContext(ctx, l.q(`
			INSERT INTO job_results (job_id, seq, bucket, object_key) VALUES (?, ?, ?, ?)`),
			id, next, ref.Bucket, ref.Key)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListByStatus implements store.JobLedger.
func (l *JobLedger) ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	rows, err := l.db.QueryContext(ctx, l.q(`
		SELECT id, status, input_bucket, input_key, callback_url, callback_data, error, created_at, updated_at
		FROM jobs WHERE status = ? ORDER BY created_at, id`), string(status))
	if err != nil {
		return nil, MapError(err, "list")
	}

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			_ = rows.Close()
			return nil, MapError(err, "list")
		}
		jobs = append(jobs, job)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, MapError(err, "list")
	}

	// Results are loaded after the cursor is closed; SQLite runs on a
	// single connection.
	for _, job := range jobs {
		refs, err := l.getResults(ctx, l.db, job.ID)
		if err != nil {
			return nil, err
		}
		job.ResultRefs = refs
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*domain.Job, error) {
	var (
		job                  domain.Job
		status               string
		cbURL, cbData        sql.NullString
		createdAt, updatedAt int64
	)
	err := s.Scan(&job.ID, &status, &job.Input.Bucket, &job.Input.Key, &cbURL, &cbData, &job.Error, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	job.Status = domain.JobStatus(status)
	job.CreatedAt = time.UnixMicro(createdAt).UTC()
	job.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	if cbURL.Valid {
		job.Callback = &domain.Callback{URL: cbURL.String}
		if cbData.Valid {
			job.Callback.Data = json.RawMessage(cbData.String)
		}
	}
	return &job, nil
}

// String identifies the ledger in logs.
func (l *JobLedger) String() string {
	return fmt.Sprintf("sql ledger (%s)", l.dialect)
}
