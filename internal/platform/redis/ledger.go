package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/store"
)

// createScript inserts a job hash only if the key is absent.
//
// KEYS: 1 job hash, 2 result list, 3 status index
// ARGV: 1 score, 2 job id, 3 number of field pairs, then the pairs, then refs
var createScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
local n = tonumber(ARGV[3])
for i = 4, 3 + 2 * n, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
for i = 4 + 2 * n, #ARGV do
  redis.call('RPUSH', KEYS[2], ARGV[i])
end
redis.call('ZADD', KEYS[3], ARGV[1], ARGV[2])
return 1
`)

// updateScript applies a JobUpdate, optionally guarded by the current status.
//
// KEYS: 1 job hash, 2 result list
// ARGV: 1 expected status or empty, 2 new status or empty, 3 '1' to set error,
// 4 error, 5 updated_at, 6 status index prefix, 7 job id, then refs
var updateScript = goredis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
  return 'NOT_FOUND'
end
if ARGV[1] ~= '' and cur ~= ARGV[1] then
  return 'CONFLICT'
end
for i = 8, #ARGV do
  redis.call('RPUSH', KEYS[2], ARGV[i])
end
if ARGV[3] == '1' then
  redis.call('HSET', KEYS[1], 'error', ARGV[4])
end
if ARGV[2] ~= '' and ARGV[2] ~= cur then
  local score = redis.call('HGET', KEYS[1], 'created_at')
  redis.call('ZREM', ARGV[6] .. cur, ARGV[7])
  redis.call('ZADD', ARGV[6] .. ARGV[2], score, ARGV[7])
  redis.call('HSET', KEYS[1], 'status', ARGV[2])
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[5])
return 'OK'
`)

// JobLedger is a store.JobLedger backed by Redis.
type JobLedger struct {
	client goredis.Cmdable
	prefix string
	logger *slog.Logger
}

var _ store.JobLedger = (*JobLedger)(nil)

// NewJobLedger creates a ledger using keys under prefix. The caller owns the
// client lifecycle.
func NewJobLedger(client goredis.Cmdable, prefix string, logger *slog.Logger) *JobLedger {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobLedger{client: client, prefix: prefix, logger: logger.With("component", "redis_ledger")}
}

func (l *JobLedger) jobKey(id string) string             { return l.prefix + "job:" + id }
func (l *JobLedger) refsKey(id string) string            { return l.prefix + "job:" + id + ":refs" }
func (l *JobLedger) statusPrefix() string                { return l.prefix + "status:" }
func (l *JobLedger) statusKey(s domain.JobStatus) string { return l.statusPrefix() + string(s) }

// Ping verifies the Redis connection is alive.
func (l *JobLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Create implements store.JobLedger.
func (l *JobLedger) Create(ctx context.Context, job *domain.Job) error {
	fields, err := jobToFields(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	args := []any{job.CreatedAt.UnixMicro(), job.ID, len(fields) / 2}
	args = append(args, fields...)
	for _, ref := range job.ResultRefs {
		encoded, err := json.Marshal(ref)
		if err != nil {
			return fmt.Errorf("encode result ref: %w", err)
		}
		args = append(args, string(encoded))
	}

	created, err := createScript.Run(ctx, l.client,
		[]string{l.jobKey(job.ID), l.refsKey(job.ID), l.statusKey(job.Status)}, args...).Int()
	if err != nil {
		return store.NewStorageError("create", "job", err)
	}
	if created == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

// Get implements store.JobLedger. The hash and the result list are read in
// one MULTI/EXEC block.
func (l *JobLedger) Get(ctx context.Context, id string) (*domain.Job, error) {
	var hash *goredis.MapStringStringCmd
	var refs *goredis.StringSliceCmd
	_, err := l.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		hash = pipe.HGetAll(ctx, l.jobKey(id))
		refs = pipe.LRange(ctx, l.refsKey(id), 0, -1)
		return nil
	})
	if err != nil {
		return nil, store.NewStorageError("get", "job", err)
	}
	if len(hash.Val()) == 0 {
		return nil, store.ErrJobNotFound
	}
	return jobFromFields(hash.Val(), refs.Val())
}

// SetFields implements store.JobLedger.
func (l *JobLedger) SetFields(ctx context.Context, id string, update domain.JobUpdate) error {
	return l.update(ctx, "set_fields", id, "", update)
}

// CompareAndSet implements store.JobLedger.
func (l *JobLedger) CompareAndSet(ctx context.Context, id string, expected domain.JobStatus, update domain.JobUpdate) error {
	return l.update(ctx, "compare_and_set", id, expected, update)
}

func (l *JobLedger) update(ctx context.Context, op, id string, expected domain.JobStatus, update domain.JobUpdate) error {
	var status, setErr, errText string
	if update.Status != nil {
		status = string(*update.Status)
	}
	if update.Error != nil {
		setErr, errText = "1", *update.Error
	}

	args := []any{
		string(expected),
		status,
		setErr,
		errText,
		time.Now().UTC().UnixMicro(),
		l.statusPrefix(),
		id,
	}
	for _, ref := range update.AppendResultRefs {
		encoded, err := json.Marshal(ref)
		if err != nil {
			return fmt.Errorf("encode result ref: %w", err)
		}
		args = append(args, string(encoded))
	}

	res, err := updateScript.Run(ctx, l.client, []string{l.jobKey(id), l.refsKey(id)}, args...).Text()
	if err != nil {
		return store.NewStorageError(op, "job", err)
	}

	switch res {
	case "OK":
		return nil
	case "NOT_FOUND":
		return store.ErrJobNotFound
	case "CONFLICT":
		return store.ErrStatusConflict
	default:
		return store.NewStorageError(op, "job", fmt.Errorf("unexpected script result %q", res))
	}
}

// ListByStatus implements store.JobLedger.
func (l *JobLedger) ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	ids, err := l.client.ZRange(ctx, l.statusKey(status), 0, -1).Result()
	if err != nil {
		return nil, store.NewStorageError("list", "job", err)
	}

	jobs := make([]*domain.Job, 0, len(ids))
	for _, id := range ids {
		job, err := l.Get(ctx, id)
		if errors.Is(err, store.ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		// The index and the record can diverge between the two reads.
		if job.Status != status {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func jobToFields(job *domain.Job) ([]any, error) {
	fields := []any{
		"id", job.ID,
		"status", string(job.Status),
		"input_bucket", job.Input.Bucket,
		"input_key", job.Input.Key,
		"error", job.Error,
		"created_at", strconv.FormatInt(job.CreatedAt.UnixMicro(), 10),
		"updated_at", strconv.FormatInt(job.UpdatedAt.UnixMicro(), 10),
	}
	if job.Callback != nil {
		encoded, err := json.Marshal(job.Callback)
		if err != nil {
			return nil, err
		}
		fields = append(fields, "callback", string(encoded))
	}
	return fields, nil
}

func jobFromFields(m map[string]string, refs []string) (*domain.Job, error) {
	job := &domain.Job{
		ID:         m["id"],
		Status:     domain.JobStatus(m["status"]),
		Input:      domain.Locator{Bucket: m["input_bucket"], Key: m["input_key"]},
		Error:      m["error"],
		ResultRefs: make([]domain.Locator, 0, len(refs)),
	}

	if raw := m["callback"]; raw != "" {
		var cb domain.Callback
		if err := json.Unmarshal([]byte(raw), &cb); err != nil {
			return nil, fmt.Errorf("decode callback of job %s: %w", job.ID, err)
		}
		job.Callback = &cb
	}

	for _, raw := range refs {
		var ref domain.Locator
		if err := json.Unmarshal([]byte(raw), &ref); err != nil {
			return nil, fmt.Errorf("decode result ref of job %s: %w", job.ID, err)
		}
		job.ResultRefs = append(job.ResultRefs, ref)
	}

	var err error
	if job.CreatedAt, err = parseMicros(m["created_at"]); err != nil {
		return nil, fmt.Errorf("decode created_at of job %s: %w", job.ID, err)
	}
	if job.UpdatedAt, err = parseMicros(m["updated_at"]); err != nil {
		return nil, fmt.Errorf("decode updated_at of job %s: %w", job.ID, err)
	}
	return job, nil
}

func parseMicros(s string) (time.Time, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(v).UTC(), nil
}
