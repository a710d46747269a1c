package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/jobpipe/internal/store"
)

// blockSlice bounds a single BLMOVE when Pop is asked to block indefinitely,
// so context cancellation is observed between calls.
const blockSlice = time.Second

// WorkQueue is a store.WorkQueue backed by two Redis Lists. New ids are
// pushed on the left of the pending list and popped from the right, which is
// the head.
type WorkQueue struct {
	client   goredis.Cmdable
	pending  string
	inflight string
	logger   *slog.Logger
}

var (
	_ store.WorkQueue = (*WorkQueue)(nil)
	_ store.Recoverer = (*WorkQueue)(nil)
)

// NewWorkQueue creates a queue named name under prefix.
func NewWorkQueue(client goredis.Cmdable, prefix, name string, logger *slog.Logger) *WorkQueue {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	base := prefix + "queue:" + name
	return &WorkQueue{
		client:   client,
		pending:  base + ":pending",
		inflight: base + ":inflight",
		logger:   logger.With("component", "redis_queue", "queue", name),
	}
}

// Ping verifies the Redis connection is alive.
func (q *WorkQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Push implements store.WorkQueue.
func (q *WorkQueue) Push(ctx context.Context, id string) error {
	if err := q.client.LPush(ctx, q.pending, id).Err(); err != nil {
		return store.NewStorageError("push", "queue", err)
	}
	return nil
}

// Pop implements store.WorkQueue. The popped id is moved to the in-flight
// list in the same command, so a crash before Ack leaves it recoverable.
func (q *WorkQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout > 0 {
		return q.move(ctx, timeout)
	}

	for {
		id, err := q.move(ctx, blockSlice)
		if !errors.Is(err, store.ErrQueueEmpty) {
			return id, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
	}
}

func (q *WorkQueue) move(ctx context.Context, timeout time.Duration) (string, error) {
	id, err := q.client.BLMove(ctx, q.pending, q.inflight, "RIGHT", "LEFT", timeout).Result()
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, goredis.Nil):
		return "", store.ErrQueueEmpty
	case ctx.Err() != nil:
		return "", ctx.Err()
	default:
		return "", store.NewStorageError("pop", "queue", err)
	}
}

// Ack implements store.WorkQueue.
func (q *WorkQueue) Ack(ctx context.Context, id string) error {
	if err := q.client.LRem(ctx, q.inflight, 1, id).Err(); err != nil {
		return store.NewStorageError("ack", "queue", err)
	}
	return nil
}

// List implements store.WorkQueue.
func (q *WorkQueue) List(ctx context.Context) ([]string, error) {
	ids, err := q.client.LRange(ctx, q.pending, 0, -1).Result()
	if err != nil {
		return nil, store.NewStorageError("list", "queue", err)
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids, nil
}

// RecoverInflight implements store.Recoverer. Ids are moved back to the head
// of the pending list, oldest first in line.
func (q *WorkQueue) RecoverInflight(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.client.LMove(ctx, q.inflight, q.pending, "LEFT", "RIGHT").Result()
		if errors.Is(err, goredis.Nil) {
			break
		}
		if err != nil {
			return moved, store.NewStorageError("recover", "queue", err)
		}
		moved++
	}
	if moved > 0 {
		q.logger.Info("requeued in-flight items", "count", moved)
	}
	return moved, nil
}
