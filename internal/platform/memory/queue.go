package memory

import (
	"context"
	"sync"
	"time"

	"github.com/phrazzld/jobpipe/internal/store"
)

// WorkQueue is a slice-backed store.WorkQueue with an in-flight set, so it
// supports redelivery of unacknowledged ids like the Redis queue does.
type WorkQueue struct {
	mu       sync.Mutex
	pending  []string
	inflight []string
	// notify is closed and replaced whenever an item is pushed.
	notify chan struct{}
}

var (
	_ store.WorkQueue = (*WorkQueue)(nil)
	_ store.Recoverer = (*WorkQueue)(nil)
)

// NewWorkQueue returns an empty queue.
func NewWorkQueue() *WorkQueue {
	return &WorkQueue{notify: make(chan struct{})}
}

// Push implements store.WorkQueue.
func (q *WorkQueue) Push(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, id)
	q.wakeLocked()
	return nil
}

func (q *WorkQueue) wakeLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}

// Pop implements store.WorkQueue.
func (q *WorkQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			id := q.pending[0]
			q.pending = q.pending[1:]
			q.inflight = append(q.inflight, id)
			q.mu.Unlock()
			return id, nil
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-wait:
		case <-deadline:
			return "", store.ErrQueueEmpty
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Ack implements store.WorkQueue. Only the first matching in-flight entry is
// removed, so an id pushed twice must be acked twice.
func (q *WorkQueue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, v := range q.inflight {
		if v == id {
			q.inflight = append(q.inflight[:i], q.inflight[i+1:]...)
			return nil
		}
	}
	return nil
}

// List implements store.WorkQueue.
func (q *WorkQueue) List(ctx context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string{}, q.pending...), nil
}

// RecoverInflight implements store.Recoverer. Recovered ids go to the head
// of the queue since they were admitted before anything still pending.
func (q *WorkQueue) RecoverInflight(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.inflight)
	if n == 0 {
		return 0, nil
	}
	q.pending = append(append([]string{}, q.inflight...), q.pending...)
	q.inflight = nil
	q.wakeLocked()
	return n, nil
}

// Inflight returns the ids popped but not yet acknowledged.
func (q *WorkQueue) Inflight() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string{}, q.inflight...)
}
