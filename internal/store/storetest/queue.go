package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phrazzld/jobpipe/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunQueueSuite exercises the store.WorkQueue contract. newQueue must return
// an empty, isolated queue on each call.
func RunQueueSuite(t *testing.T, newQueue func(t *testing.T) store.WorkQueue) {
	t.Run("fifo order", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, q.Push(ctx, id))
		}

		listed, err := q.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, listed)

		for _, want := range []string{"a", "b", "c"} {
			got, err := q.Pop(ctx, time.Second)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			require.NoError(t, q.Ack(ctx, got))
		}
	})

	t.Run("list does not mutate", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		require.NoError(t, q.Push(ctx, "x"))
		for i := 0; i < 3; i++ {
			listed, err := q.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"x"}, listed)
		}
	})

	t.Run("pop times out when empty", func(t *testing.T) {
		q := newQueue(t)

		start := time.Now()
		_, err := q.Pop(context.Background(), time.Second)
		assert.ErrorIs(t, err, store.ErrQueueEmpty)
		assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	})

	t.Run("zero timeout blocks until push", func(t *testing.T) {
		q := newQueue(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		got := make(chan string, 1)
		go func() {
			id, err := q.Pop(ctx, 0)
			if err == nil {
				got <- id
			}
			close(got)
		}()

		time.Sleep(50 * time.Millisecond)
		require.NoError(t, q.Push(context.Background(), "late"))
		assert.Equal(t, "late", <-got)
	})

	t.Run("zero timeout returns on cancellation", func(t *testing.T) {
		q := newQueue(t)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			_, err := q.Pop(ctx, 0)
			done <- err
		}()
		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, store.ErrQueueEmpty), "unexpected error %v", err)
		case <-time.After(5 * time.Second):
			t.Fatal("pop did not return after cancellation")
		}
	})

	t.Run("duplicate pushes are delivered twice", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		require.NoError(t, q.Push(ctx, "dup"))
		require.NoError(t, q.Push(ctx, "dup"))

		for i := 0; i < 2; i++ {
			got, err := q.Pop(ctx, time.Second)
			require.NoError(t, err)
			assert.Equal(t, "dup", got)
			require.NoError(t, q.Ack(ctx, got))
		}
	})

	t.Run("unacked items are recovered", func(t *testing.T) {
		q := newQueue(t)
		rec, ok := q.(store.Recoverer)
		if !ok {
			t.Skip("queue does not support recovery")
		}
		ctx := context.Background()

		require.NoError(t, q.Push(ctx, "one"))
		require.NoError(t, q.Push(ctx, "two"))

		got, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "one", got)

		n, err := rec.RecoverInflight(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		listed, err := q.List(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"one", "two"}, listed)

		n, err = rec.RecoverInflight(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
