package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/jobpipe/internal/ciutil"
	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/store"
	"github.com/phrazzld/jobpipe/internal/store/storetest"
)

// testClient connects to the Redis named by JOBPIPE_TEST_REDIS_ADDR or skips.
func testClient(t *testing.T) *goredis.Client {
	t.Helper()

	addr := ciutil.RequireBackend(t, ciutil.EnvTestRedisAddr)
	client, err := NewClient(context.Background(), Options{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// testPrefix returns a key prefix unique to one test and removes its keys afterwards.
func testPrefix(t *testing.T, client *goredis.Client) string {
	t.Helper()

	prefix := "jobpipe-test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})
	return prefix
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJobLedger(t *testing.T) {
	client := testClient(t)
	storetest.RunLedgerSuite(t, func(t *testing.T) store.JobLedger {
		return NewJobLedger(client, testPrefix(t, client), discardLogger())
	})
}

func TestWorkQueue(t *testing.T) {
	client := testClient(t)
	storetest.RunQueueSuite(t, func(t *testing.T) store.WorkQueue {
		return NewWorkQueue(client, testPrefix(t, client), "jobs", discardLogger())
	})
}

func TestJobLedger_StatusIndexFollowsUpdates(t *testing.T) {
	client := testClient(t)
	prefix := testPrefix(t, client)
	ledger := NewJobLedger(client, prefix, discardLogger())
	ctx := context.Background()

	job := storetest.NewJob(t)
	require.NoError(t, ledger.Create(ctx, job))
	require.NoError(t, ledger.CompareAndSet(ctx, job.ID, domain.JobStatusQueued, domain.StatusUpdate(domain.JobStatusProcessing)))

	queued, err := client.ZCard(ctx, prefix+"status:queued").Result()
	require.NoError(t, err)
	assert.Zero(t, queued)

	processing, err := client.ZRange(ctx, prefix+"status:processing", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, processing)
}
