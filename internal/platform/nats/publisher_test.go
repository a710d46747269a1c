package nats

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/events"
)

type recordingConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func finished(t *testing.T, status domain.JobStatus) *events.JobFinished {
	t.Helper()
	job, err := domain.NewJob("job-9", domain.Locator{Bucket: "inputs", Key: "job-9.input"},
		&domain.Callback{URL: "http://cb", Data: json.RawMessage(`{"secret":"x"}`)})
	require.NoError(t, err)
	job.Status = status
	if status == domain.JobStatusFailed {
		job.Error = "engine failed"
	} else {
		job.ResultRefs = []domain.Locator{{Bucket: "artifacts", Key: "job-9/out.txt"}}
	}
	return events.NewJobFinished(job)
}

func TestPublisher_HandleEvent(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("completed", func(t *testing.T) {
		t.Parallel()
		conn := &recordingConn{}
		p := NewPublisher(conn, "", logger)

		require.NoError(t, p.HandleEvent(context.Background(), finished(t, domain.JobStatusCompleted)))
		require.Equal(t, []string{"jobs.completed"}, conn.subjects)

		var msg map[string]any
		require.NoError(t, json.Unmarshal(conn.payloads[0], &msg))
		assert.Equal(t, "job-9", msg["job_id"])
		assert.Equal(t, "completed", msg["status"])
		assert.Len(t, msg["result_refs"], 1)
		assert.NotContains(t, string(conn.payloads[0]), "secret")
	})

	t.Run("failed with custom prefix", func(t *testing.T) {
		t.Parallel()
		conn := &recordingConn{}
		p := NewPublisher(conn, "pipeline.events", logger)

		require.NoError(t, p.HandleEvent(context.Background(), finished(t, domain.JobStatusFailed)))
		require.Equal(t, []string{"pipeline.events.failed"}, conn.subjects)

		var msg map[string]any
		require.NoError(t, json.Unmarshal(conn.payloads[0], &msg))
		assert.Equal(t, "engine failed", msg["error"])
		assert.NotContains(t, msg, "result_refs")
	})

	t.Run("publish error", func(t *testing.T) {
		t.Parallel()
		conn := &recordingConn{err: errors.New("nats: connection closed")}
		p := NewPublisher(conn, "jobs", logger)

		err := p.HandleEvent(context.Background(), finished(t, domain.JobStatusCompleted))
		assert.ErrorContains(t, err, "jobs.completed")
	})
}
