package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/jobpipe/internal/app"
	"github.com/phrazzld/jobpipe/internal/config"
	"github.com/phrazzld/jobpipe/internal/domain"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			LogLevel:        "info",
			MaxPayloadBytes: 1024,
			ShutdownTimeout: 5 * time.Second,
			EmbeddedWorkers: true,
		},
		Ledger:       config.LedgerConfig{Backend: config.BackendMemory},
		Queue:        config.QueueConfig{Backend: config.BackendMemory, Name: "jobs"},
		Blob:         config.BlobConfig{Backend: config.BackendMemory, InputBucket: "inputs", OutputBucket: "artifacts"},
		Worker:       config.WorkerConfig{Count: 2, PopTimeout: 10 * time.Millisecond},
		Callback:     config.CallbackConfig{Timeout: time.Second},
		StorageRetry: config.StorageRetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond},
		Engine:       config.EngineConfig{Kind: config.EngineCommand, Command: "/bin/cat"},
		Submission:   config.SubmissionConfig{PayloadKind: config.PayloadBytes},
	}
}

func startServer(t *testing.T, cfg *config.Config) (string, context.CancelFunc, <-chan error) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.New(context.Background(), cfg, log, app.Options{WithWorkers: cfg.Server.EmbeddedWorkers})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, a, ln) }()

	base := fmt.Sprintf("http://%s", ln.Addr().String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	return base, cancel, done
}

func TestServeProcessesJobsAndShutsDown(t *testing.T) {
	base, cancel, done := startServer(t, testConfig())

	body, err := json.Marshal(map[string]any{"payload": []byte("hello")})
	require.NoError(t, err)
	resp, err := http.Post(base+"/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var submitted struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	_ = resp.Body.Close()

	assert.Eventually(t, func() bool {
		resp, err := http.Get(base + "/jobs/" + submitted.JobID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var job struct {
			Status domain.JobStatus `json:"status"`
		}
		if json.NewDecoder(resp.Body).Decode(&job) != nil {
			return false
		}
		return job.Status == domain.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeWithoutEmbeddedWorkers(t *testing.T) {
	cfg := testConfig()
	cfg.Server.EmbeddedWorkers = false
	base, cancel, done := startServer(t, cfg)

	body, err := json.Marshal(map[string]any{"payload": []byte("hello")})
	require.NoError(t, err)
	resp, err := http.Post(base+"/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(base + "/jobs")
	require.NoError(t, err)
	var queued struct {
		Queued []string `json:"queued"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&queued))
	_ = resp.Body.Close()
	assert.Len(t, queued.Queued, 1)

	cancel()
	assert.NoError(t, <-done)
}
