package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/jobpipe/internal/api/middleware"
	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/platform/memory"
	"github.com/phrazzld/jobpipe/internal/service"
	"github.com/phrazzld/jobpipe/internal/store"
)

const (
	testInputBucket  = "inputs"
	testOutputBucket = "artifacts"
	testSecret       = "0123456789abcdef0123456789abcdef"
)

type apiFixture struct {
	blobs  *memory.BlobStore
	ledger *memory.JobLedger
	queue  *memory.WorkQueue
	server *httptest.Server
}

func newAPIFixture(t *testing.T, cfg RouterConfig) *apiFixture {
	t.Helper()
	ctx := context.Background()

	f := &apiFixture{
		blobs:  memory.NewBlobStore(),
		ledger: memory.NewJobLedger(),
		queue:  memory.NewWorkQueue(),
	}
	require.NoError(t, f.blobs.EnsureBucket(ctx, testInputBucket))
	require.NoError(t, f.blobs.EnsureBucket(ctx, testOutputBucket))

	svc, err := service.NewJobService(f.blobs, f.ledger, f.queue, service.JobServiceConfig{
		InputBucket:     testInputBucket,
		OutputBucket:    testOutputBucket,
		MaxPayloadBytes: 64,
		Retry:           store.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond},
	}, nil)
	require.NoError(t, err)

	if cfg.MaxPayloadBytes == 0 {
		cfg.MaxPayloadBytes = 64
	}
	router, err := NewRouter(svc, cfg, nil)
	require.NoError(t, err)

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestSubmitAndGetJob(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{})

	resp := f.do(t, http.MethodPost, "/jobs", SubmitJobRequest{
		Payload:  []byte("hello"),
		Callback: &CallbackRequest{URL: "http://example.com/hook", Data: json.RawMessage(`{"ref":7}`)},
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var submitted SubmitJobResponse
	decodeBody(t, resp, &submitted)
	require.NotEmpty(t, submitted.JobID)
	assert.NotEmpty(t, resp.Header.Get(middleware.TraceHeader))

	resp = f.do(t, http.MethodGet, "/jobs/"+submitted.JobID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var job JobResponse
	decodeBody(t, resp, &job)
	assert.Equal(t, submitted.JobID, job.JobID)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Empty(t, job.ResultRefs)
	assert.NotNil(t, job.ResultRefs)
	require.NotNil(t, job.CallbackEcho)
	assert.Equal(t, "http://example.com/hook", job.CallbackEcho.URL)
	assert.JSONEq(t, `{"ref":7}`, string(job.CallbackEcho.Data))

	resp = f.do(t, http.MethodGet, "/jobs", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var queued ListQueuedResponse
	decodeBody(t, resp, &queued)
	assert.Equal(t, []string{submitted.JobID}, queued.Queued)
}

func TestSubmitJobRejectsBadRequests(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{})

	tests := []struct {
		name    string
		body    any
		status  int
		message string
	}{
		{"malformed json", `{"payload":`, http.StatusBadRequest, "Invalid request format"},
		{"unknown field", `{"payload":"aGk=","extra":1}`, http.StatusBadRequest, "Invalid request format"},
		{"missing payload", `{}`, http.StatusBadRequest, "Invalid payload: required field"},
		{"empty payload", `{"payload":""}`, http.StatusBadRequest, "Invalid payload: cannot be empty"},
		{"oversize payload", SubmitJobRequest{Payload: bytes.Repeat([]byte("x"), 65)}, http.StatusBadRequest, "Invalid payload"},
		{"bad callback", SubmitJobRequest{Payload: []byte("x"), Callback: &CallbackRequest{URL: "ftp://nope"}}, http.StatusBadRequest, "Invalid url"},
		{
			"body too large",
			`{"payload":"` + base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("x"), 100<<10)) + `"}`,
			http.StatusBadRequest,
			"Request body too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/jobs", tt.body, "")
			assert.Equal(t, tt.status, resp.StatusCode)

			var errResp struct {
				Error   string `json:"error"`
				TraceID string `json:"trace_id"`
			}
			decodeBody(t, resp, &errResp)
			assert.True(t, strings.HasPrefix(errResp.Error, tt.message), "got %q", errResp.Error)
			assert.NotEmpty(t, errResp.TraceID)
		})
	}

	pending, err := f.queue.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Zero(t, f.blobs.Len(testInputBucket))
}

func TestGetJobErrors(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{})

	resp := f.do(t, http.MethodGet, "/jobs/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/jobs/8d4c1f3e-8a53-4b1c-9d4e-0a5b7c2d1e9f", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var errResp struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &errResp)
	assert.Equal(t, "Job not found", errResp.Error)
}

func TestListJobsByStatus(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{})
	ctx := context.Background()

	job, err := domain.NewJob("3f9a2b1c-0d4e-4f5a-8b6c-7d8e9f0a1b2c",
		domain.Locator{Bucket: testInputBucket, Key: "in"}, nil)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Create(ctx, job))
	require.NoError(t, f.ledger.SetFields(ctx, job.ID, domain.FailureUpdate("engine exploded")))

	resp := f.do(t, http.MethodGet, "/jobs?status=failed", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list ListJobsResponse
	decodeBody(t, resp, &list)
	assert.Equal(t, domain.JobStatusFailed, list.Status)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, "engine exploded", list.Jobs[0].Error)

	resp = f.do(t, http.MethodGet, "/jobs?status=completed", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var empty ListJobsResponse
	decodeBody(t, resp, &empty)
	assert.NotNil(t, empty.Jobs)
	assert.Empty(t, empty.Jobs)

	resp = f.do(t, http.MethodGet, "/jobs?status=bogus", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestArtifactEndpoints(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{})
	ctx := context.Background()

	id := "5b1e7c2a-9f3d-4a8b-b6c0-1d2e3f4a5b6c"
	require.NoError(t, f.blobs.Put(ctx, testOutputBucket, domain.ArtifactKey(id, "report.txt"),
		[]byte("done"), "text/plain; charset=utf-8"))

	resp := f.do(t, http.MethodGet, "/jobs/"+id+"/artifacts/report.txt", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "done", buf.String())

	resp = f.do(t, http.MethodDelete, "/jobs/"+id+"/artifacts/report.txt", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var deleted DeleteArtifactResponse
	decodeBody(t, resp, &deleted)
	assert.Equal(t, "report.txt", deleted.Deleted)

	resp = f.do(t, http.MethodGet, "/jobs/"+id+"/artifacts/report.txt", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/jobs/"+id+"/artifacts/report.txt", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/jobs/not-a-uuid/artifacts/report.txt", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = f.do(t, http.MethodDelete, "/jobs/not-a-uuid/artifacts/report.txt", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobsRequireTokenWhenSecretSet(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{JWTSecret: testSecret})

	resp := f.do(t, http.MethodGet, "/jobs", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := middleware.IssueToken(testSecret, "tester", time.Minute, time.Now())
	require.NoError(t, err)
	resp = f.do(t, http.MethodGet, "/jobs", nil, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthAndReady(t *testing.T) {
	f := newAPIFixture(t, RouterConfig{Pingers: map[string]store.Pinger{
		"ledger": stubPinger{},
		"queue":  stubPinger{err: errors.New("connection refused")},
	}})

	resp := f.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", buf.String())

	resp = f.do(t, http.MethodGet, "/ready", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var ready ReadinessResponse
	decodeBody(t, resp, &ready)
	assert.Equal(t, "unavailable", ready.Status)
	assert.Equal(t, map[string]string{"ledger": "ok", "queue": "unavailable"}, ready.Backends)
}
