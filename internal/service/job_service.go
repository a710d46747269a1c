package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/store"
)

// Payload kinds accepted by Submit.
const (
	PayloadKindBytes = "bytes"
	PayloadKindURL   = "url"
)

// DefaultMaxPayloadBytes bounds a submitted payload when no limit is configured.
const DefaultMaxPayloadBytes = 50 << 20

// uriListContentType is stored with URL payloads.
const uriListContentType = "text/uri-list"

// JobServiceConfig holds submission rules and bucket names.
type JobServiceConfig struct {
	InputBucket     string
	OutputBucket    string
	MaxPayloadBytes int64
	// PayloadKind is PayloadKindBytes (default) or PayloadKindURL.
	PayloadKind string
	// AllowedURLPrefixes restricts URL payloads when non-empty.
	AllowedURLPrefixes []string
	Retry              store.RetryPolicy
}

// SubmitRequest is one job submission.
type SubmitRequest struct {
	Payload  []byte
	Callback *domain.Callback
}

// JobService implements job submission and the read-side queries behind the
// HTTP API.
type JobService struct {
	blobs  store.BlobStore
	ledger store.JobLedger
	queue  store.WorkQueue
	cfg    JobServiceConfig
	logger *slog.Logger
	newID  func() string
}

// NewJobService creates a JobService.
// It returns an error if any of the required dependencies are nil.
func NewJobService(
	blobs store.BlobStore,
	ledger store.JobLedger,
	queue store.WorkQueue,
	cfg JobServiceConfig,
	logger *slog.Logger,
) (*JobService, error) {
	if blobs == nil {
		return nil, domain.NewValidationError("blobs", "cannot be nil", nil)
	}
	if ledger == nil {
		return nil, domain.NewValidationError("ledger", "cannot be nil", nil)
	}
	if queue == nil {
		return nil, domain.NewValidationError("queue", "cannot be nil", nil)
	}
	if cfg.InputBucket == "" || cfg.OutputBucket == "" {
		return nil, domain.NewValidationError("buckets", "input and output buckets are required", nil)
	}
	switch cfg.PayloadKind {
	case "":
		cfg.PayloadKind = PayloadKindBytes
	case PayloadKindBytes, PayloadKindURL:
	default:
		return nil, domain.NewValidationError("payload_kind", fmt.Sprintf("unknown payload kind %q", cfg.PayloadKind), nil)
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if cfg.Retry == (store.RetryPolicy{}) {
		cfg.Retry = store.DefaultRetryPolicy
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &JobService{
		blobs:  blobs,
		ledger: ledger,
		queue:  queue,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "job_service")),
		newID:  uuid.NewString,
	}, nil
}

// Submit validates req, stores its payload, records the job as queued and
// enqueues its id, in that order. No id is returned unless all three writes
// succeed. Validation failures happen before any write.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	contentType, err := s.validatePayload(req.Payload)
	if err != nil {
		return "", err
	}
	if err := ValidateCallback(req.Callback); err != nil {
		return "", err
	}

	id := s.newID()
	input := domain.Locator{Bucket: s.cfg.InputBucket, Key: domain.InputKey(id)}
	log := s.logger.With("job_id", id)

	job, err := domain.NewJob(id, input, cloneCallback(req.Callback))
	if err != nil {
		return "", err
	}

	err = store.Retry(ctx, s.cfg.Retry, "blob.put", log, func(ctx context.Context) error {
		return s.blobs.Put(ctx, input.Bucket, input.Key, req.Payload, contentType)
	})
	if err != nil {
		log.Error("failed to store job input", "error", err)
		return "", submitError(OpStoreInput, err)
	}

	if err := s.ledger.Create(ctx, job); err != nil {
		log.Error("failed to create job record", "error", err)
		s.discardInput(ctx, log, input)
		return "", submitError(OpCreateJob, err)
	}

	err = store.Retry(ctx, s.cfg.Retry, "queue.push", log, func(ctx context.Context) error {
		return s.queue.Push(ctx, id)
	})
	if err != nil {
		// The queued record stays behind without a queue entry; it is never
		// claimed and its id was never handed out.
		log.Error("failed to enqueue job", "error", err)
		s.discardInput(ctx, log, input)
		return "", submitError(OpEnqueueJob, err)
	}

	log.Info("job submitted",
		"content_type", contentType,
		"payload_bytes", len(req.Payload),
		"has_callback", req.Callback != nil)
	return id, nil
}

// discardInput removes an input blob whose submission was aborted.
func (s *JobService) discardInput(ctx context.Context, log *slog.Logger, input domain.Locator) {
	ctx = context.WithoutCancel(ctx)
	if err := s.blobs.Delete(ctx, input.Bucket, input.Key); err != nil && !errors.Is(err, store.ErrObjectNotFound) {
		log.Warn("failed to remove orphaned input", "input_ref", input.String(), "error", err)
	}
}

// validatePayload applies the payload rules and returns the content type to
// store the payload with.
func (s *JobService) validatePayload(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", domain.NewValidationError("payload", "cannot be empty", nil)
	}
	if int64(len(payload)) > s.cfg.MaxPayloadBytes {
		return "", domain.NewValidationError("payload",
			fmt.Sprintf("exceeds maximum size of %d bytes", s.cfg.MaxPayloadBytes), nil)
	}

	if s.cfg.PayloadKind == PayloadKindURL {
		if err := s.validateURLPayload(string(payload)); err != nil {
			return "", err
		}
		return uriListContentType, nil
	}

	return mimetype.Detect(payload).String(), nil
}

func (s *JobService) validateURLPayload(raw string) error {
	if strings.TrimSpace(raw) != raw || strings.ContainsAny(raw, "\r\n") {
		return domain.NewValidationError("payload", "URL must not contain whitespace or line breaks", nil)
	}
	if err := validateHTTPURL(raw); err != nil {
		return domain.NewValidationError("payload", err.Error(), nil)
	}
	if len(s.cfg.AllowedURLPrefixes) == 0 {
		return nil
	}
	for _, prefix := range s.cfg.AllowedURLPrefixes {
		if strings.HasPrefix(raw, prefix) {
			return nil
		}
	}
	return domain.NewValidationError("payload", "URL is not in an allowed location", nil)
}

// ValidateCallback checks that a callback, if present, targets an absolute
// http or https URL.
func ValidateCallback(cb *domain.Callback) error {
	if cb == nil {
		return nil
	}
	if err := validateHTTPURL(cb.URL); err != nil {
		return domain.NewValidationError("callback.url", err.Error(), nil)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must use http or https")
	}
	if u.Host == "" {
		return errors.New("must be an absolute URL with a host")
	}
	return nil
}

func cloneCallback(cb *domain.Callback) *domain.Callback {
	if cb == nil {
		return nil
	}
	out := &domain.Callback{URL: cb.URL}
	if cb.Data != nil {
		out.Data = append([]byte(nil), cb.Data...)
	}
	return out
}
