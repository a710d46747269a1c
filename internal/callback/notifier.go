package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/jobpipe/internal/domain"
)

// DefaultTimeout bounds a delivery attempt when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Payload is the JSON body posted to a callback URL.
type Payload struct {
	JobID      string           `json:"job_id"`
	Status     domain.JobStatus `json:"status"`
	ResultRefs []domain.Locator `json:"result_refs,omitempty"`
	Error      string           `json:"error,omitempty"`
	Data       json.RawMessage  `json:"data,omitempty"`
}

// MarshalJSON always includes result_refs for a job that did not fail, so a
// job that produced no artifacts reports an empty list.
func (p Payload) MarshalJSON() ([]byte, error) {
	type wire Payload
	if p.Status == domain.JobStatusFailed {
		return json.Marshal(wire(p))
	}

	refs := p.ResultRefs
	if refs == nil {
		refs = []domain.Locator{}
	}
	return json.Marshal(struct {
		wire
		ResultRefs []domain.Locator `json:"result_refs"`
	}{wire(p), refs})
}

// DeliveryError reports a failed delivery attempt.
type DeliveryError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("callback to %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("callback to %s failed: %v", e.URL, e.Err)
}

// Unwrap exposes domain.ErrDelivery and the transport cause.
func (e *DeliveryError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrDelivery}
	}
	return []error{domain.ErrDelivery, e.Err}
}

// Notifier posts payloads to callback URLs.
type Notifier struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. A nil client uses a fresh http.Client;
// the timeout is applied per attempt.
func NewNotifier(client *http.Client, timeout time.Duration, logger *slog.Logger) *Notifier {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:  client,
		timeout: timeout,
		logger:  logger.With("component", "callback_notifier"),
	}
}

// Notify makes exactly one delivery attempt. Any 2xx response is success;
// other statuses and transport errors return a *DeliveryError.
func (n *Notifier) Notify(ctx context.Context, url string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{URL: url, Err: fmt.Errorf("failed to encode payload: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "jobpipe-callback/1")

	start := time.Now()
	resp, err := n.client.Do(req)
	if err != nil {
		return &DeliveryError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{URL: url, StatusCode: resp.StatusCode}
	}

	n.logger.Debug("callback delivered",
		"job_id", payload.JobID,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
