package callback

import (
	"context"
	"log/slog"

	"github.com/phrazzld/jobpipe/internal/events"
	"github.com/phrazzld/jobpipe/internal/redact"
)

// notifier is the delivery contract Handler depends on.
type notifier interface {
	Notify(ctx context.Context, url string, payload Payload) error
}

// Handler is an events.EventHandler that delivers the callback of every
// finished job that has one.
type Handler struct {
	notifier notifier
	logger   *slog.Logger
}

var _ events.EventHandler = (*Handler)(nil)

// NewHandler creates a Handler delivering through n.
func NewHandler(n notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{notifier: n, logger: logger.With("component", "callback_handler")}
}

// PayloadFor builds the callback body for a finished job.
func PayloadFor(event *events.JobFinished) Payload {
	p := Payload{
		JobID:  event.JobID,
		Status: event.Status,
	}
	if event.Succeeded() {
		p.ResultRefs = event.ResultRefs
	} else {
		p.Error = event.Error
	}
	if event.Callback != nil {
		p.Data = event.Callback.Data
	}
	return p
}

// HandleEvent implements events.EventHandler. Delivery failures are logged
// and dropped, so it always returns nil.
func (h *Handler) HandleEvent(ctx context.Context, event *events.JobFinished) error {
	if event.Callback == nil || event.Callback.URL == "" {
		return nil
	}

	if err := h.notifier.Notify(ctx, event.Callback.URL, PayloadFor(event)); err != nil {
		h.logger.Warn("callback delivery failed, dropping",
			"job_id", event.JobID,
			"status", event.Status,
			"error", redact.Error(err))
		return nil
	}

	h.logger.Info("callback delivered", "job_id", event.JobID, "status", event.Status)
	return nil
}
