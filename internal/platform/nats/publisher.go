// Package nats publishes job outcome events to NATS subjects so systems
// other than the submitter's callback endpoint can follow job completions.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/phrazzld/jobpipe/internal/events"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "jobs"

// publisher is the subset of *nats.Conn the Publisher needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// Publisher is an events.EventHandler that publishes each JobFinished event
// as JSON to <prefix>.completed or <prefix>.failed.
type Publisher struct {
	conn   publisher
	prefix string
	logger *slog.Logger
}

var _ events.EventHandler = (*Publisher)(nil)

// Connect dials the NATS server at url. The caller drains the connection
// on shutdown.
func Connect(url string, logger *slog.Logger) (*natsgo.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "nats")

	nc, err := natsgo.Connect(url,
		natsgo.Name("jobpipe"),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				log.Warn("disconnected from NATS", "error", err)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			log.Info("reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	log.Info("connected to NATS", "url", nc.ConnectedUrl())
	return nc, nil
}

// NewPublisher creates a Publisher writing through conn.
func NewPublisher(conn publisher, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, prefix: prefix, logger: logger.With("component", "nats_publisher")}
}

// Subject returns the subject an event is published to.
func (p *Publisher) Subject(event *events.JobFinished) string {
	return p.prefix + "." + string(event.Status)
}

// HandleEvent implements events.EventHandler. The callback's opaque data is
// not published; it belongs to the submitter.
func (p *Publisher) HandleEvent(ctx context.Context, event *events.JobFinished) error {
	msg := struct {
		EventID    string `json:"event_id"`
		JobID      string `json:"job_id"`
		Status     string `json:"status"`
		ResultRefs any    `json:"result_refs,omitempty"`
		Error      string `json:"error,omitempty"`
		FinishedAt string `json:"finished_at"`
	}{
		EventID:    event.ID.String(),
		JobID:      event.JobID,
		Status:     string(event.Status),
		Error:      event.Error,
		FinishedAt: event.FinishedAt.Format(time.RFC3339Nano),
	}
	if len(event.ResultRefs) > 0 {
		msg.ResultRefs = event.ResultRefs
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode job event: %w", err)
	}

	subject := p.Subject(event)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish job event to %s: %w", subject, err)
	}
	p.logger.Debug("published job event", "job_id", event.JobID, "subject", subject)
	return nil
}
