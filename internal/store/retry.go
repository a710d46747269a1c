package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds caller-side retries of transient storage failures.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

// DefaultRetryPolicy is used when a component is given a zero policy.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRetryPolicy.BaseDelay
	}
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(10*base, b)
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// Retry runs fn, retrying it with exponential backoff while it fails with a
// domain.ErrStorage error. Any other error, including not-found, validation
// and conflict errors, is returned immediately.
func Retry(ctx context.Context, policy RetryPolicy, operation string, log *slog.Logger, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrStorage) {
			return err
		}
		if log != nil {
			log.Warn("transient storage failure, retrying",
				"operation", operation,
				"attempt", attempt,
				"error", err)
		}
		return retry.RetryableError(err)
	})
}
