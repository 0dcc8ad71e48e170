package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garrettladley/paygate/internal/xslog"
)

var _ Publisher = (*RetryingPublisher)(nil)

const (
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 100 * time.Millisecond
)

type RetryConfig struct {
	Attempts int
	Backoff  time.Duration
}

// RetryingPublisher retries a failed publish with exponential backoff.
// The final failure wraps ErrPublish.
type RetryingPublisher struct {
	next     Publisher
	attempts int
	backoff  time.Duration
}

func WithRetry(next Publisher, cfg RetryConfig) *RetryingPublisher {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = DefaultRetryAttempts
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return &RetryingPublisher{next: next, attempts: attempts, backoff: backoff}
}

func (p *RetryingPublisher) Publish(ctx context.Context, msg Message) error {
	logger := xslog.FromContext(ctx)

	var err error
	delay := p.backoff
	for attempt := 1; ; attempt++ {
		if err = p.next.Publish(ctx, msg); err == nil {
			return nil
		}

		logger.WarnContext(ctx, "publish attempt failed",
			xslog.Pattern(msg.Pattern),
			xslog.Attempt(attempt),
			xslog.Error(err),
		)

		if attempt >= p.attempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrPublish, attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrPublish, errors.Join(err, ctx.Err()))
		case <-timer.C:
		}
		delay *= 2
	}
}

func (p *RetryingPublisher) Close() error {
	return p.next.Close()
}
