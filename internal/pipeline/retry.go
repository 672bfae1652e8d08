package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy bounds per-section extraction attempts. Delays double each
// attempt: base, 2x base, 4x base, ...
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	return p
}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is done.
// The last error is returned on exhaustion.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, fn func() error) error {
	p = p.normalized()
	if logger == nil {
		logger = slog.Default()
	}

	var err error
	delay := p.BaseDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}
		logger.Warn("pipeline.retry",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
