package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy bounds a retry loop. Delay doubles after each failed attempt and is
// capped at MaxDelay when that is set.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
}

// Backoff returns the wait before the attempt following attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	backoff := p.Delay
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if p.MaxDelay > 0 && backoff >= p.MaxDelay {
			break
		}
	}
	if p.MaxDelay > 0 && backoff > p.MaxDelay {
		backoff = p.MaxDelay
	}
	return backoff
}

// Retry calls fn until it succeeds, returns a permanent error, the context
// ends, or the attempts run out. onAttempt, when set, observes each result.
func Retry[T any](
	ctx context.Context,
	p Policy,
	logger *slog.Logger,
	onAttempt func(attempt int, err error),
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var (
		zero T
		res  T
		err  error
	)
	attempts := max(p.MaxAttempts, 1)

	attempt := 1
	for ; attempt <= attempts; attempt++ {
		res, err = fn(ctx)
		if onAttempt != nil {
			onAttempt(attempt, err)
		}
		if err == nil {
			return res, nil
		}

		if !IsRetryable(err) || attempt == attempts {
			break
		}

		backoff := p.Backoff(attempt)
		if logger != nil {
			logger.Warn("fetch failed, retrying",
				"attempt", attempt,
				"max_attempts", attempts,
				"backoff", backoff,
				"error", err,
			)
		}

		if backoff <= 0 {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			continue
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("after %d attempts: %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("after %d attempts: %w", attempt, err)
}
