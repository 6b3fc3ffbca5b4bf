package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds retries of annotation and publish steps.
type RetryPolicy struct {
	// MaxAttempts includes the first try.
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration
}

// DefaultRetryPolicy is 5 attempts, 500ms doubling to at most 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

// Delay returns the wait after the given failed attempt (1-based):
// BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retry runs op until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. It returns the number of attempts made.
func (p *Pipeline) retry(ctx context.Context, step string, retryable func(error) bool, op func() error) (int, error) {
	policy := p.cfg.Retry
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = op()
		if lastErr == nil {
			if attempt > 1 {
				log.Debug().Str("step", step).Int("attempt", attempt).Msg("Operation succeeded after retry")
			}
			return attempt, nil
		}

		if !retryable(lastErr) {
			return attempt, lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		log.Warn().
			Err(lastErr).
			Str("step", step).
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Dur("delay", delay).
			Msg("Retrying after transient failure")

		if err := p.sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}
	return policy.MaxAttempts, lastErr
}
