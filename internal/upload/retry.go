package upload

import (
	"context"
	"time"

	"reelup/internal/config"
	"reelup/internal/services"
)

// RetryPolicy bounds how often a failed upload step is attempted again.
// MaxAttempts counts every attempt including the first.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether an error is worth another attempt. Nil
	// means services.Retryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy mirrors the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	cfg := config.Default()
	return RetryPolicyFromConfig(&cfg)
}

// RetryPolicyFromConfig reads the upload retry settings.
func RetryPolicyFromConfig(cfg *config.Config) RetryPolicy {
	base, maxDelay := cfg.RetryDelays()
	return RetryPolicy{
		MaxAttempts: cfg.Upload.MaxPartRetries,
		BaseDelay:   base,
		MaxDelay:    maxDelay,
	}
}

// Delay is the wait before attempt n+1 after n failed attempts: BaseDelay
// doubled per failure, capped at MaxDelay.
func (p RetryPolicy) Delay(failures int) time.Duration {
	if p.BaseDelay <= 0 || failures <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < failures; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return services.Retryable(err)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. attempt starts at 1. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := max(p.MaxAttempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts || !p.retryable(err) {
			return err
		}
		if delay := p.Delay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return err
		}
	}
	return err
}
