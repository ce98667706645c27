package retry

import (
	"context"
	"time"

	"wingman/pkg/logx"
)

// Config bounds a retried operation. Callers should scope RetryIf narrowly
// to transient I/O conditions; logical or schema failures must not match.
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64

	// RetryIf selects retryable failures. nil retries every error.
	RetryIf func(error) bool

	Log logx.Logger

	// sleep is injectable for tests; nil uses a ctx-aware real sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// Do runs op up to cfg.MaxAttempts times. After a failure on attempt i
// (0-based, i < MaxAttempts-1) it sleeps BaseDelay * BackoffFactor^i and
// tries again. The last failure is returned unmodified. Errors rejected by
// RetryIf propagate immediately with no sleep.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2
	}
	sleep := cfg.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return err
		}
		lastErr = err

		if attempt == cfg.MaxAttempts-1 {
			break
		}
		if !cfg.Log.IsZero() {
			cfg.Log.Warn("attempt failed; retrying",
				logx.Int("attempt", attempt+1),
				logx.Int("max_attempts", cfg.MaxAttempts),
				logx.Duration("delay", delay),
				logx.Err(err))
		}
		if serr := sleep(ctx, delay); serr != nil {
			return lastErr
		}
		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
