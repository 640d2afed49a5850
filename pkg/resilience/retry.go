package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
)

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ShouldRetry reports whether an error is worth another attempt. Nil
	// uses Retryable.
	ShouldRetry func(err error) bool
}

// Retryable rejects errors another attempt cannot fix: bad input, missing
// records, an open breaker and a cancelled caller.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrNotFound),
		errors.Is(err, ErrCircuitOpen),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// Retry runs fn until it succeeds or attempts run out. The delay doubles
// from InitialDelay up to MaxDelay with up to 20% jitter. Retry gives up
// early, returning the last error, when ctx ends or its deadline falls
// before the next attempt could start.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = 10 * cfg.InitialDelay
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = Retryable
	}
	logger := slog.Default().With("component", "retry", "operation", name)

	delay := cfg.InitialDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				logger.Debug("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("%s: %d attempts: %w", name, attempt, err)
		}
		if !cfg.ShouldRetry(err) {
			return err
		}
		wait := jitter(delay)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return fmt.Errorf("%s: deadline leaves no room for attempt %d: %w", name, attempt+1, err)
		}
		logger.Debug("attempt failed, retrying", "attempt", attempt, "error", err, "wait", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), err)
		}
		delay = min(2*delay, cfg.MaxDelay)
	}
}

func jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Float64()*0.2*float64(d))
}
