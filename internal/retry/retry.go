// Package retry provides retry logic with exponential backoff for
// idempotent remote calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int           // Maximum number of attempts (0 = infinite)
	InitialWait time.Duration // Initial wait time
	MaxWait     time.Duration // Maximum wait time
	Multiplier  float64       // Backoff multiplier
	Jitter      float64       // Jitter factor (0-1)
}

// ErrNoAttempts is returned when the config allows no attempt at all.
var ErrNoAttempts = errors.New("retry: no attempts allowed")

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 4,
		InitialWait: 200 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// Do executes fn until it succeeds, returns an error for which retryable
// reports false, or attempts run out.
func Do(ctx context.Context, cfg Config, retryable func(error) bool, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, retryable, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult executes fn with retries and returns its result.
func DoWithResult[T any](ctx context.Context, cfg Config, retryable func(error) bool, fn func() (T, error)) (T, error) {
	var result T
	if cfg.MaxAttempts < 0 {
		return result, fmt.Errorf("%w: max attempts %d", ErrNoAttempts, cfg.MaxAttempts)
	}
	var lastErr error

	for attempt := 1; cfg.MaxAttempts == 0 || attempt <= cfg.MaxAttempts; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		lastErr = err

		if !retryable(err) {
			return result, err
		}
		if ctx.Err() != nil {
			return result, errors.Join(err, ctx.Err())
		}
		if cfg.MaxAttempts != 0 && attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return result, errors.Join(err, ctx.Err())
		case <-time.After(Backoff(cfg, attempt)):
		}
	}

	return result, lastErr
}

// Backoff returns the wait before the attempt following the given one.
func Backoff(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	wait := float64(cfg.InitialWait) * math.Pow(mult, float64(attempt-1))
	if cfg.MaxWait > 0 && wait > float64(cfg.MaxWait) {
		wait = float64(cfg.MaxWait)
	}
	if cfg.Jitter > 0 {
		wait += wait * cfg.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(wait)
}
