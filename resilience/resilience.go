// Package resilience provides retry-with-backoff for the transient,
// network-level failures a broker adapter sees talking to its backing
// service. It is deliberately not used anywhere in the subscription
// worker engine itself: a message-level failure is the engine's own
// business, resolved by an ExceptionResolver into a disposition, never
// retried by blindly re-calling the broker.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures Retry.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the backoff before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration

	// Multiplier grows the backoff between retries.
	Multiplier float64

	// Jitter adds up to this fraction of randomness to each backoff.
	Jitter float64

	// RetryIf decides whether err is worth retrying. Defaults to
	// "any non-nil error".
	RetryIf func(error) bool

	// OnRetry, if set, is called after each failed attempt that will be
	// retried, before the backoff sleep. Broker adapters use this to log
	// which operation is being retried and with what delay, rather than
	// Retry itself knowing anything about the caller's domain.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns the backoff shape used by the SQS adapter
// for throttling and transient network errors.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
		RetryIf:        func(err error) bool { return err != nil },
	}
}

// Executor is a unit of work Retry can attempt repeatedly.
type Executor func(ctx context.Context) error

// Retry calls fn until it succeeds, cfg.RetryIf rejects its error,
// cfg.MaxAttempts is exhausted, or ctx is cancelled, sleeping an
// exponentially growing, jittered backoff between attempts.
func Retry(ctx context.Context, cfg RetryConfig, fn Executor) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = func(err error) bool { return err != nil }
	}

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !cfg.RetryIf(err) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		jitter := 1.0
		if cfg.Jitter > 0 {
			jitter = 1.0 + (rand.Float64()*2-1)*cfg.Jitter
		}
		sleep := time.Duration(float64(backoff) * jitter)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, sleep)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return lastErr
}

// ExponentialBackoff computes a jittered exponential backoff for attempt
// (0-indexed), capped at max.
func ExponentialBackoff(attempt int, base, max time.Duration, jitter float64) time.Duration {
	backoff := float64(base) * math.Pow(2, float64(attempt))
	if jitter > 0 {
		backoff *= 1.0 + (rand.Float64()*2-1)*jitter
	}
	if time.Duration(backoff) > max {
		return max
	}
	return time.Duration(backoff)
}

// WithTimeout wraps fn so each attempt gets its own bounded context.
func WithTimeout(timeout time.Duration, fn Executor) Executor {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(ctx)
	}
}
