package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, func(context.Context) error {
		attempts++
		return errors.New("always fails")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryHonorsRetryIf(t *testing.T) {
	fatal := errors.New("fatal")
	attempts := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		RetryIf:        func(err error) bool { return err != fatal },
	}, func(context.Context) error {
		attempts++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestRetryStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, DefaultRetryConfig(), func(context.Context) error {
		attempts++
		return errors.New("fails")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, attempts)
}

func TestExponentialBackoffCapsAtMax(t *testing.T) {
	delay := ExponentialBackoff(10, time.Millisecond, 50*time.Millisecond, 0)
	assert.Equal(t, 50*time.Millisecond, delay)
}

func TestRetryInvokesOnRetryForEachRetriedAttempt(t *testing.T) {
	var onRetryCalls []int
	attempts := 0
	err := Retry(context.Background(), RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			onRetryCalls = append(onRetryCalls, attempt)
		},
	}, func(context.Context) error {
		attempts++
		return errors.New("always fails")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
	// OnRetry fires before each retried attempt's sleep, not after the
	// final exhausted attempt.
	assert.Equal(t, []int{0, 1}, onRetryCalls)
}
