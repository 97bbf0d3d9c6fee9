package errors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesTransientErrors(t *testing.T) {
	// Given: a function that fails twice with a retryable error
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return New(ErrCodeNetworkTimeout, "timeout", nil)
		}
		return nil
	})

	// Then: it eventually succeeds
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_DoesNotRetryNonRetryableErrors(t *testing.T) {
	// Given: a function that fails with a non-retryable error
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		calls++
		return RateLimited("client")
	})

	// Then: it fails immediately without retries
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsRateLimited(err))
}

func TestRetry_ExhaustsRetries(t *testing.T) {
	cfg := fastRetryConfig()
	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return New(ErrCodeOllamaUnavailable, "down", nil)
	})

	require.Error(t, err)
	assert.Equal(t, cfg.MaxRetries+1, calls)
	assert.True(t, HasCode(err, ErrCodeOllamaUnavailable))
	assert.Contains(t, err.Error(), "failed after")
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetryConfig(), func() error {
		return New(ErrCodeNetworkTimeout, "timeout", nil)
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	result, err := RetryWithResult(context.Background(), fastRetryConfig(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", New(ErrCodeNetworkTimeout, "timeout", nil)
		}
		return "answer", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "answer", result)
	assert.Equal(t, 2, calls)
}
