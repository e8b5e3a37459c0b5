package generate

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashmind/card-engine/internal/observability"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	}
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), fastRetry(3), observability.NopLogger(), func() error {
		calls++
		if calls < 3 {
			return retryableError{errors.New("transient")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("bad request")
	err := withRetry(context.Background(), fastRetry(5), observability.NopLogger(), func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), fastRetry(3), observability.NopLogger(), func() error {
		calls++
		return retryableError{errors.New("still down")}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := withRetry(ctx, RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour}, observability.NopLogger(), func() error {
		return retryableError{errors.New("transient")}
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShouldRetryStatus(t *testing.T) {
	assert.True(t, shouldRetryStatus(http.StatusTooManyRequests))
	assert.True(t, shouldRetryStatus(http.StatusInternalServerError))
	assert.True(t, shouldRetryStatus(http.StatusServiceUnavailable))
	assert.False(t, shouldRetryStatus(http.StatusBadRequest))
	assert.False(t, shouldRetryStatus(http.StatusUnauthorized))
	assert.False(t, shouldRetryStatus(http.StatusOK))
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}

	first := backoffDelay(cfg, 1)
	assert.GreaterOrEqual(t, first, 100*time.Millisecond)

	late := backoffDelay(cfg, 10)
	// Capped at MaxDelay plus up to 25% jitter.
	assert.LessOrEqual(t, late, 375*time.Millisecond)
}
