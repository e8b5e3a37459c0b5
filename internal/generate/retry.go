package generate

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/flashmind/card-engine/internal/observability"
)

// RetryConfig controls retry behavior for generation requests.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig returns sensible defaults for generation calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// retryableError marks an error as worth retrying.
type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// shouldRetryStatus reports whether an HTTP status merits a retry.
func shouldRetryStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// withRetry runs fn, retrying retryable failures with exponential backoff
// and jitter. Non-retryable errors and context cancellation stop
// immediately.
func withRetry(ctx context.Context, cfg RetryConfig, logger *observability.Logger, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var retryable retryableError
		if !errors.As(err, &retryable) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := backoffDelay(cfg, attempt)
		logger.Warn().
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("generation request failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// backoffDelay computes the delay before the next attempt: exponential
// growth from InitialDelay, capped at MaxDelay, with up to 25% jitter.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	initial := cfg.InitialDelay
	if initial <= 0 {
		initial = 1 * time.Second
	}
	max := cfg.MaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}

	delay := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
	if delay > max {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
