package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// ErrRetryExhausted is returned when every attempt failed with a retryable
// error. The last provider error is wrapped alongside it.
var ErrRetryExhausted = errors.New("all retry attempts exhausted")

// RetryConfig tunes retries of provider calls. Zero values take the
// defaults noted on each field.
type RetryConfig struct {
	// MaxRetries after the first failure. Default: 3. Negative disables retries.
	MaxRetries int

	// InitialBackoff before the first retry. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the computed backoff. Default: 30s.
	MaxBackoff time.Duration

	// BackoffFactor is the exponential growth multiplier. Default: 2.0.
	BackoffFactor float64

	// JitterFraction adds up to this share of the backoff as noise. Default: 0.1.
	JitterFraction float64

	// RetryableFunc decides whether err should be retried. The default
	// retries 429, 500, 502, 503, and 529.
	RetryableFunc func(error) bool
}

// statusCoder is implemented by provider errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	529:                            true,
}

// DefaultRetryable reports whether err is a transient provider failure.
// Typed status errors are checked first; other errors are matched on the
// status code appearing in their text.
func DefaultRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var coder statusCoder
	if errors.As(err, &coder) {
		return retryableStatus[coder.HTTPStatus()]
	}
	msg := err.Error()
	for _, code := range []string{"429", "500", "502", "503", "529"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

func (config RetryConfig) withDefaults() RetryConfig {
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = 2.0
	}
	if config.JitterFraction == 0 {
		config.JitterFraction = 0.1
	}
	if config.RetryableFunc == nil {
		config.RetryableFunc = DefaultRetryable
	}
	return config
}

// backoff returns min(InitialBackoff * BackoffFactor^attempt, MaxBackoff) plus jitter.
func (config RetryConfig) backoff(attempt int) time.Duration {
	base := float64(config.InitialBackoff) * math.Pow(config.BackoffFactor, float64(attempt))
	if base > float64(config.MaxBackoff) {
		base = float64(config.MaxBackoff)
	}
	jitter := base * config.JitterFraction * rand.Float64() //nolint:gosec // non-cryptographic jitter
	return time.Duration(base + jitter)
}

// withRetry calls fn until it succeeds, returns a non-retryable error, or
// the retries are spent. Waits between attempts honour ctx.
func withRetry[T any](ctx context.Context, config RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(config.backoff(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !config.RetryableFunc(err) {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%w after %d retries: %w", ErrRetryExhausted, config.MaxRetries, lastErr)
}
