package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// HTTPError is returned when a provider answers with a non-200 status.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *HTTPError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// RetryConfig controls RetryDo.
type RetryConfig struct {
	Attempts int
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultRetryConfig retries twice with a short exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts: 3,
		MinDelay: 500 * time.Millisecond,
		MaxDelay: 10 * time.Second,
	}
}

// RetryDo runs fn until it succeeds, returns a non-retryable error,
// exhausts cfg.Attempts, or ctx is done.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	delay := cfg.MinDelay
	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || !httpErr.Retryable() || i == attempts-1 {
			break
		}

		wait := delay
		if httpErr.RetryAfter > 0 {
			wait = httpErr.RetryAfter
		}
		if cfg.MaxDelay > 0 && wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}
		slog.Debug("provider request retry", "attempt", i+1, "wait", wait, "status", httpErr.Status)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
	return zero, lastErr
}

// ParseRetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
