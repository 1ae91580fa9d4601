package wix

import (
	"net/http"
	"strconv"
	"time"
)

// RetryConfig controls how rejected calls are retried
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig retries throttled and server errors three times
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// retryable reports whether a response status is worth another attempt.
// Non-idempotent calls are only retried when throttled.
func retryable(status int, idempotent bool) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return idempotent && status >= http.StatusInternalServerError
}

// backoff returns the wait before attempt n (0-based), preferring the server's Retry-After
func (rc RetryConfig) backoff(attempt int, retryAfter string) time.Duration {
	if d, ok := parseRetryAfter(retryAfter); ok {
		if rc.MaxDelay > 0 && d > rc.MaxDelay {
			return rc.MaxDelay
		}
		return d
	}
	d := rc.BaseDelay << attempt
	if d <= 0 || (rc.MaxDelay > 0 && d > rc.MaxDelay) {
		d = rc.MaxDelay
	}
	return d
}

func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
