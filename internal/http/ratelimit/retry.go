package ratelimit

import (
	"context"
	"math"
	"math/rand/v2"
	"strconv"
	"time"
)

// FetchError describes a retrieval that did not produce a usable body.
// Status is the last HTTP status seen, zero when no response arrived.
type FetchError struct {
	URL      string
	Attempts int
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	msg := "failed to fetch " + e.URL + " after " + strconv.Itoa(e.Attempts) + " attempt"
	if e.Attempts != 1 {
		msg += "s"
	}
	if e.Status != 0 {
		msg += " (HTTP " + strconv.Itoa(e.Status) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRetryableStatus checks if an HTTP status code is retryable
// Retryable: 429, 5xx
func IsRetryableStatus(status int) bool {
	return status == 429 || (status >= 500 && status < 600)
}

// CalculateBackoff returns initialBackoff * 2^attempt, capped, plus 0-25% jitter
func CalculateBackoff(attempt int, config Config) time.Duration {
	exponentialDelay := float64(config.InitialBackoffMs) * math.Pow(2.0, float64(attempt))
	cappedDelay := math.Min(exponentialDelay, float64(config.MaxBackoffMs))
	jitter := rand.Float64() * 0.25 * cappedDelay

	return time.Duration(cappedDelay+jitter) * time.Millisecond
}

// CalculateRateLimitBackoff calculates backoff for HTTP 429 responses.
// A Retry-After header in seconds is respected; otherwise the base is 3^attempt.
func CalculateRateLimitBackoff(attempt int, config Config, retryAfter string) time.Duration {
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		jitter := time.Duration(rand.Int64N(1000)) * time.Millisecond
		return time.Duration(seconds)*time.Second + jitter
	}

	exponentialDelay := float64(config.InitialBackoffMs) * math.Pow(3.0, float64(attempt))
	cappedDelay := math.Min(exponentialDelay, float64(config.MaxBackoffMs))
	jitter := rand.Float64() * 0.25 * cappedDelay

	return time.Duration(cappedDelay+jitter) * time.Millisecond
}

// Sleep blocks for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
