package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Config holds outbound rate limiting and retry configuration
type Config struct {
	RequestsPerSecond int `json:"requestsPerSecond" mapstructure:"requests_per_second"`
	MaxRetries        int `json:"maxRetries" mapstructure:"max_retries"`
	InitialBackoffMs  int `json:"initialBackoffMs" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int `json:"maxBackoffMs" mapstructure:"max_backoff_ms"`
}

// DefaultConfig returns the default rate limit configuration
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 2,
		MaxRetries:        2,
		InitialBackoffMs:  100,
		MaxBackoffMs:      30000,
	}
}

// RateLimiter spaces outbound requests with a token bucket
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter with the given config.
// A non-positive rate disables limiting.
func NewRateLimiter(config Config) *RateLimiter {
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, 1)}
}

// Throttle blocks until the next request may be sent or ctx is done
func (r *RateLimiter) Throttle(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
