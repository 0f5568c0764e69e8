package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig holds configuration for inbound rate limiting
type RateLimiterConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL is how long an unused client limiter is kept
	IdleTTL time.Duration
}

// DefaultRateLimiterConfig returns default rate limiting settings
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
		IdleTTL:           5 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter tracks a token bucket per client IP
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	config   RateLimiterConfig
	now      func() time.Time
}

// NewIPRateLimiter creates a new IP-based rate limiter
func NewIPRateLimiter(config RateLimiterConfig) *IPRateLimiter {
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultRateLimiterConfig().IdleTTL
	}
	return &IPRateLimiter{
		limiters: make(map[string]*clientLimiter),
		config:   config,
		now:      time.Now,
	}
}

// Allow reports whether a request from ip may proceed now
func (rl *IPRateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.limiters[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)}
		rl.limiters[ip] = cl
	}
	cl.lastSeen = rl.now()
	return cl.limiter.Allow()
}

// Cleanup drops limiters idle for longer than IdleTTL and returns how many
// remain
func (rl *IPRateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.config.IdleTTL)
	for ip, cl := range rl.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
	return len(rl.limiters)
}

// RateLimitMiddleware applies per-client rate limiting. Idle limiters are
// swept every IdleTTL until ctx is done.
func RateLimitMiddleware(ctx context.Context, config RateLimiterConfig) gin.HandlerFunc {
	limiter := NewIPRateLimiter(config)

	go func() {
		ticker := time.NewTicker(limiter.config.IdleTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup()
			}
		}
	}()

	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
