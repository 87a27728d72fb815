package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bidhouse/server/backend/utils"
	"github.com/gofiber/fiber/v2"
)

// RateLimiter implements a simple in-memory sliding window rate limiter
type RateLimiter struct {
	requests map[string][]time.Time
	mutex    sync.Mutex
	window   time.Duration
	limit    int
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
		limit:    limit,
		now:      time.Now,
	}
}

// Allow checks if a request should be allowed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	valid := prune(rl.requests[key], now.Add(-rl.window))

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// Cleanup drops keys that have been quiet for two windows.
func (rl *RateLimiter) Cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := rl.now().Add(-rl.window * 2)
	for key, requests := range rl.requests {
		if valid := prune(requests, cutoff); len(valid) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = valid
		}
	}
}

func prune(requests []time.Time, cutoff time.Time) []time.Time {
	var valid []time.Time
	for _, req := range requests {
		if req.After(cutoff) {
			valid = append(valid, req)
		}
	}
	return valid
}

// RateLimit middleware limits requests per IP address
func RateLimit(limiter *RateLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := utils.GetIPAddress(c)

		if !limiter.Allow(ip) {
			slog.Warn("Rate limit exceeded",
				slog.String("type", "api"),
				slog.String("ip", ip),
				slog.String("path", c.Path()),
				slog.String("method", c.Method()),
				slog.Int("limit", limiter.limit),
				slog.Duration("window", limiter.window))

			return utils.SendTooManyRequests(c)
		}

		return c.Next()
	}
}
