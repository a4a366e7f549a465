// Package middleware holds HTTP middleware shared by the API routes.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client key. Send-message traffic
// is the expensive path (a completion call per request), so its limiter is
// tighter than the general API one.
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*rate.Limiter
}

// NewRateLimiter creates a limiter allowing rps requests per second with
// the given burst per client key.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, ok := rl.clients[key]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.clients[key] = limiter
	return limiter
}

// Allow reports whether a request from key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiterFor(key).Allow()
}

// Middleware rejects over-limit requests with 429, keyed by client IP.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(c.RealIP()) {
				c.Response().Header().Set("Retry-After", retryAfter(rl.limit))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

func retryAfter(limit rate.Limit) string {
	if limit <= 0 {
		return "1"
	}
	wait := time.Duration(float64(time.Second) / float64(limit))
	seconds := int(wait.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
