package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// clientWindow tracks requests from one client IP
type clientWindow struct {
	Count   int
	FirstAt time.Time
}

// RateLimiter caps how often a client may hit an expensive endpoint
// within a sliding window. Used on the manual refresh trigger, which
// fans out to the upstream quote API.
type RateLimiter struct {
	mu           sync.Mutex
	windows      map[string]*clientWindow
	maxRequests  int
	windowPeriod time.Duration
}

// NewRateLimiter creates a rate limiter allowing maxRequests per
// windowPeriod per client IP
func NewRateLimiter(maxRequests int, windowPeriod time.Duration) *RateLimiter {
	rl := &RateLimiter{
		windows:      make(map[string]*clientWindow),
		maxRequests:  maxRequests,
		windowPeriod: windowPeriod,
	}
	go rl.startCleanup()
	return rl
}

// startCleanup periodically drops expired windows
func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		rl.cleanup()
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, window := range rl.windows {
		if now.Sub(window.FirstAt) > rl.windowPeriod {
			delete(rl.windows, ip)
		}
	}
}

// Allow records a request from ip and reports whether it is within the
// limit, along with remaining quota and the time until the window resets.
func (rl *RateLimiter) Allow(ip string) (bool, int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	window, exists := rl.windows[ip]

	if !exists || now.Sub(window.FirstAt) > rl.windowPeriod {
		rl.windows[ip] = &clientWindow{Count: 1, FirstAt: now}
		return true, rl.maxRequests - 1, 0
	}

	if window.Count >= rl.maxRequests {
		return false, 0, rl.windowPeriod - now.Sub(window.FirstAt)
	}

	window.Count++
	return true, rl.maxRequests - window.Count, 0
}

// Middleware rejects over-limit requests with 429 and a retry hint
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		allowed, remaining, retryAfter := rl.Allow(ip)

		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many refresh requests, slow down",
				"retry_after": int(retryAfter.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
