package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// requestWindow tracks requests from one IP inside the current window.
type requestWindow struct {
	Count   int
	FirstAt time.Time
}

// RateLimiter limits API requests per client IP over a fixed window.
type RateLimiter struct {
	mu          sync.Mutex
	windows     map[string]*requestWindow
	maxRequests int
	period      time.Duration
}

// NewRateLimiter creates an API rate limiter with the default budget
// (300 requests per minute per IP).
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		windows:     make(map[string]*requestWindow),
		maxRequests: 300,
		period:      time.Minute,
	}
	// Cleanup goroutine keeps the map from growing with dead IPs
	go rl.startCleanup()
	return rl
}

// startCleanup periodically cleans up old entries
func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		rl.cleanup()
	}
}

// cleanup removes expired entries
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, window := range rl.windows {
		if now.Sub(window.FirstAt) > rl.period {
			delete(rl.windows, ip)
		}
	}
}

// allow records a request from the IP and reports whether it is within the
// budget for the current window.
func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	window, exists := rl.windows[ip]

	if !exists || now.Sub(window.FirstAt) > rl.period {
		rl.windows[ip] = &requestWindow{Count: 1, FirstAt: now}
		return true
	}

	window.Count++
	return window.Count <= rl.maxRequests
}

// Middleware returns a gin handler enforcing the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
			})
			return
		}
		c.Next()
	}
}
