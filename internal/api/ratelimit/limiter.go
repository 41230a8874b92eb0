// Package ratelimit provides a per-IP request limiter for sensitive
// endpoints such as token minting.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	DefaultRequestsPerMinute = 10
	DefaultWindow            = time.Minute
)

type bucket struct {
	count     int64
	resetTime time.Time
}

// Limiter is a fixed-window per-IP rate limiter.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int64
	window  time.Duration
}

// NewLimiter creates a limiter with default settings.
func NewLimiter() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		limit:   DefaultRequestsPerMinute,
		window:  DefaultWindow,
	}
}

// Middleware rejects requests over the per-IP limit with 429.
func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.allow(c.RealIP()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, please try again later")
			}
			return next(c)
		}
	}
}

func (l *Limiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, exists := l.buckets[ip]
	if !exists || now.After(b.resetTime) {
		l.buckets[ip] = &bucket{count: 1, resetTime: now.Add(l.window)}
		return true
	}
	if b.count >= l.limit {
		return false
	}
	b.count++
	return true
}

// Cleanup drops expired buckets. Called periodically by StartCleanup.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for ip, b := range l.buckets {
		if now.After(b.resetTime) {
			delete(l.buckets, ip)
		}
	}
}

// StartCleanup runs Cleanup on the given interval in a background goroutine.
func (l *Limiter) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			l.Cleanup()
		}
	}()
}
