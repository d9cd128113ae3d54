// Package ratelimit spaces out requests to the job board with a per-host
// token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DelayObserver records how long a request was held back.
type DelayObserver interface {
	ObserveRateLimitDelay(domain string, duration time.Duration)
}

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	RPS   float64
	Burst int
}

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	observer DelayObserver
	now      func() time.Time
}

// New creates a Limiter. observer may be nil.
func New(cfg Config, observer DelayObserver) *Limiter {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		observer: observer,
		now:      time.Now,
	}
}

// Wait blocks until a token is available for the host of rawURL.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	limiter := l.forHost(host)

	start := l.now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	// Sub-millisecond waits mean a token was already available.
	if waited := l.now().Sub(start); waited > time.Millisecond && l.observer != nil {
		l.observer.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = limiter
	}
	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
