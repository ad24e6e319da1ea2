// Package ratelimit paces navigations per host with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/scrapeworker/internal/metrics"
)

// unknownHost buckets URLs that carry no parseable host.
const unknownHost = "unknown"

// Config holds rate limiter configuration. A non-positive DefaultRPS disables pacing.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// Limiter hands out one token bucket per host, created on first use.
type Limiter struct {
	every rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	l := &Limiter{
		every:   rate.Inf,
		burst:   max(cfg.DefaultBurst, 1),
		buckets: map[string]*rate.Limiter{},
	}
	if cfg.DefaultRPS > 0 {
		l.every = rate.Limit(cfg.DefaultRPS)
	}
	return l
}

// Wait blocks until the bucket for rawURL's host grants a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil || l.every == rate.Inf {
		return nil
	}
	host := hostOf(rawURL)
	started := time.Now()
	if err := l.bucket(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	if delay := time.Since(started); delay > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, delay)
	}
	return nil
}

// Hosts reports how many hosts currently own a bucket.
func (l *Limiter) Hosts() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[host]
	if !ok {
		b = rate.NewLimiter(l.every, l.burst)
		l.buckets[host] = b
	}
	return b
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return unknownHost
	}
	return strings.ToLower(u.Hostname())
}
