// Package ratelimit provides per-key token buckets that throttle simulation
// requests arriving over MCP and HTTP.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrLimited is returned by Check when a key has no tokens left.
var ErrLimited = errors.New("rate limit exceeded")

// Limiter is a set of token buckets, one per key, sharing a refill rate and
// burst size. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // also the initial token count
	nowFunc func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a limiter refilling rate tokens per second up to burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// PerMinute creates a limiter allowing n requests per minute with the given burst.
func PerMinute(n float64, burst int) *Limiter {
	return NewLimiter(n/60.0, burst)
}

// refill returns the bucket for key with tokens brought up to now.
// Callers hold l.mu.
func (l *Limiter) refill(key string) *bucket {
	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[key] = b
		return b
	}
	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = math.Min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.lastCheck = now
	}
	return b
}

// Allow takes a token for key if one is available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key)
	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}

// RetryAfter returns how long key must wait for its next token. Zero means
// a request would be allowed now.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(key)
	if b.tokens >= 1.0 {
		return 0
	}
	if l.rate <= 0 {
		return time.Duration(math.MaxInt64)
	}
	secs := (1.0 - b.tokens) / l.rate
	return time.Duration(math.Ceil(secs * float64(time.Second)))
}

// Check is Allow returning ErrLimited, wrapped with key, on refusal.
func (l *Limiter) Check(key string) error {
	if l == nil || l.Allow(key) {
		return nil
	}
	return fmt.Errorf("%w for %s, please try again shortly", ErrLimited, key)
}

// ToolLimiters maps MCP tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the default per-tool limits. Simulations are
// costly, listings are cheap.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"tradernet_simulate":  PerMinute(10, 2),
		"tradernet_runs":      PerMinute(60, 10),
		"tradernet_run":       PerMinute(60, 10),
		"tradernet_influence": PerMinute(20, 5),
	}
}

// CheckLimit checks the limit for a tool. Tools without a limiter are
// always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	return limiters[toolName].Check(toolName)
}
