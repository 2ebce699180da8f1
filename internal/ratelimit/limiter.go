// Package ratelimit throttles MCP tool calls per tool and session with token
// buckets, so a runaway client cannot monopolize the session locks.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limiter implements a per-key token bucket rate limiter.
// Each key gets its own bucket with the configured rate and burst.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64          // tokens per second
	burst   int              // max burst size (also initial token count)
	nowFunc func() time.Time // injectable clock for testing
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
// The burst size also serves as the initial number of tokens available.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow takes a token from key's bucket, refilling it for the time elapsed
// since the last call. It reports false when the bucket is empty.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.lastCheck = now
	}

	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}

// Prune drops buckets untouched for longer than idle and returns how many
// were removed. A dropped bucket comes back full on its next use.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.nowFunc().Add(-idle)
	removed := 0
	for key, b := range l.buckets {
		if b.lastCheck.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default per-tool limits. nudge_check runs on
// every agent tool call and gets the most headroom; workflow mutations are
// rarer and tighter.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"nudge_check":      NewLimiter(20.0, 50),     // 1200/minute, burst 50
		"nudge_select":     NewLimiter(5.0, 20),      // 300/minute, burst 20
		"nudge_session":    NewLimiter(1.0, 10),      // 60/minute, burst 10
		"nudge_next_step":  NewLimiter(2.0, 10),      // 120/minute, burst 10
		"nudge_advance":    NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"nudge_skip_stage": NewLimiter(10.0/60.0, 3), // 10/minute, burst 3
		"nudge_reset":      NewLimiter(5.0/60.0, 2),  // 5/minute, burst 2
	}
}

// CheckLimit checks toolName's limit for one session. Tools without a
// configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName, sessionID string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(sessionID) {
		return fmt.Errorf("rate limit exceeded for %s in session %s, please try again shortly", toolName, sessionID)
	}
	return nil
}

// Prune drops idle buckets from every limiter.
func (t ToolLimiters) Prune(idle time.Duration) {
	for _, l := range t {
		l.Prune(idle)
	}
}
