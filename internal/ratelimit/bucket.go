// Package ratelimit implements the per-skill token bucket described in
// spec §4.1: refilled continuously at max_per_minute/60 tokens/second, with
// burst capacity equal to max_per_minute (§9 open question, resolved here).
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a token bucket for a single skill.
type Bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewBucket creates a bucket for a skill declaring maxPerMinute invocations.
// Burst capacity defaults to maxPerMinute (§9 open question).
func NewBucket(maxPerMinute int) *Bucket {
	if maxPerMinute <= 0 {
		maxPerMinute = 60
	}
	return &Bucket{
		tokens:     float64(maxPerMinute),
		maxTokens:  float64(maxPerMinute),
		refillRate: float64(maxPerMinute) / 60.0,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow attempts to consume one token. Returns false if the bucket is empty.
func (b *Bucket) Allow() bool {
	return b.AllowN(1)
}

// AllowN attempts to consume n tokens atomically.
func (b *Bucket) AllowN(n int) bool {
	if n <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// WaitTime reports how long until a single token would be available.
// Callers may retry after at least this duration (spec §4.1).
func (b *Bucket) WaitTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= 1 {
		return 0
	}
	if b.refillRate <= 0 {
		return time.Hour
	}
	needed := 1 - b.tokens
	return time.Duration(needed / b.refillRate * float64(time.Second))
}

// Tokens returns the current token count after applying refill.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

func (b *Bucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

// Limiter manages one Bucket per skill name.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
	limits  map[string]int
}

// NewLimiter creates an empty per-skill rate limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		buckets: make(map[string]*Bucket),
		limits:  make(map[string]int),
	}
}

// Configure sets (or updates) the max_per_minute for a skill. Existing
// buckets keep their current token count; only the capacity (maxTokens)
// and the refill rate change.
func (l *Limiter) Configure(skill string, maxPerMinute int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[skill] = maxPerMinute
	if b, ok := l.buckets[skill]; ok {
		b.mu.Lock()
		b.maxTokens = float64(maxPerMinute)
		b.refillRate = float64(maxPerMinute) / 60.0
		b.mu.Unlock()
		return
	}
	l.buckets[skill] = NewBucket(maxPerMinute)
}

// Allow consumes one token for skill, creating its bucket with a default
// limit (60/min) if it has not been configured yet.
func (l *Limiter) Allow(skill string) bool {
	return l.bucketFor(skill).Allow()
}

// WaitTime reports the retry-after duration for skill.
func (l *Limiter) WaitTime(skill string) time.Duration {
	return l.bucketFor(skill).WaitTime()
}

func (l *Limiter) bucketFor(skill string) *Bucket {
	l.mu.RLock()
	b, ok := l.buckets[skill]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[skill]; ok {
		return b
	}
	limit := l.limits[skill]
	b = NewBucket(limit)
	l.buckets[skill] = b
	return b
}
