// Package server implements a token bucket rate limiter for optional
// per-connection throttling of inbound frames.
package server

import (
	"sync"
	"time"
)

// tokenBucket refills continuously at capacity tokens per interval.
type tokenBucket struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	rate      float64 // tokens per second
	lastCheck time.Time
	now       func() time.Time
}

// newTokenBucket returns nil when cfg disables limiting; a nil bucket allows
// every frame.
func newTokenBucket(cfg RateLimitConfig) *tokenBucket {
	if cfg.Burst <= 0 {
		return nil
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	b := &tokenBucket{
		tokens:   float64(cfg.Burst),
		capacity: float64(cfg.Burst),
		rate:     float64(cfg.Burst) / interval.Seconds(),
		now:      time.Now,
	}
	b.lastCheck = b.now()
	return b
}

func (b *tokenBucket) allow() bool {
	if b == nil {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
	}
	b.lastCheck = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
