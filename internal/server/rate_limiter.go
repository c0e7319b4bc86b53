// Package server implements the per-connection inbound throttle that protects
// the hub from message floods.
package server

import (
	"sync"
	"time"
)

// tokenBucket is a lazily refilled token bucket. Refill is computed from the
// elapsed time on each check instead of a ticker goroutine, so an idle
// connection costs nothing. One bucket exists per connection; allow runs on
// that connection's read pump only, but the mutex keeps the accounting safe
// if that ever changes.
type tokenBucket struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	perSec float64
	last   time.Time
	drops  uint64
}

// newTokenBucket builds a bucket from the configured burst and refill
// interval. Zero or negative values fall back to one message per second
// rather than disabling the throttle.
func newTokenBucket(cfg RateLimitConfig) *tokenBucket {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &tokenBucket{
		tokens: float64(burst),
		burst:  float64(burst),
		perSec: float64(burst) / interval.Seconds(),
		last:   time.Now(),
	}
}

// allow spends one token, refilling first for the time elapsed since the
// previous call. Denied calls are counted for the read pump's log line.
func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.last).Seconds() * b.perSec
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.last = now

	if b.tokens < 1 {
		b.drops++
		return false
	}
	b.tokens--
	return true
}

// dropCount returns how many calls have been denied so far.
func (b *tokenBucket) dropCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drops
}
