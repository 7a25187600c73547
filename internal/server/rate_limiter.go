// Package server throttles chat lines per session with a token bucket.
package server

import (
	"sync"
	"time"
)

// rateLimiter holds up to burst tokens and regains burst tokens every interval.
// A chat line costs one token; lines that find the bucket empty are discarded.
// A nil rateLimiter allows everything.
type rateLimiter struct {
	mu       sync.Mutex
	burst    float64
	tokens   float64
	perToken time.Duration
	last     time.Time
	clock    func() time.Time
}

// newRateLimiter returns nil when cfg.Burst is not positive, which disables limiting.
func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.Burst <= 0 {
		return nil
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	return &rateLimiter{
		burst:    float64(cfg.Burst),
		tokens:   float64(cfg.Burst),
		perToken: cfg.RefillInterval / time.Duration(cfg.Burst),
		last:     time.Now(),
		clock:    time.Now,
	}
}

// allow takes one token if one is available.
func (rl *rateLimiter) allow() bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock()
	if elapsed := now.Sub(rl.last); elapsed > 0 && rl.perToken > 0 {
		rl.tokens = min(rl.burst, rl.tokens+float64(elapsed)/float64(rl.perToken))
	}
	rl.last = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
