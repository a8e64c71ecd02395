package inboundauth

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter applied to the authorize/token/
// revoke/register endpoints, keyed by client IP.
type RateLimiter struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	attempts    map[string][]time.Time
}

// NewRateLimiter constructs a RateLimiter. windowMs<=0 or max<=0 fall back
// to a permissive default of 60 requests per minute.
func NewRateLimiter(windowMs, max int) *RateLimiter {
	window := time.Duration(windowMs) * time.Millisecond
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 60
	}
	return &RateLimiter{
		maxAttempts: max,
		window:      window,
		attempts:    make(map[string][]time.Time),
	}
}

// Allow reports whether key may proceed, recording the attempt if so. On
// rejection, it also reports the number of seconds until the oldest
// attempt in the window falls out of it, for a Retry-After hint.
func (rl *RateLimiter) Allow(key string) (allowed bool, retryAfterSeconds int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	existing := rl.attempts[key]
	kept := existing[:0]
	for _, t := range existing {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.maxAttempts {
		retryAfter := kept[0].Add(rl.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		rl.attempts[key] = kept
		return false, int(retryAfter.Seconds()) + 1
	}

	rl.attempts[key] = append(kept, now)
	return true, 0
}

// Sweep discards tracking for keys with no attempts left in the window,
// bounding the map's size across long-running processes.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)
	removed := 0
	for key, times := range rl.attempts {
		kept := times[:0]
		for _, t := range times {
			if t.After(windowStart) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(rl.attempts, key)
			removed++
		} else {
			rl.attempts[key] = kept
		}
	}
	return removed
}
