package reload

import (
	"sync"
	"time"
)

// DefaultBreakerThreshold is the default consecutive-failure count that
// trips the template circuit breaker.
const DefaultBreakerThreshold = 3

// DefaultBreakerCooldown is how long the breaker stays open before
// auto-resetting.
const DefaultBreakerCooldown = 5 * time.Minute

// CircuitBreaker is a simple consecutive-failure breaker: once failures
// reach threshold it opens for cooldown, auto-closing afterward or on an
// explicit Reset.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration

	consecutiveFailures int
	openUntil            time.Time
}

// NewCircuitBreaker constructs a breaker with the given threshold and
// cooldown; non-positive values fall back to the package defaults.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether the breaker is currently closed (or has just
// auto-reset after its cooldown elapsed).
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return true
	}
	if time.Now().After(b.openUntil) {
		b.openUntil = time.Time{}
		b.consecutiveFailures = 0
		return true
	}
	return false
}

// RecordSuccess resets the consecutive-failure counter.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
}

// RecordFailure increments the consecutive-failure counter, opening the
// breaker once it reaches threshold.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	if b.consecutiveFailures >= b.threshold {
		b.openUntil = time.Now().Add(b.cooldown)
	}
}

// Reset explicitly closes the breaker and clears its failure count.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.openUntil = time.Time{}
}

// Open reports whether the breaker is currently open, for diagnostics.
func (b *CircuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.openUntil.IsZero() && time.Now().Before(b.openUntil)
}
