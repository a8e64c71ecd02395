package outbound

import (
	"math/rand"
	"time"
)

// RetryPolicy configures the backoff schedule the Manager uses when a
// connection attempt fails with a transient error. Modeled on the
// exponential-backoff-with-a-ceiling shape used for unreachable-server
// retries, generalized to add jitter and a hard attempt cap.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is used when a Manager is constructed without an
// explicit policy.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 6,
	BaseDelay:   250 * time.Millisecond,
	MaxDelay:    30 * time.Second,
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	return p
}

// delay returns the backoff duration before attempt (1-indexed), with full
// jitter: a uniform random value in [0, cappedExponentialDelay].
func (p RetryPolicy) delay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}

	return time.Duration(rand.Int63n(int64(d) + 1))
}
