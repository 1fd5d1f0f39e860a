package search

import (
	"sync"
	"time"

	"github.com/dockeep/dockeep/internal/metrics"
)

// breaker suspends AI-backed search after repeated provider failures. The
// circuit trips once the failure count reaches the threshold and stays open
// for the cooldown window; a successful call closes it and resets the count.
type breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	failures  int
	openUntil time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Open reports whether calls are currently suspended.
func (b *breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Before(b.openUntil)
}

// Remaining returns how long the circuit stays open, zero when closed.
func (b *breaker) Remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d := b.openUntil.Sub(b.now()); d > 0 {
		return d
	}
	return 0
}

// Success closes the circuit and resets the failure counter.
func (b *breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
	metrics.BreakerOpen.Set(0)
}

// Failure counts one failed call. The counter is not reset on trip, so a
// failure right after the cooldown elapses reopens the circuit immediately.
func (b *breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = b.now().Add(b.cooldown)
		metrics.BreakerOpen.Set(1)
	}
}
