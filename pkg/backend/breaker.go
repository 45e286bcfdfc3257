package backend

import (
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state.
type BreakerState string

// Circuit breaker states
const (
	// BreakerClosed allows all calls through
	BreakerClosed BreakerState = "CLOSED"

	// BreakerOpen fails all calls fast until the cooldown elapses
	BreakerOpen BreakerState = "OPEN"

	// BreakerHalfOpen admits exactly one probe call
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// Breaker is a circuit breaker guarding the durable backend. It opens
// after a configured number of consecutive failures, fails fast while
// open, and after the cooldown admits a single half-open probe whose
// outcome decides whether the circuit closes again.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	cooldown         time.Duration

	state        BreakerState
	failureCount int
	openedAt     time.Time
	probing      bool

	// now is overridable for tests
	now func() time.Time
}

// NewBreaker creates a Breaker with the given consecutive-failure
// threshold and open-state cooldown.
func NewBreaker(failureThreshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		state:            BreakerClosed,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed. While open, it returns false
// until the cooldown has elapsed, then transitions to half-open and
// admits exactly one probe; further calls are rejected until the probe's
// outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return true
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// RecordSuccess records a successful call. A successful half-open probe
// closes the circuit and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.probing = false
	b.state = BreakerClosed
}

// RecordFailure records a failed call. In the closed state the failure
// count increments and the circuit opens at the threshold; a failed
// half-open probe re-opens the circuit and restarts the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.state = BreakerOpen
			b.openedAt = b.now()
		}
	case BreakerHalfOpen:
		b.probing = false
		b.state = BreakerOpen
		b.openedAt = b.now()
	case BreakerOpen:
		// Already open; nothing to do
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive-failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
