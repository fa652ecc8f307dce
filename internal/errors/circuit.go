package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen reports a call rejected because the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is a circuit breaker's position.
type State int

const (
	// StateClosed passes calls through normally.
	StateClosed State = iota
	// StateOpen rejects calls outright until the reset timeout elapses.
	StateOpen
	// StateHalfOpen lets one probe call through to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker fails fast against a backend that has stopped
// responding. The embedding provider sits behind one so a down backend
// costs a sync one quick rejection per document instead of a full
// timeout per batch.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.RWMutex
	state       State
	failures    int
	lastFailure time.Time
}

// CircuitBreakerOption configures a CircuitBreaker at construction.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets how many consecutive failures trip the breaker.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.maxFailures = n }
}

// WithResetTimeout sets how long an open breaker waits before allowing a
// probe.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.resetTimeout = d }
}

// NewCircuitBreaker builds a closed breaker. Defaults: 5 failures to
// trip, 30s before probing.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the breaker's name, used in logs.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the breaker's effective position, accounting for an open
// breaker whose reset timeout has elapsed (reads as half-open).
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.currentState()
}

// currentState must be called with at least a read lock held.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && time.Since(cb.lastFailure) > cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Failures returns the consecutive-failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Allow reports whether a call may proceed right now. Half-open allows
// the probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.currentState() != StateOpen
}

// RecordSuccess closes the breaker and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = StateClosed
}

// RecordFailure counts one failure, tripping the breaker at the
// threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = time.Now()
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// Execute runs fn under the breaker: ErrCircuitOpen when open, a single
// probe when half-open (whose failure re-opens immediately), normal
// counting when closed.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	state := cb.currentState()

	// A stored half-open state means a probe is already in flight; further
	// calls are rejected until it completes.
	if state == StateOpen || cb.state == StateHalfOpen {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}

	probe := state == StateHalfOpen
	if probe {
		cb.state = StateHalfOpen
	}
	cb.mu.Unlock()

	err := fn()
	if err != nil {
		if probe {
			cb.mu.Lock()
			cb.state = StateOpen
			cb.lastFailure = time.Now()
			cb.mu.Unlock()
		} else {
			cb.RecordFailure()
		}
		return err
	}

	cb.RecordSuccess()
	return nil
}
