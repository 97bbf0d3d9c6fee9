package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when calls are being shed because the
// breaker has tripped.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the observable condition of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
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
	}
	return "unknown"
}

// CircuitBreaker sheds calls to an unresponsive collaborator, in
// practice the local Ollama server. Callers ask Allow before each
// attempt and report the outcome with RecordSuccess or RecordFailure.
//
// State is derived, not stored: the breaker is open while the failure
// count has reached the threshold and the last failure is recent.
// Once the reset window passes it reads half-open, which lets a probe
// call through; a failed probe refreshes the window and re-opens, a
// success resets the count and closes.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
}

type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets how many consecutive failures trip the breaker.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.maxFailures = n }
}

// WithResetTimeout sets how long the breaker stays open before
// allowing a probe.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.resetTimeout = d }
}

// NewCircuitBreaker returns a closed breaker. Defaults are 5 failures
// and a 30 second reset window.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

func (cb *CircuitBreaker) Name() string { return cb.name }

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() State {
	if cb.failures < cb.maxFailures {
		return StateClosed
	}
	if time.Since(cb.lastFailure) > cb.resetTimeout {
		return StateHalfOpen
	}
	return StateOpen
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Allow reports whether a call may proceed. Half-open allows the call
// as a probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked() != StateOpen
}

// RecordSuccess closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
}

// RecordFailure counts one failure. Reaching the threshold, or failing
// a half-open probe, opens the breaker for a fresh reset window.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = time.Now()
}
