package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// State is the state of a circuit breaker.
type State int

const (
	// StateClosed lets requests through.
	StateClosed State = iota
	// StateOpen fails requests with ErrCircuitOpen.
	StateOpen
	// StateHalfOpen lets one trial request through.
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

// CircuitBreaker opens after MaxFailures consecutive failures and lets a
// trial request through once ResetTimeout has passed.
type CircuitBreaker struct {
	maxFailures   int
	resetTimeout  time.Duration
	onStateChange func(from, to State)
	now           func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	trialActive bool
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig, onStateChange func(from, to State)) *CircuitBreaker {
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	reset := cfg.ResetTimeout.Std()
	if reset <= 0 {
		reset = 30 * time.Second
	}
	return &CircuitBreaker{
		maxFailures:   maxFailures,
		resetTimeout:  reset,
		onStateChange: onStateChange,
		now:           time.Now,
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentLocked()
}

// Allow reports whether a request may be sent. Every allowed request must
// be followed by Record.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.currentLocked() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.trialActive {
			return false
		}
		cb.trialActive = true
		cb.toLocked(StateHalfOpen)
		return true
	default:
		return false
	}
}

// Record reports the outcome of an allowed request.
func (cb *CircuitBreaker) Record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trialActive = false
	if success {
		cb.failures = 0
		cb.toLocked(StateClosed)
		return
	}
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.openedAt = cb.now()
		cb.toLocked(StateOpen)
	}
}

// Release ends an allowed request without recording an outcome.
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	cb.trialActive = false
	cb.mu.Unlock()
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.trialActive = false
	cb.toLocked(StateClosed)
}

func (cb *CircuitBreaker) currentLocked() State {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) toLocked(s State) {
	if cb.state == s {
		return
	}
	from := cb.state
	cb.state = s
	if cb.onStateChange != nil {
		cb.onStateChange(from, s)
	}
}

// breakerTransport counts transport errors and 5xx responses as failures.
type breakerTransport struct {
	next    http.RoundTripper
	breaker *CircuitBreaker
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.breaker.Allow() {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, ErrCircuitOpen
	}
	resp, err := t.next.RoundTrip(req)
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		t.breaker.Release()
	case err != nil:
		t.breaker.Record(false)
	default:
		t.breaker.Record(resp.StatusCode < http.StatusInternalServerError)
	}
	return resp, err
}
