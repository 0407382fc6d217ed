// Package resilience provides the circuit breaker that guards a batch against a failing provider.
package resilience

import "sync"

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state; requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the failure policy tripped and the batch must stop.
	CircuitOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// TripReason records which rule opened the circuit.
type TripReason int

const (
	// TripNone means the circuit has not tripped.
	TripNone TripReason = iota
	// TripStartup means a failure happened before any record was processed.
	TripStartup
	// TripConsecutive means FailureThreshold failures happened back-to-back.
	TripConsecutive
)

func (r TripReason) String() string {
	switch r {
	case TripNone:
		return "none"
	case TripStartup:
		return "startup"
	case TripConsecutive:
		return "consecutive"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit. Default: 2.
	FailureThreshold int

	// TripOnFirstFailure opens the circuit on a failure that happens before
	// any record has been processed.
	TripOnFirstFailure bool

	// OnStateChange is called when the circuit transitions between states.
	OnStateChange func(from, to CircuitState, reason TripReason)
}

// DefaultCircuitBreakerConfig returns the batch defaults: abort on a failure
// at the start, or on two failures in a row.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:   2,
		TripOnFirstFailure: true,
	}
}

// CircuitBreaker counts consecutive failures for a single run. Once open it
// stays open; a new run gets a new breaker.
type CircuitBreaker struct {
	cfg   CircuitBreakerConfig
	mu    sync.Mutex
	state CircuitState

	consecutiveFailures int
	processed           int
	reason              TripReason
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 2
	}
	return &CircuitBreaker{
		cfg:   cfg,
		state: CircuitClosed,
	}
}

// RecordSuccess resets the consecutive failure streak.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen {
		return
	}
	cb.processed++
	cb.consecutiveFailures = 0
}

// RecordSkip counts a record that was processed without a call. It closes
// the startup window but leaves the failure streak untouched.
func (cb *CircuitBreaker) RecordSkip() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen {
		return
	}
	cb.processed++
}

// RecordFailure counts a failure and reports whether it opened the circuit.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen {
		return true
	}

	cb.consecutiveFailures++

	switch {
	case cb.cfg.TripOnFirstFailure && cb.processed == 0:
		cb.trip(TripStartup)
	case cb.consecutiveFailures >= cb.cfg.FailureThreshold:
		cb.trip(TripConsecutive)
	}
	return cb.state == CircuitOpen
}

// Reason returns why the circuit opened, or TripNone.
func (cb *CircuitBreaker) Reason() TripReason {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.reason
}

// Counters returns the current failure count and state for observability.
func (cb *CircuitBreaker) Counters() (consecutiveFailures int, state CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFailures, cb.state
}

func (cb *CircuitBreaker) trip(reason TripReason) {
	from := cb.state
	cb.state = CircuitOpen
	cb.reason = reason
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, CircuitOpen, reason)
	}
}
