// Package resilience provides the fault-tolerance primitives used around
// upstream calls: a circuit breaker, exponential-backoff retry, and a
// deadline wrapper.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

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
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls failure thresholds and recovery timing.
// OnStateChange, when set, is called outside the breaker lock.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	OnStateChange       func(name string, from, to State)
}

// CircuitBreaker trips open after FailureThreshold consecutive failures and
// lets a limited number of trial calls through once ResetTimeout elapses.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu               sync.Mutex
	state            State
	failures         int
	openedAt         time.Time
	halfOpenInFlight int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
		now:    time.Now,
	}
}

// Execute runs fn if the breaker admits the call and records the outcome.
// Errors marked Permanent do not count as failures.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Name() string { return cb.name }

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.state = StateHalfOpen
		cb.halfOpenInFlight = 1
		cb.mu.Unlock()
		cb.notify(from, StateHalfOpen)
		return nil
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.cfg.HalfOpenMaxRequests {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s (trial call in flight)", ErrCircuitOpen, cb.name)
		}
		cb.halfOpenInFlight++
	}
	cb.mu.Unlock()
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	if err != nil && IsPermanent(err) {
		err = nil
	}
	cb.mu.Lock()
	from := cb.state
	to := from
	if err == nil {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			to = StateClosed
			cb.halfOpenInFlight = 0
		}
	} else {
		cb.failures++
		switch {
		case cb.state == StateHalfOpen:
			to = StateOpen
		case cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
			to = StateOpen
		}
		if to == StateOpen {
			cb.openedAt = cb.now()
			cb.halfOpenInFlight = 0
		}
	}
	cb.state = to
	failures := cb.failures
	cb.mu.Unlock()

	if to != from {
		cb.logger.Warn("circuit state changed", "from", from.String(), "to", to.String(), "consecutive_failures", failures)
		cb.notify(from, to)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.cfg.OnStateChange != nil && from != to {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}
