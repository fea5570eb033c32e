package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/onnwee/menulive/internal/logger"
	"github.com/onnwee/menulive/internal/metrics"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// State represents the circuit breaker state
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

// CircuitBreaker stops calls to a dependency after repeated failures and lets a
// trial call through once the cooldown has passed.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	name            string
	now             func() time.Time

	failureThreshold int
	successThreshold int
	timeout          time.Duration
	isFailure        func(error) bool
}

// Config holds circuit breaker configuration
type Config struct {
	Name             string
	FailureThreshold int           // Number of failures before opening
	SuccessThreshold int           // Number of successes needed to close from half-open
	Timeout          time.Duration // Time to wait before trying half-open
	// IsFailure decides which errors count against the breaker. Nil counts every error.
	IsFailure func(error) bool
	// Now overrides time.Now in tests.
	Now func() time.Time
}

// New creates a new circuit breaker
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)

	return &CircuitBreaker{
		state:            StateClosed,
		name:             cfg.Name,
		now:              cfg.Now,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		isFailure:        cfg.IsFailure,
	}
}

// Call executes fn if the breaker allows it. fn's error is returned unchanged.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.canAttempt() {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil && cb.isFailure(err) {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return err
}

func (cb *CircuitBreaker) canAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.timeout {
			cb.setState(StateHalfOpen)
			cb.successCount = 0
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()
	cb.successCount = 0

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.trip()
		}
	case StateHalfOpen:
		cb.failureCount = 0
		cb.trip()
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.setState(StateClosed)
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.setState(StateOpen)
	metrics.CircuitBreakerTrips.WithLabelValues(cb.name).Inc()
}

func (cb *CircuitBreaker) setState(s State) {
	if cb.state != s {
		logger.WithComponent("circuitbreaker").Info("breaker state changed",
			"breaker", cb.name, "from", cb.state, "to", s, "failures", cb.failureCount)
	}
	cb.state = s
	metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(s))
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
