package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"ai-trader/models"
	"ai-trader/observability"
)

// ErrServiceUnavailable is returned while a breaker rejects calls
var ErrServiceUnavailable = errors.New("service unavailable")

// Circuit breaker names. Advisor breakers are named after the provider.
const (
	BreakerAlpaca     = "alpaca"
	BreakerBedrock    = "bedrock"
	BreakerOpenAI     = "openai"
	BreakerOpenRouter = "openrouter"
)

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	MaxRequests  uint32        // probes allowed while half-open
	Interval     time.Duration // closed-state window after which counts reset
	Timeout      time.Duration // how long the breaker stays open
	MinRequests  uint32        // requests in the window before the breaker may trip
	FailureRatio float64       // failures/requests at which the breaker trips
}

// DefaultCircuitBreakerConfig is used by the global registry
var DefaultCircuitBreakerConfig = CircuitBreakerConfig{
	MaxRequests:  5,
	Interval:     1 * time.Minute,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.5,
}

// CircuitBreakerRegistry holds one breaker per external service. Breakers are
// created lazily; Configure sets a per-service config before first use.
type CircuitBreakerRegistry struct {
	mu        sync.RWMutex
	breakers  map[string]*gobreaker.CircuitBreaker[any]
	config    CircuitBreakerConfig
	overrides map[string]CircuitBreakerConfig
}

// NewCircuitBreakerRegistry creates a new registry with the given config
func NewCircuitBreakerRegistry(config CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers:  make(map[string]*gobreaker.CircuitBreaker[any]),
		config:    config,
		overrides: make(map[string]CircuitBreakerConfig),
	}
}

// Configure overrides the config of one service. It replaces an existing breaker,
// dropping its counts.
func (r *CircuitBreakerRegistry) Configure(name string, config CircuitBreakerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = config
	delete(r.breakers, name)
}

// GetBreaker returns (or creates) the breaker for a service
func (r *CircuitBreakerRegistry) GetBreaker(name string) *gobreaker.CircuitBreaker[any] {
	r.mu.RLock()
	cb, exists := r.breakers[name]
	r.mu.RUnlock()

	if exists {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, exists = r.breakers[name]; exists {
		return cb
	}

	cb = gobreaker.NewCircuitBreaker[any](r.settings(name))
	r.breakers[name] = cb
	return cb
}

// settings must be called with the write lock held
func (r *CircuitBreakerRegistry) settings(name string) gobreaker.Settings {
	config := r.config
	if o, ok := r.overrides[name]; ok {
		config = o
	}

	return gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < config.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return !countsAsOutage(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			observability.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String())

			metrics := observability.GetMetrics()
			metrics.SetCircuitBreakerState(name, stateToInt(to))
			if to == gobreaker.StateOpen {
				metrics.RecordCircuitBreakerTrip(name)
			}
		},
	}
}

// countsAsOutage reports whether an error says something about the remote service.
// Rejected input and callers that walked away do not; timeouts do.
func countsAsOutage(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, models.ErrData), errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// Execute runs fn through the named breaker
func (r *CircuitBreakerRegistry) Execute(ctx context.Context, name string, fn func() (any, error)) (any, error) {
	cb := r.GetBreaker(name)

	result, err := cb.Execute(func() (any, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return fn()
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		observability.Warn("circuit breaker open, rejecting request", "breaker", name)
		return nil, fmt.Errorf("%w: %s circuit breaker open", ErrServiceUnavailable, name)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		observability.Warn("circuit breaker half-open, too many requests", "breaker", name)
		return nil, fmt.Errorf("%w: %s has too many requests in half-open state", ErrServiceUnavailable, name)
	}

	return result, err
}

// Status returns the current state of all circuit breakers
func (r *CircuitBreakerRegistry) Status() map[string]CircuitBreakerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := make(map[string]CircuitBreakerStatus, len(r.breakers))
	for name, cb := range r.breakers {
		counts := cb.Counts()
		status[name] = CircuitBreakerStatus{
			Name:             name,
			State:            cb.State().String(),
			Requests:         counts.Requests,
			TotalSuccesses:   counts.TotalSuccesses,
			TotalFailures:    counts.TotalFailures,
			ConsecutiveSucc:  counts.ConsecutiveSuccesses,
			ConsecutiveFails: counts.ConsecutiveFailures,
		}
	}
	return status
}

// OpenBreakers returns the sorted names of breakers currently rejecting calls
func (r *CircuitBreakerRegistry) OpenBreakers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []string
	for name, cb := range r.breakers {
		if cb.State() == gobreaker.StateOpen {
			open = append(open, name)
		}
	}
	sort.Strings(open)
	return open
}

// CircuitBreakerStatus represents the current state of a circuit breaker
type CircuitBreakerStatus struct {
	Name             string `json:"name"`
	State            string `json:"state"`
	Requests         uint32 `json:"requests"`
	TotalSuccesses   uint32 `json:"total_successes"`
	TotalFailures    uint32 `json:"total_failures"`
	ConsecutiveSucc  uint32 `json:"consecutive_successes"`
	ConsecutiveFails uint32 `json:"consecutive_failures"`
}

var (
	globalRegistry *CircuitBreakerRegistry
	registryOnce   sync.Once
	registryMu     sync.RWMutex
)

// GetGlobalRegistry returns the process-wide registry
func GetGlobalRegistry() *CircuitBreakerRegistry {
	registryOnce.Do(func() {
		registryMu.Lock()
		if globalRegistry == nil {
			globalRegistry = NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig)
		}
		registryMu.Unlock()
	})
	registryMu.RLock()
	defer registryMu.RUnlock()
	return globalRegistry
}

// SetGlobalRegistry replaces the process-wide registry (tests use a fresh one)
func SetGlobalRegistry(r *CircuitBreakerRegistry) {
	registryOnce.Do(func() {})
	registryMu.Lock()
	globalRegistry = r
	registryMu.Unlock()
}

// WithCircuitBreaker runs fn through the named breaker of the global registry
func WithCircuitBreaker[T any](ctx context.Context, name string, fn func() (T, error)) (T, error) {
	result, err := GetGlobalRegistry().Execute(ctx, name, func() (any, error) {
		return fn()
	})

	if err != nil {
		var zero T
		return zero, err
	}

	return result.(T), nil
}

// stateToInt maps a breaker state to the gauge value: 0=closed, 1=half-open, 2=open
func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
