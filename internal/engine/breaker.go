package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when a component's circuit breaker is open and
// rejects the call to prevent a degraded store from eating its full timeout
// on every build.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds the configuration for a component circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip
	// the circuit. Default: 3.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before allowing test
	// requests. Default: 30 seconds.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required
	// in half-open state before closing again. Default: 2.
	HalfOpenMaxSuccesses uint32
}

// DefaultBreakerConfig returns the compiled-in breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:          3,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	}
}

// ComponentBreaker wraps gobreaker around one storage-backed sub-operation
// of the composer. Repeated transient failures trip the breaker; while open,
// the sub-operation is skipped immediately and its context piece omitted.
type ComponentBreaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
}

// NewComponentBreaker creates a breaker for the named component.
func NewComponentBreaker(name string, config BreakerConfig) *ComponentBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.HalfOpenMaxSuccesses,
		Interval:    0, // don't clear counts periodically
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("%s: circuit breaker %s -> %s", name, from, to)
		},
	}
	return &ComponentBreaker{
		name:    name,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Execute runs fn through the breaker. Returns ErrCircuitOpen immediately
// while the circuit is open. A cancelled context counts as a failure so
// persistent timeouts also trip the breaker.
func (cb *ComponentBreaker) Execute(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, err := cb.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns "closed", "open" or "half-open".
func (cb *ComponentBreaker) State() string {
	switch cb.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
