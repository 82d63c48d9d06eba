package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/metrics"
)

// Stopper is implemented by stores that own connections or goroutines
type Stopper interface {
	Stop()
}

// BreakerSettings configures the circuit breaker around a store
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// BreakerStore wraps a KeyValueStore with a circuit breaker so an unhealthy
// backend is skipped instead of waited on. A missing key is not a failure.
type BreakerStore struct {
	next   core.KeyValueStore
	cb     *gobreaker.CircuitBreaker[any]
	logger *zap.Logger
}

// NewBreakerStore creates a new circuit breaker decorator
func NewBreakerStore(next core.KeyValueStore, settings BreakerSettings, logger *zap.Logger) *BreakerStore {
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	name := settings.Name
	if name == "" {
		name = "kv-store"
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, core.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Store circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerStore{next: next, cb: cb, logger: logger}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Stop stops the wrapped store
func (s *BreakerStore) Stop() {
	if st, ok := s.next.(Stopper); ok {
		st.Stop()
	}
}

// State returns the current breaker state
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

func (s *BreakerStore) execute(fn func() (any, error)) (any, error) {
	result, err := s.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return result, err
}

// Get retrieves the value of key
func (s *BreakerStore) Get(ctx context.Context, key string) (string, error) {
	result, err := s.execute(func() (any, error) {
		return s.next.Get(ctx, key)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Set stores value under key
func (s *BreakerStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.execute(func() (any, error) {
		return nil, s.next.Set(ctx, key, value, ttl)
	})
	return err
}

// Incr increments key
func (s *BreakerStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	result, err := s.execute(func() (any, error) {
		return s.next.Incr(ctx, key, ttl)
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// Delete removes key
func (s *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := s.execute(func() (any, error) {
		return nil, s.next.Delete(ctx, key)
	})
	return err
}

// Keys lists live keys with the given prefix
func (s *BreakerStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	result, err := s.execute(func() (any, error) {
		return s.next.Keys(ctx, prefix)
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}
