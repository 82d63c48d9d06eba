package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/metrics"
)

// FallbackStore routes operations to a primary store and degrades to an
// owned in-memory store whenever the primary errors. Keys written during an
// outage stay readable after the primary recovers until they expire.
type FallbackStore struct {
	primary  core.KeyValueStore
	fallback *MemoryStore
	logger   *zap.Logger
}

// NewFallbackStore creates a new fallback router
func NewFallbackStore(primary core.KeyValueStore, fallback *MemoryStore, logger *zap.Logger) *FallbackStore {
	return &FallbackStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (s *FallbackStore) degrade(op, key string, err error) {
	metrics.StoreFallbacks.WithLabelValues(op).Inc()
	s.logger.Warn("Primary store failed, using in-memory fallback",
		zap.String("operation", op),
		zap.String("key", key),
		zap.Error(err))
}

// Get retrieves the value of key
func (s *FallbackStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		s.degrade("get", key, err)
	}
	return s.fallback.Get(ctx, key)
}

// Set stores value under key
func (s *FallbackStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.primary.Set(ctx, key, value, ttl); err != nil {
		s.degrade("set", key, err)
		return s.fallback.Set(ctx, key, value, ttl)
	}
	return nil
}

// Incr increments key
func (s *FallbackStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := s.primary.Incr(ctx, key, ttl)
	if err != nil {
		s.degrade("incr", key, err)
		return s.fallback.Incr(ctx, key, ttl)
	}
	return n, nil
}

// Delete removes key from both stores
func (s *FallbackStore) Delete(ctx context.Context, key string) error {
	_ = s.fallback.Delete(ctx, key)
	if err := s.primary.Delete(ctx, key); err != nil {
		s.degrade("delete", key, err)
	}
	return nil
}

// Keys lists live keys with the given prefix
func (s *FallbackStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.primary.Keys(ctx, prefix)
	if err != nil {
		s.degrade("keys", prefix, err)
		return s.fallback.Keys(ctx, prefix)
	}
	return keys, nil
}

// Stop stops the fallback sweep and the primary store
func (s *FallbackStore) Stop() {
	s.fallback.Stop()
	if st, ok := s.primary.(Stopper); ok {
		st.Stop()
	}
}
