package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/metrics"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of the KeyValueStore interface.
// It owns its TTL sweep; call Stop to end it.
type MemoryStore struct {
	entries     map[string]*memoryEntry
	mu          sync.RWMutex
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// NewMemoryStore creates a new in-memory store. A non-positive cleanupFreq
// disables the background sweep; expired keys are still hidden on read.
func NewMemoryStore(logger *zap.Logger, cleanupFreq time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries:     make(map[string]*memoryEntry),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}

	if cleanupFreq > 0 {
		go s.startCleanupTask()
	}

	return s
}

// SetClock replaces the time source, for tests
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) live(key string) (*memoryEntry, bool) {
	entry, ok := s.entries[key]
	if !ok || !s.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry, true
}

// Get retrieves the value of key
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.live(key)
	if !ok {
		metrics.StoreOperations.WithLabelValues("memory", "get", "miss").Inc()
		return "", core.ErrNotFound
	}
	metrics.StoreOperations.WithLabelValues("memory", "get", "ok").Inc()
	return entry.value, nil
}

// Set stores value under key
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memoryEntry{
		value:     value,
		expiresAt: s.now().Add(ttl),
	}
	metrics.StoreOperations.WithLabelValues("memory", "set", "ok").Inc()
	return nil
}

// Incr increments key and refreshes its TTL. A missing or expired key starts at 0.
func (s *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if entry, ok := s.live(key); ok {
		n, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			metrics.StoreOperations.WithLabelValues("memory", "incr", "error").Inc()
			return 0, err
		}
		current = n
	}
	current++

	s.entries[key] = &memoryEntry{
		value:     strconv.FormatInt(current, 10),
		expiresAt: s.now().Add(ttl),
	}
	metrics.StoreOperations.WithLabelValues("memory", "incr", "ok").Inc()
	return current, nil
}

// Delete removes key
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	metrics.StoreOperations.WithLabelValues("memory", "delete", "ok").Inc()
	return nil
}

// Keys lists live keys with the given prefix in sorted order
func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := []string{}
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			if _, ok := s.live(key); ok {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	metrics.StoreOperations.WithLabelValues("memory", "keys", "ok").Inc()
	return keys, nil
}

// Len returns the number of stored entries, expired or not
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Cleanup removes expired entries
func (s *MemoryStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	expiredCount := 0

	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			expiredCount++
		}
	}

	s.logger.Debug("Cleaned up expired store entries", zap.Int("expired_count", expiredCount))
	return nil
}

// startCleanupTask starts a background task to clean up expired entries
func (s *MemoryStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Cleanup(context.Background()); err != nil {
				s.logger.Error("Failed to clean up store", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
