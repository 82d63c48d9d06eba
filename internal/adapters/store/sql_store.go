package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/metrics"
)

// dialect holds the statements that differ between SQL backends
type dialect struct {
	name            string
	createTable     []string
	upsert          string
	selectForUpdate string
}

// SQLStore is a database/sql implementation of the KeyValueStore interface.
// Expiry is stored as unix nanoseconds so both backends compare plain integers.
type SQLStore struct {
	db          *sql.DB
	dialect     dialect
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, logger *zap.Logger, cleanupFreq time.Duration) (*SQLStore, error) {
	for _, stmt := range d.createTable {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}

	s := &SQLStore{
		db:          db,
		dialect:     d,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}

	if cleanupFreq > 0 {
		go s.startCleanupTask()
	}

	return s, nil
}

// SetClock replaces the time source, for tests
func (s *SQLStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SQLStore) record(op, result string) {
	metrics.StoreOperations.WithLabelValues(s.dialect.name, op, result).Inc()
}

// Get retrieves the value of key
func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT store_value FROM kv_store
		WHERE store_key = ? AND expires_at > ?
	`, key, s.now().UnixNano()).Scan(&value)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.record("get", "miss")
			return "", core.ErrNotFound
		}
		s.record("get", "error")
		return "", fmt.Errorf("failed to query store: %w", err)
	}

	s.record("get", "ok")
	return value, nil
}

// Set stores value under key
func (s *SQLStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, s.dialect.upsert, key, value, s.now().Add(ttl).UnixNano())
	if err != nil {
		s.record("set", "error")
		return fmt.Errorf("failed to write store entry: %w", err)
	}
	s.record("set", "ok")
	return nil
}

// Incr increments key inside a transaction and refreshes its expiry
func (s *SQLStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.record("incr", "error")
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	var value string
	var expiresAt int64
	var current int64

	err = tx.QueryRowContext(ctx, s.dialect.selectForUpdate, key).Scan(&value, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		s.record("incr", "error")
		return 0, fmt.Errorf("failed to read counter: %w", err)
	case expiresAt > now.UnixNano():
		current, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			s.record("incr", "error")
			return 0, fmt.Errorf("counter %s is not an integer: %w", key, err)
		}
	}
	current++

	if _, err := tx.ExecContext(ctx, s.dialect.upsert, key, strconv.FormatInt(current, 10), now.Add(ttl).UnixNano()); err != nil {
		s.record("incr", "error")
		return 0, fmt.Errorf("failed to write counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.record("incr", "error")
		return 0, fmt.Errorf("failed to commit counter: %w", err)
	}

	s.record("incr", "ok")
	return current, nil
}

// Delete removes key
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM kv_store
		WHERE store_key = ?
	`, key)

	if err != nil {
		s.record("delete", "error")
		return fmt.Errorf("failed to delete store entry: %w", err)
	}

	s.record("delete", "ok")
	return nil
}

// Keys lists live keys with the given prefix in sorted order
func (s *SQLStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT store_key FROM kv_store
		WHERE store_key LIKE ? ESCAPE '!' AND expires_at > ?
		ORDER BY store_key
	`, escapeLike(prefix)+"%", s.now().UnixNano())
	if err != nil {
		s.record("keys", "error")
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			s.record("keys", "error")
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		s.record("keys", "error")
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	s.record("keys", "ok")
	return keys, nil
}

// Cleanup removes expired entries
func (s *SQLStore) Cleanup(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM kv_store
		WHERE expires_at <= ?
	`, s.now().UnixNano())

	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		s.logger.Debug("Cleaned up expired store entries",
			zap.String("backend", s.dialect.name),
			zap.Int64("expired_count", rowsAffected))
	}

	return nil
}

// startCleanupTask starts a background task to clean up expired entries
func (s *SQLStore) startCleanupTask() {
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

// Stop stops the background cleanup task and closes the database connection
func (s *SQLStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.String("backend", s.dialect.name), zap.Error(err))
		}
	})
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
