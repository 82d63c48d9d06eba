package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/core"
)

const createAuditTable = `
CREATE TABLE IF NOT EXISTS signup_audit (
	id TEXT PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	action TEXT NOT NULL,
	ip TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	details JSONB NOT NULL,
	advisory JSONB
);`

const createAuditIndex = `
CREATE INDEX IF NOT EXISTS idx_signup_audit_occurred_at ON signup_audit (occurred_at);`

// PostgresWriter stores audit entries in the signup_audit table
type PostgresWriter struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresWriter connects to Postgres and runs migrations
func NewPostgresWriter(connString string, logger *zap.Logger) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := pool.Exec(ctx, createAuditTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed (signup_audit): %w", err)
	}
	if _, err := pool.Exec(ctx, createAuditIndex); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed (signup_audit index): %w", err)
	}

	logger.Info("Audit entries will be stored in Postgres")
	return &PostgresWriter{pool: pool, logger: logger}, nil
}

// Write inserts one entry
func (w *PostgresWriter) Write(ctx context.Context, entry *core.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	var advisory []byte
	if entry.Advisory != nil {
		if advisory, err = json.Marshal(entry.Advisory); err != nil {
			return fmt.Errorf("failed to encode advisory: %w", err)
		}
	}

	_, err = w.pool.Exec(ctx, `
		INSERT INTO signup_audit (id, occurred_at, action, ip, success, details, advisory)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, entry.Timestamp, entry.Action, entry.ClientInfo.IP, entry.Success, details, advisory)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}
