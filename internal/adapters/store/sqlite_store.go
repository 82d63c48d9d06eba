package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name: "sqlite",
	createTable: []string{
		`CREATE TABLE IF NOT EXISTS kv_store (
			store_key TEXT PRIMARY KEY,
			store_value TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_kv_store_expires_at ON kv_store(expires_at)`,
	},
	upsert: `
		INSERT OR REPLACE INTO kv_store (store_key, store_value, expires_at)
		VALUES (?, ?, ?)
	`,
	selectForUpdate: `
		SELECT store_value, expires_at FROM kv_store
		WHERE store_key = ?
	`,
}

// NewSQLiteStore creates a new SQLite-backed store
func NewSQLiteStore(dbPath string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite allows one writer; a single connection serializes Incr transactions
	db.SetMaxOpenConns(1)

	return newSQLStore(context.Background(), db, sqliteDialect, logger, cleanupFreq)
}
