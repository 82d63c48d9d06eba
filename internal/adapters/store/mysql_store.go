package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name: "mysql",
	createTable: []string{
		`CREATE TABLE IF NOT EXISTS kv_store (
			store_key VARCHAR(255) PRIMARY KEY,
			store_value TEXT NOT NULL,
			expires_at BIGINT NOT NULL,
			INDEX idx_kv_store_expires_at (expires_at)
		)`,
	},
	upsert: `
		INSERT INTO kv_store (store_key, store_value, expires_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE store_value = VALUES(store_value), expires_at = VALUES(expires_at)
	`,
	selectForUpdate: `
		SELECT store_value, expires_at FROM kv_store
		WHERE store_key = ?
		FOR UPDATE
	`,
}

// NewMySQLStore creates a new MySQL-backed store
func NewMySQLStore(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	return newSQLStore(ctx, db, mysqlDialect, logger, cleanupFreq)
}
