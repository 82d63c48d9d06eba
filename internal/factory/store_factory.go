package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/adapters/store"
	"github.com/mikey/signup-guard/internal/config"
	"github.com/mikey/signup-guard/internal/core"
)

// StoreFactory creates the shared key-value store based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates the configured store. Remote backends are wrapped in a
// circuit breaker and, when enabled, an in-memory fallback.
func (f *StoreFactory) CreateStore() (core.KeyValueStore, error) {
	storeCfg, err := f.cfg.GetStore()
	if err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}

	var primary core.KeyValueStore
	switch storeCfg.Type {
	case "memory":
		f.logger.Info("Using in-memory store; reputation is not shared between instances")
		return store.NewMemoryStore(f.logger, storeCfg.CleanupFrequency), nil
	case "redis":
		primary, err = store.NewRedisStore(store.RedisOptions{
			Addr:        storeCfg.Redis.Addr,
			Password:    storeCfg.Redis.Password,
			DB:          storeCfg.Redis.DB,
			DialTimeout: storeCfg.Timeout,
		}, f.logger)
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(storeCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		primary, err = store.NewSQLiteStore(storeCfg.SQLitePath, f.logger, storeCfg.CleanupFrequency)
	case "mysql":
		primary, err = store.NewMySQLStore(storeCfg.MySQLDSN, f.logger, storeCfg.CleanupFrequency)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
	if err != nil {
		return nil, err
	}

	guarded := store.NewBreakerStore(primary, store.BreakerSettings{
		Name:             storeCfg.Type,
		FailureThreshold: storeCfg.BreakerFailureThreshold,
		OpenTimeout:      storeCfg.BreakerOpenTimeout,
	}, f.logger)

	if !storeCfg.FallbackEnabled {
		return guarded, nil
	}
	f.logger.Info("In-memory fallback enabled for store", zap.String("type", storeCfg.Type))
	return store.NewFallbackStore(guarded, store.NewMemoryStore(f.logger, storeCfg.CleanupFrequency), f.logger), nil
}

