package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/metrics"
)

const scanBatchSize = 100

// RedisStore is a Redis implementation of the KeyValueStore interface.
// Expiry is handled by Redis itself, so there is no cleanup task.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// RedisOptions configures the Redis connection
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// NewRedisStore connects to Redis and pings it to ensure it's alive
func NewRedisStore(opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: dialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return NewRedisStoreFromClient(client, logger), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

// Get retrieves the value of key
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		metrics.StoreOperations.WithLabelValues("redis", "get", "miss").Inc()
		return "", core.ErrNotFound
	}
	if err != nil {
		metrics.StoreOperations.WithLabelValues("redis", "get", "error").Inc()
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	metrics.StoreOperations.WithLabelValues("redis", "get", "ok").Inc()
	return value, nil
}

// Set stores value under key with SET EX
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		metrics.StoreOperations.WithLabelValues("redis", "set", "error").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	metrics.StoreOperations.WithLabelValues("redis", "set", "ok").Inc()
	return nil
}

// Incr runs INCR and EXPIRE in one transaction
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		metrics.StoreOperations.WithLabelValues("redis", "incr", "error").Inc()
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	metrics.StoreOperations.WithLabelValues("redis", "incr", "ok").Inc()
	return incr.Val(), nil
}

// Delete removes key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		metrics.StoreOperations.WithLabelValues("redis", "delete", "error").Inc()
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	metrics.StoreOperations.WithLabelValues("redis", "delete", "ok").Inc()
	return nil
}

// Keys walks the keyspace with SCAN rather than KEYS so large databases are
// not blocked
func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	iter := s.client.Scan(ctx, 0, prefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		metrics.StoreOperations.WithLabelValues("redis", "keys", "error").Inc()
		return nil, fmt.Errorf("redis scan %s*: %w", prefix, err)
	}
	sort.Strings(keys)
	metrics.StoreOperations.WithLabelValues("redis", "keys", "ok").Inc()
	return keys, nil
}

// Stop closes the Redis client
func (s *RedisStore) Stop() {
	if err := s.client.Close(); err != nil {
		s.logger.Error("Failed to close Redis client", zap.Error(err))
	}
}
