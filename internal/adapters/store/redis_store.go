package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mikey/llm-harassment-filter/internal/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore is a Redis implementation of the KeyValueStore interface
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore creates a new Redis store and verifies connectivity
func NewRedisStore(addr string, password string, db int, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		logger: logger,
	}, nil
}

// Get retrieves a value by key
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", core.ErrKeyNotFound
		}
		return "", fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return value, nil
}

// Set stores a value under a key. A zero ttl means no expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	return nil
}

// Increment adds delta to an integer value, creating it at delta when absent
func (s *RedisStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	value, err := s.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment key %q: %w", key, err)
	}
	return value, nil
}

// Expire sets the expiry on an existing key
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to expire key %q: %w", key, err)
	}
	if !ok {
		return core.ErrKeyNotFound
	}
	return nil
}

// Delete removes a key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// Stop closes the Redis connection
func (s *RedisStore) Stop() {
	if err := s.client.Close(); err != nil {
		s.logger.Error("Failed to close Redis client", zap.Error(err))
	}
}
