// SPDX-License-Identifier: MIT

package assetstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/launchpad/internal/log"
	"github.com/ManuGH/launchpad/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
	TTL      time.Duration
}

// RedisStore shares records between shell instances through Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore connects and pings Redis.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger := log.WithComponent("assetstore")
	logger.Info().
		Str(log.FieldEvent, "assetstore.redis_connected").
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis asset store")

	return newRedisStoreWithClient(client, cfg.TTL, logger), nil
}

func newRedisStoreWithClient(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Get(ctx context.Context, url string) (*Record, error) {
	val, err := s.client.Get(ctx, key(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.IncAssetStoreOp("redis", "get", "miss")
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.IncAssetStoreOp("redis", "get", "error")
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		// A corrupt record is treated as a miss and dropped.
		s.logger.Warn().Err(err).Str(log.FieldURL, url).Msg("dropping undecodable asset record")
		_ = s.client.Del(ctx, key(url)).Err()
		metrics.IncAssetStoreOp("redis", "get", "error")
		return nil, ErrNotFound
	}
	metrics.IncAssetStoreOp("redis", "get", "hit")
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := s.client.Set(ctx, key(rec.URL), data, s.ttl).Err(); err != nil {
		metrics.IncAssetStoreOp("redis", "put", "error")
		return fmt.Errorf("redis set: %w", err)
	}
	metrics.IncAssetStoreOp("redis", "put", "ok")
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, url string) error {
	if err := s.client.Del(ctx, key(url)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
