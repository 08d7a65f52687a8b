// SPDX-License-Identifier: MIT

// Package assetstore persists fetched asset payloads so a warm start (or an
// offline start) can realise elements without touching the network.
package assetstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when no record exists for a URL.
var ErrNotFound = errors.New("asset not found in store")

// Record is one persisted asset payload.
type Record struct {
	URL         string    `json:"url"`
	Kind        string    `json:"kind"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"data"`
	StoredAt    time.Time `json:"stored_at"`
}

// Store is a durable payload store keyed by asset URL.
type Store interface {
	// Get returns the record for url or ErrNotFound.
	Get(ctx context.Context, url string) (*Record, error)
	// Put stores rec, replacing any previous record for rec.URL.
	Put(ctx context.Context, rec *Record) error
	// Delete removes the record for url (missing records are not an error).
	Delete(ctx context.Context, url string) error
	// Ping checks the backend is usable.
	Ping(ctx context.Context) error
	// Name identifies the backend in logs and metrics.
	Name() string
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string        // memory|badger|redis|none
	Path    string        // badger directory
	TTL     time.Duration // 0 = keep forever
	MaxSize int           // memory: max entries (0 = unbounded)

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open creates a Store based on the backend configuration. Backend "none"
// returns (nil, nil): callers run without persistence.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "", "memory":
		return NewMemoryStore(cfg.TTL, cfg.MaxSize, time.Minute), nil
	case "badger":
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger store requires a path")
		}
		return OpenBadgerStore(cfg.Path, cfg.TTL)
	case "redis":
		return NewRedisStore(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		})
	default:
		return nil, fmt.Errorf("unknown asset store backend: %s", cfg.Backend)
	}
}

// key derives a bounded, backend-safe key from an asset URL.
func key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "asset:" + hex.EncodeToString(sum[:])
}
