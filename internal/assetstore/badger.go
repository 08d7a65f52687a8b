// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assetstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/launchpad/internal/metrics"
	"github.com/dgraph-io/badger/v4"
)

// BadgerStore persists records on local disk under DataDir. Keys are
// "asset:<sha256(url)>" with the JSON-encoded Record as value.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenBadgerStore opens (or creates) a badger database at path.
func OpenBadgerStore(path string, ttl time.Duration) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store %s: %w", path, err)
	}
	return &BadgerStore{db: db, ttl: ttl}, nil
}

func (s *BadgerStore) Name() string { return "badger" }

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) Get(_ context.Context, url string) (*Record, error) {
	var out Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key(url)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			metrics.IncAssetStoreOp("badger", "get", "miss")
			return nil, ErrNotFound
		}
		metrics.IncAssetStoreOp("badger", "get", "error")
		return nil, fmt.Errorf("badger get: %w", err)
	}
	metrics.IncAssetStoreOp("badger", "get", "hit")
	return &out, nil
}

func (s *BadgerStore) Put(_ context.Context, rec *Record) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key(rec.URL)), buf)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		metrics.IncAssetStoreOp("badger", "put", "error")
		return fmt.Errorf("badger put: %w", err)
	}
	metrics.IncAssetStoreOp("badger", "put", "ok")
	return nil
}

func (s *BadgerStore) Delete(_ context.Context, url string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key(url)))
	})
}

// Ping performs a trivial read transaction.
func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}
