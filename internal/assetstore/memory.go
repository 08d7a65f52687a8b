// SPDX-License-Identifier: MIT

package assetstore

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/launchpad/internal/metrics"
)

// entry represents a stored record with expiration time.
type entry struct {
	rec        *Record
	expiration time.Time // zero = never
}

func (e *entry) isExpired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

// MemoryStore keeps records in process memory. It survives recoveries but not
// restarts; it is the default when no durable backend is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // insertion order for MaxSize eviction
	ttl     time.Duration
	maxSize int
	janitor *janitor
}

// NewMemoryStore creates a memory store. cleanupInterval <= 0 disables the janitor.
func NewMemoryStore(ttl time.Duration, maxSize int, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*entry),
		ttl:     ttl,
		maxSize: maxSize,
	}
	if cleanupInterval > 0 && ttl > 0 {
		s.janitor = &janitor{interval: cleanupInterval, stop: make(chan struct{})}
		go s.janitor.run(s)
	}
	return s
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Get(_ context.Context, url string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[url]
	if !ok || e.isExpired(time.Now()) {
		metrics.IncAssetStoreOp("memory", "get", "miss")
		return nil, ErrNotFound
	}
	metrics.IncAssetStoreOp("memory", "get", "hit")
	return e.rec, nil
}

func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exp time.Time
	if s.ttl > 0 {
		exp = time.Now().Add(s.ttl)
	}
	if _, exists := s.entries[rec.URL]; !exists {
		s.order = append(s.order, rec.URL)
	}
	s.entries[rec.URL] = &entry{rec: rec, expiration: exp}

	for s.maxSize > 0 && len(s.entries) > s.maxSize && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}
	metrics.IncAssetStoreOp("memory", "put", "ok")
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(url)
	return nil
}

func (s *MemoryStore) deleteLocked(url string) {
	if _, ok := s.entries[url]; !ok {
		return
	}
	delete(s.entries, url)
	for i, u := range s.order {
		if u == url {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of stored records, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// deleteExpired removes all expired entries and returns how many were removed.
func (s *MemoryStore) deleteExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for url, e := range s.entries {
		if e.isExpired(now) {
			s.deleteLocked(url)
			count++
		}
	}
	return count
}

// Close stops the background cleanup goroutine.
func (s *MemoryStore) Close() error {
	if s.janitor != nil {
		s.janitor.once.Do(func() { close(s.janitor.stop) })
	}
	return nil
}

// janitor performs periodic cleanup of expired entries.
type janitor struct {
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

func (j *janitor) run(s *MemoryStore) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.deleteExpired()
		case <-j.stop:
			return
		}
	}
}
