// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package assets deduplicates remote asset loads and tracks their state.
//
// A URL is in at most one of three places: the in-flight map (pending), the
// loaded map (element held) or the failed set. Only the cache's completion
// handler and RegisterExternal write that state; ClearFailed only removes.
package assets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/launchpad/internal/log"
	"github.com/ManuGH/launchpad/internal/metrics"
	"github.com/rs/zerolog"
)

var errNilElement = errors.New("fetcher returned no element")

// ProgressFunc receives (completed, total) after each settlement in a batch.
type ProgressFunc func(completed, total int)

// Stats is a point-in-time view of the cache.
type Stats struct {
	Loaded   int    `json:"loaded"`
	Failed   int    `json:"failed"`
	InFlight int    `json:"in_flight"`
	Hits     uint64 `json:"hits"`
	Fetches  uint64 `json:"fetches"`
}

// Cache is the asset registry. The zero value is not usable; use New.
type Cache struct {
	fetcher Fetcher
	logger  zerolog.Logger
	now     func() time.Time

	// lifetime context for every fetch; callers never cancel loads
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	loaded   map[string]*Element
	failed   map[string]struct{}
	inflight map[string]*Pending
	hits     uint64
	fetches  uint64

	closeOnce sync.Once
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Cache) { c.logger = l } }

// WithNow overrides the clock used to stamp elements.
func WithNow(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// New creates a cache that realises elements through fetcher.
func New(fetcher Fetcher, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		fetcher:  fetcher,
		logger:   log.WithComponent("assets"),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		loaded:   make(map[string]*Element),
		failed:   make(map[string]struct{}),
		inflight: make(map[string]*Pending),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsLoaded reports whether url has a stored element and is not failed.
func (c *Cache) IsLoaded(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.loaded[url]
	return ok
}

// IsFailed reports whether the last attempt for url failed and was not cleared.
func (c *Cache) IsFailed(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.failed[url]
	return ok
}

// GetElement returns the shared element for url. Clone before mutating.
func (c *Cache) GetElement(url string) (*Element, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.loaded[url]
	return el, ok
}

// RegisterExternal records the outcome of a load performed outside the cache.
// Any in-flight entry for url is dropped; that fetch still resolves its
// waiters but no longer writes state.
func (c *Cache) RegisterExternal(url string, el *Element, failed bool) {
	if !failed && el == nil {
		failed = true
	}

	c.mu.Lock()
	delete(c.inflight, url)
	if failed {
		delete(c.loaded, url)
		c.failed[url] = struct{}{}
	} else {
		el.normalize(url, KindForURL(url), c.now())
		c.loaded[url] = el
		delete(c.failed, url)
	}
	c.recordEntriesLocked()
	c.mu.Unlock()

	c.logger.Debug().
		Str(log.FieldEvent, "assets.register_external").
		Str(log.FieldURL, url).
		Bool("failed", failed).
		Msg("external load registered")
}

// Load requests url. It never starts a second fetch for a URL already in
// flight and never fetches a loaded URL. A failed URL stays failed (resolved
// handle, no fetch) until ClearFailed.
func (c *Cache) Load(url string) *Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(url, false)
}

func (c *Cache) loadLocked(url string, retry bool) *Pending {
	if _, ok := c.loaded[url]; ok {
		c.hits++
		return settled(url, false)
	}
	if p, ok := c.inflight[url]; ok {
		return p
	}
	if _, ok := c.failed[url]; ok {
		if !retry {
			return settled(url, true)
		}
		delete(c.failed, url)
	}
	if c.ctx.Err() != nil {
		return settled(url, true)
	}

	p := newPending(url)
	c.inflight[url] = p
	c.fetches++
	c.recordEntriesLocked()

	kind := KindForURL(url)
	metrics.IncAssetInflight()
	c.wg.Add(1)
	go c.fetch(p, kind)
	return p
}

func (c *Cache) fetch(p *Pending, kind Kind) {
	defer c.wg.Done()
	defer metrics.DecAssetInflight()

	start := c.now()
	el, err := c.safeFetch(p.url, kind)
	if err == nil && el == nil {
		err = errNilElement
	}
	if err == nil {
		el.normalize(p.url, kind, c.now())
	}

	c.mu.Lock()
	current := c.inflight[p.url] == p
	if current {
		delete(c.inflight, p.url)
		if err != nil {
			delete(c.loaded, p.url)
			c.failed[p.url] = struct{}{}
		} else {
			c.loaded[p.url] = el
			delete(c.failed, p.url)
		}
		c.recordEntriesLocked()
	}
	c.mu.Unlock()

	p.resolve(err != nil)

	if err != nil {
		metrics.IncAssetLoad(string(kind), "failed")
		c.logger.Debug().
			Err(err).
			Str(log.FieldEvent, "assets.load_failed").
			Str(log.FieldURL, p.url).
			Str(log.FieldKind, string(kind)).
			Bool("superseded", !current).
			Msg("asset load failed")
		return
	}
	metrics.IncAssetLoad(string(kind), "loaded")
	c.logger.Debug().
		Str(log.FieldEvent, "assets.loaded").
		Str(log.FieldURL, p.url).
		Str(log.FieldKind, string(kind)).
		Int("bytes", el.Size()).
		Int64(log.FieldLatencyMS, c.now().Sub(start).Milliseconds()).
		Bool("superseded", !current).
		Msg("asset loaded")
}

// safeFetch folds fetcher panics into a failed load.
func (c *Cache) safeFetch(url string, kind Kind) (el *Element, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetcher panic: %v", r)
		}
	}()
	return c.fetcher.Fetch(c.ctx, url, kind)
}

// LoadMany loads every URL in urls that is not already loaded and reports
// progress after each settlement. URLs in seen are skipped unless they are
// failed (always retried) or in flight (awaited). It returns nil once every
// issued load settled, or ctx.Err() if ctx ends first; the loads continue in
// the background either way. onProgress is only called from the calling
// goroutine and never after LoadMany returns.
func (c *Cache) LoadMany(ctx context.Context, urls []string, onProgress ProgressFunc, seen *Seen) error {
	pending := c.issue(urls, seen)
	total := len(pending)
	if total == 0 {
		return nil
	}

	settledCh := make(chan struct{}, total)
	for _, p := range pending {
		go func(p *Pending) {
			<-p.Done()
			settledCh <- struct{}{}
		}(p)
	}

	completed := 0
	for completed < total {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-settledCh:
			completed++
			if onProgress != nil {
				onProgress(completed, total)
			}
		}
	}
	return nil
}

// issue filters urls and starts (or joins) their loads under one lock.
func (c *Cache) issue(urls []string, seen *Seen) []*Pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	unique := make(map[string]struct{}, len(urls))
	out := make([]*Pending, 0, len(urls))
	issued := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, dup := unique[u]; dup {
			continue
		}
		unique[u] = struct{}{}

		if _, ok := c.loaded[u]; ok {
			continue
		}
		_, isFailed := c.failed[u]
		_, inFlight := c.inflight[u]
		if !isFailed && !inFlight && seen.Has(u) {
			continue
		}
		out = append(out, c.loadLocked(u, true))
		issued = append(issued, u)
	}
	seen.Add(issued...)
	return out
}

// ClearFailed forgets every failed URL so the next Load retries it.
func (c *Cache) ClearFailed() int {
	c.mu.Lock()
	n := len(c.failed)
	for u := range c.failed {
		delete(c.failed, u)
		delete(c.loaded, u)
		delete(c.inflight, u)
	}
	c.recordEntriesLocked()
	c.mu.Unlock()

	if n > 0 {
		metrics.AddAssetFailedCleared(n)
		c.logger.Info().
			Str(log.FieldEvent, "assets.failed_cleared").
			Int(log.FieldCount, n).
			Msg("cleared failed assets")
	}
	return n
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Loaded:   len(c.loaded),
		Failed:   len(c.failed),
		InFlight: len(c.inflight),
		Hits:     c.hits,
		Fetches:  c.fetches,
	}
}

// Close aborts in-flight fetches and waits for their handlers. Later loads
// resolve failed without fetching.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
}

func (c *Cache) recordEntriesLocked() {
	metrics.RecordAssetCacheEntries(len(c.loaded), len(c.failed), len(c.inflight))
}
