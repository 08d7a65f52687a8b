// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assets

import (
	"context"
	"sync"
)

var (
	defaultMu    sync.Mutex
	defaultCache *Cache
)

// Default returns the process-wide cache, creating an HTTP-backed one on
// first use.
func Default() *Cache {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCache == nil {
		defaultCache = New(NewHTTPFetcher(HTTPFetcherConfig{}, nil))
	}
	return defaultCache
}

// SetDefault installs c as the process-wide cache and returns the previous one.
func SetDefault(c *Cache) *Cache {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultCache
	defaultCache = c
	return prev
}

func Load(url string) *Pending { return Default().Load(url) }

func LoadMany(ctx context.Context, urls []string, onProgress ProgressFunc, seen *Seen) error {
	return Default().LoadMany(ctx, urls, onProgress, seen)
}

func IsLoaded(url string) bool { return Default().IsLoaded(url) }

func IsFailed(url string) bool { return Default().IsFailed(url) }

func GetElement(url string) (*Element, bool) { return Default().GetElement(url) }

func RegisterExternal(url string, el *Element, failed bool) {
	Default().RegisterExternal(url, el, failed)
}

func ClearFailed() int { return Default().ClearFailed() }
