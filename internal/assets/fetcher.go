// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/launchpad/internal/assetstore"
	"github.com/ManuGH/launchpad/internal/log"
	"github.com/ManuGH/launchpad/internal/platform/httpx"
	platformnet "github.com/ManuGH/launchpad/internal/platform/net"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Fetcher creates an element for url and performs its load.
type Fetcher interface {
	Fetch(ctx context.Context, url string, kind Kind) (*Element, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string, kind Kind) (*Element, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string, kind Kind) (*Element, error) {
	return f(ctx, url, kind)
}

var (
	ErrMalformedURL = errors.New("malformed asset url")
	ErrStatus       = errors.New("unexpected asset response status")
	ErrEmpty        = errors.New("empty asset payload")
	ErrTooLarge     = errors.New("asset payload exceeds size limit")
	ErrMismatch     = errors.New("asset payload does not match expected kind")
)

// HTTPFetcherConfig bounds the HTTP fetch pipeline.
type HTTPFetcherConfig struct {
	MaxConcurrent int           // parallel requests (default 8)
	RatePerSecond float64       // request starts per second (0 = unlimited)
	Burst         int           // token bucket burst (default MaxConcurrent)
	MaxBytes      int64         // payload cap (default 64 MiB)
	Timeout       time.Duration // per-request timeout (default 30s)
	UserAgent     string
	// Guard, when set, vets every URL before it is requested.
	Guard *platformnet.Guard
}

func (c *HTTPFetcherConfig) withDefaults() HTTPFetcherConfig {
	out := *c
	if out.MaxConcurrent <= 0 {
		out.MaxConcurrent = 8
	}
	if out.Burst <= 0 {
		out.Burst = out.MaxConcurrent
	}
	if out.MaxBytes <= 0 {
		out.MaxBytes = 64 << 20
	}
	if out.Timeout <= 0 {
		out.Timeout = 30 * time.Second
	}
	return out
}

// HTTPFetcher GETs assets over HTTP with bounded concurrency and rate.
type HTTPFetcher struct {
	client   *http.Client
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	maxBytes int64
	guard    *platformnet.Guard
}

// NewHTTPFetcher builds a fetcher. A nil client gets a traced asset client.
func NewHTTPFetcher(cfg HTTPFetcherConfig, client *http.Client) *HTTPFetcher {
	cfg = cfg.withDefaults()
	if client == nil {
		opts := []httpx.Option{
			httpx.WithPool(cfg.MaxConcurrent*2, cfg.MaxConcurrent),
			httpx.WithTracing("assets"),
		}
		if cfg.UserAgent != "" {
			opts = append(opts, httpx.WithUserAgent(cfg.UserAgent))
		}
		client = httpx.NewClient(cfg.Timeout, opts...)
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &HTTPFetcher{
		client:   client,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		maxBytes: cfg.MaxBytes,
		guard:    cfg.Guard,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, kind Kind) (*Element, error) {
	u, err := platformnet.ParseHTTPURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}
	if f.guard != nil {
		if err := f.guard.Check(ctx, u); err != nil {
			return nil, err
		}
	}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.sem.Release(1)

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read asset body: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if int64(len(data)) > f.maxBytes {
		return nil, ErrTooLarge
	}

	contentType, err := resolveContentType(resp.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, err
	}
	return &Element{
		URL:         rawURL,
		Kind:        kind,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// resolveContentType prefers the declared type and rejects payloads that are
// documents rather than media (typically HTML error pages served with 200).
func resolveContentType(declared string, data []byte) (string, error) {
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "text/html") {
		return "", fmt.Errorf("%w: sniffed %s", ErrMismatch, sniffed)
	}
	if declared == "" {
		return sniffed, nil
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return sniffed, nil
	}
	if mediaType == "text/html" {
		return "", fmt.Errorf("%w: declared %s", ErrMismatch, mediaType)
	}
	return mediaType, nil
}

// StoreFetcher serves payloads from a durable store and writes network
// results through to it.
type StoreFetcher struct {
	next   Fetcher
	store  assetstore.Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewStoreFetcher wraps next. A nil store returns next unchanged.
func NewStoreFetcher(next Fetcher, store assetstore.Store) Fetcher {
	if store == nil {
		return next
	}
	return &StoreFetcher{
		next:   next,
		store:  store,
		logger: log.WithComponent("assets"),
		now:    time.Now,
	}
}

func (f *StoreFetcher) Fetch(ctx context.Context, url string, kind Kind) (*Element, error) {
	rec, err := f.store.Get(ctx, url)
	switch {
	case err == nil && len(rec.Data) > 0:
		return &Element{
			URL:         url,
			Kind:        kind,
			ContentType: rec.ContentType,
			Data:        rec.Data,
		}, nil
	case err != nil && !errors.Is(err, assetstore.ErrNotFound):
		f.logger.Warn().Err(err).
			Str(log.FieldEvent, "assets.store_get_failed").
			Str(log.FieldBackend, f.store.Name()).
			Str(log.FieldURL, url).
			Msg("asset store read failed, fetching from network")
	}

	el, err := f.next.Fetch(ctx, url, kind)
	if err != nil || el == nil {
		return el, err
	}

	putErr := f.store.Put(ctx, &assetstore.Record{
		URL:         url,
		Kind:        string(kind),
		ContentType: el.ContentType,
		Data:        el.Data,
		StoredAt:    f.now(),
	})
	if putErr != nil {
		f.logger.Warn().Err(putErr).
			Str(log.FieldEvent, "assets.store_put_failed").
			Str(log.FieldBackend, f.store.Name()).
			Str(log.FieldURL, url).
			Msg("asset store write failed")
	}
	return el, nil
}
