// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package warmup holds the metadata wait and asset preload steps shared by
// startup and network recovery.
package warmup

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/launchpad/internal/assets"
	"github.com/ManuGH/launchpad/internal/log"
	"github.com/ManuGH/launchpad/internal/metrics"
	"github.com/ManuGH/launchpad/internal/state"
	"github.com/ManuGH/launchpad/internal/telemetry"
)

// CollectOptions tunes CollectURLs.
type CollectOptions struct {
	// LiveBackgrounds includes animated backgrounds. Off on platforms where
	// video backgrounds are not shown.
	LiveBackgrounds bool
}

// CollectURLs returns the de-duplicated set of asset URLs referenced by the
// catalogue and installed items, in first-seen order.
func CollectURLs(games []state.Game, installed []state.InstalledItem, opts CollectOptions) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, 3*(len(games)+len(installed)))
	add := func(urls ...string) {
		for _, u := range urls {
			if u == "" {
				continue
			}
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}

	for _, g := range games {
		add(g.Background)
		if opts.LiveBackgrounds {
			add(g.LiveBackground)
		}
		add(g.Icon)
	}
	for _, it := range installed {
		add(it.Background)
		if opts.LiveBackgrounds {
			add(it.LiveBackground)
		}
		add(it.Icon)
	}
	return out
}

// AwaitMetadata polls has every interval, at most attempts times. It always
// terminates and reports whether metadata arrived.
func AwaitMetadata(ctx context.Context, has func() bool, interval time.Duration, attempts int) bool {
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if has() {
			return true
		}
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
	return false
}

// Loader is the part of the asset cache Preload needs.
type Loader interface {
	LoadMany(ctx context.Context, urls []string, onProgress assets.ProgressFunc, seen *assets.Seen) error
}

// Result summarizes one preload batch.
type Result struct {
	Total    int
	TimedOut bool
}

// Preload loads urls through loader, giving up waiting after timeout. On
// timeout the batch keeps loading in the background but onProgress is never
// called again once Preload has returned. source labels logs and metrics
// ("startup" or "recovery"). A non-nil error means ctx ended. A timeout
// <= 0 waits for the whole batch.
func Preload(ctx context.Context, loader Loader, urls []string, timeout time.Duration, onProgress assets.ProgressFunc, seen *assets.Seen, source string) (Result, error) {
	ctx, span := telemetry.Tracer("warmup").Start(ctx, "warmup.preload")
	res := Result{Total: len(urls)}
	metrics.ObservePreloadBatch(source, len(urls))

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	err := loader.LoadMany(runCtx, urls, onProgress, seen)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		res.TimedOut = true
		err = nil
		metrics.IncPreloadTimeout(source)
		logger := log.WithComponentFromContext(ctx, "warmup")
		logger.Warn().
			Str(log.FieldEvent, "warmup.preload_timeout").
			Str("source", source).
			Int(log.FieldTotal, len(urls)).
			Dur("timeout", timeout).
			Msg("asset preload timed out, continuing in background")
	}

	span.SetAttributes(telemetry.PreloadAttributes(len(urls), res.TimedOut)...)
	telemetry.EndSpan(span, err)
	return res, err
}
