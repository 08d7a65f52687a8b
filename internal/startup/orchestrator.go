// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package startup sequences the cold start: connectivity, settings,
// repositories, metadata, asset preload, finalize and live event
// subscription. One Orchestrator runs once per session.
package startup

import (
	"context"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/ManuGH/launchpad/internal/assets"
	"github.com/ManuGH/launchpad/internal/events"
	"github.com/ManuGH/launchpad/internal/log"
	"github.com/ManuGH/launchpad/internal/metrics"
	"github.com/ManuGH/launchpad/internal/netcheck"
	"github.com/ManuGH/launchpad/internal/state"
	"github.com/ManuGH/launchpad/internal/telemetry"
	"github.com/ManuGH/launchpad/internal/warmup"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Backend performs the metadata fetches. Implementations write the results
// into host state themselves.
type Backend interface {
	FetchSettings(ctx context.Context) error
	FetchRepositories(ctx context.Context) error
	FetchCompatibilityData(ctx context.Context) error
	FetchInstalledRunners(ctx context.Context) error
	FetchPlatformToolStatus(ctx context.Context) error
	FetchJobSnapshot(ctx context.Context) error
}

// State is the host state the orchestrator reads and patches.
type State interface {
	Apply(p state.Patch) state.State
	Metadata() []state.Game
	Installed() []state.InstalledItem
	HasMetadata() bool
}

// Config holds timings and platform rules.
type Config struct {
	// Platform is the host OS (default runtime.GOOS).
	Platform string
	// CompatPlatform is the platform that needs compatibility data, runners
	// and tool status (default "linux").
	CompatPlatform string
	// SkipLiveBackgroundsOn lists platforms that do not preload live
	// backgrounds (default ["linux"]).
	SkipLiveBackgroundsOn []string

	MetadataPollInterval time.Duration
	MetadataPollAttempts int
	PreloadTimeout       time.Duration
	SubscribeDelay       time.Duration
	// RetryDelay is slept between connectivity checks after a "retry" decision.
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Platform == "" {
		c.Platform = runtime.GOOS
	}
	if c.CompatPlatform == "" {
		c.CompatPlatform = "linux"
	}
	if c.SkipLiveBackgroundsOn == nil {
		c.SkipLiveBackgroundsOn = []string{"linux"}
	}
	if c.MetadataPollInterval <= 0 {
		c.MetadataPollInterval = 100 * time.Millisecond
	}
	if c.MetadataPollAttempts <= 0 {
		c.MetadataPollAttempts = 50
	}
	if c.PreloadTimeout <= 0 {
		c.PreloadTimeout = 15 * time.Second
	}
	if c.SubscribeDelay < 0 {
		c.SubscribeDelay = 0
	}
	return c
}

// Deps are the orchestrator's collaborators. Checker, Backend, Assets and
// State are required. A nil Decider continues in limited mode.
type Deps struct {
	Checker    netcheck.Checker
	Backend    Backend
	Assets     warmup.Loader
	State      State
	Decider    Decider
	Events     events.Source
	Reducer    events.Reducer
	Seen       *assets.Seen
	OnComplete func()
}

// Orchestrator runs the startup sequence.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	runID  string
	logger zerolog.Logger
	tracer trace.Tracer

	mu        sync.Mutex
	phase     Phase
	progress  int
	limited   bool
	started   bool
	cancelled bool
	cancel    context.CancelFunc
	release   func()

	consumers sync.WaitGroup
	done      chan struct{}
}

// New creates an orchestrator. Run must be called at most once.
func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Reducer == nil {
		deps.Reducer = events.DefaultReducer{}
	}
	if deps.Decider == nil {
		deps.Decider, _ = NewDecider(PolicyLimited, nil)
	}
	runID := uuid.NewString()
	return &Orchestrator{
		cfg:   cfg.withDefaults(),
		deps:  deps,
		runID: runID,
		logger: log.Derive(func(c *zerolog.Context) {
			*c = c.Str(log.FieldComponent, "startup").Str(log.FieldRunID, runID)
		}),
		tracer: telemetry.Tracer("startup"),
		phase:  PhaseIdle,
		done:   make(chan struct{}),
	}
}

// RunID identifies this startup in logs and traces.
func (o *Orchestrator) RunID() string { return o.runID }

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// LimitedMode reports whether the user chose to continue offline.
func (o *Orchestrator) LimitedMode() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.limited
}

// Done is closed when Run returns.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Cancel stops the run at its next suspension point and releases the event
// subscription. The step in flight completes but its phase has no further
// side effects. Safe to call at any time and more than once.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	first := !o.cancelled
	o.cancelled = true
	o.phase = PhaseCancelled
	cancel := o.cancel
	if first {
		// under o.mu so a report that passed its check cannot land after this
		o.deps.State.Apply(state.Fields{Phase: state.Ptr(string(PhaseCancelled))})
	}
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.releaseSubscription()
	o.consumers.Wait()
}

// Run executes the sequence and blocks until the subscription is in place.
// It returns the context error when cancelled, nil otherwise.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return errAlreadyStarted
	}
	o.started = true
	ctx, cancel := context.WithCancel(log.ContextWithRunID(ctx, o.runID))
	o.cancel = cancel
	if o.cancelled {
		cancel()
	}
	o.mu.Unlock()
	defer close(o.done)

	o.logger.Info().Str(log.FieldEvent, "startup.begin").Str("platform", o.cfg.Platform).Msg("startup sequence started")
	start := time.Now()

	steps := []struct {
		phase Phase
		fn    func(context.Context) error
	}{
		{PhaseCheckingNetwork, o.checkNetwork},
		{PhaseLoadingSettings, o.loadSettings},
		{PhaseLoadingRepositories, o.loadRepositories},
		{PhaseAwaitingMetadata, o.awaitMetadata},
		{PhasePreloadingAssets, o.preloadAssets},
		{PhaseFinalizing, o.finalize},
		{PhaseSubscribed, o.subscribe},
	}
	for _, step := range steps {
		if err := o.runPhase(ctx, step.phase, step.fn); err != nil {
			o.logger.Info().
				Str(log.FieldEvent, "startup.cancelled").
				Str(log.FieldPhase, string(step.phase)).
				Msg("startup cancelled")
			return err
		}
	}

	o.logger.Info().
		Str(log.FieldEvent, "startup.complete").
		Bool("limited_mode", o.LimitedMode()).
		Dur("duration", time.Since(start)).
		Msg("startup sequence complete")
	return nil
}

func (o *Orchestrator) runPhase(ctx context.Context, phase Phase, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !o.enter(phase) {
		return context.Canceled
	}

	pctx, span := o.tracer.Start(ctx, "startup."+string(phase),
		trace.WithAttributes(telemetry.PhaseAttributes(o.runID, string(phase))...))
	started := time.Now()
	err := fn(pctx)
	if err == nil {
		err = ctx.Err()
	}
	metrics.ObserveStartupPhase(string(phase), time.Since(started))
	telemetry.EndSpan(span, err)

	o.logger.Debug().
		Str(log.FieldEvent, "startup.phase_done").
		Str(log.FieldPhase, string(phase)).
		Int64(log.FieldLatencyMS, time.Since(started).Milliseconds()).
		Msg("phase finished")
	return err
}

// enter switches phase and pushes the band's start progress. It refuses
// once cancelled.
func (o *Orchestrator) enter(phase Phase) bool {
	o.mu.Lock()
	if o.cancelled {
		o.mu.Unlock()
		return false
	}
	o.phase = phase
	b, banded := bands[phase]
	if !banded {
		o.deps.State.Apply(state.Fields{Phase: state.Ptr(string(phase))})
	}
	o.mu.Unlock()

	if banded {
		o.report(phase, b.start, b.message)
	}
	return true
}

// report pushes progress. The percentage never decreases and reports from a
// phase that is no longer current are dropped.
func (o *Orchestrator) report(phase Phase, percent int, message string) {
	o.mu.Lock()
	if o.phase != phase || o.cancelled {
		o.mu.Unlock()
		return
	}
	if percent < o.progress {
		percent = o.progress
	}
	o.progress = percent
	o.deps.State.Apply(state.Fields{
		Progress: state.Ptr(percent),
		Message:  state.Ptr(message),
		Phase:    state.Ptr(string(phase)),
	})
	o.mu.Unlock()

	o.logger.Debug().
		Str(log.FieldEvent, "startup.progress").
		Str(log.FieldPhase, string(phase)).
		Int(log.FieldProgress, percent).
		Msg(message)
}

func (o *Orchestrator) finish(phase Phase) {
	o.report(phase, bands[phase].end, bands[phase].message)
}

func (o *Orchestrator) checkNetwork(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		res := o.deps.Checker.Check(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		o.deps.State.Apply(state.Fields{Network: &state.NetworkState{
			Status:    string(res.Status),
			LatencyMs: res.LatencyMs,
			Message:   res.Message,
			CheckedAt: time.Now(),
		}})
		if res.Online() {
			o.finish(PhaseCheckingNetwork)
			return nil
		}

		o.logger.Warn().
			Str(log.FieldEvent, "startup.network_unavailable").
			Str(log.FieldStatus, string(res.Status)).
			Int("attempt", attempt).
			Str("message", res.Message).
			Msg("network not online, asking for decision")

		limited, err := o.deps.Decider.Decide(ctx, res)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			o.logger.Warn().Err(err).Str(log.FieldEvent, "startup.decision_failed").Msg("decision failed, retrying")
			limited = false
		}
		if limited {
			o.setLimited(ctx)
			o.finish(PhaseCheckingNetwork)
			return nil
		}

		if o.cfg.RetryDelay > 0 {
			timer := time.NewTimer(o.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

func (o *Orchestrator) setLimited(ctx context.Context) {
	o.mu.Lock()
	o.limited = true
	o.mu.Unlock()
	o.deps.State.Apply(state.Fields{LimitedMode: state.Ptr(true)})
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool(telemetry.LimitedModeKey, true))
	metrics.SetLimitedMode(true)
	o.logger.Warn().Str(log.FieldEvent, "startup.limited_mode").Msg("continuing in limited mode")
}

func (o *Orchestrator) loadSettings(ctx context.Context) error {
	if err := o.deps.Backend.FetchSettings(ctx); err != nil {
		o.logFetchError("settings", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	o.finish(PhaseLoadingSettings)
	return nil
}

func (o *Orchestrator) loadRepositories(ctx context.Context) error {
	if err := o.deps.Backend.FetchRepositories(ctx); err != nil {
		o.logFetchError("repositories", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.cfg.Platform == o.cfg.CompatPlatform {
		extra := []struct {
			op string
			fn func(context.Context) error
		}{
			{"compat", o.deps.Backend.FetchCompatibilityData},
			{"runners", o.deps.Backend.FetchInstalledRunners},
			{"tools", o.deps.Backend.FetchPlatformToolStatus},
		}
		for _, e := range extra {
			if err := e.fn(ctx); err != nil {
				o.logFetchError(e.op, err)
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	o.finish(PhaseLoadingRepositories)
	return nil
}

func (o *Orchestrator) awaitMetadata(ctx context.Context) error {
	if !warmup.AwaitMetadata(ctx, o.deps.State.HasMetadata, o.cfg.MetadataPollInterval, o.cfg.MetadataPollAttempts) {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.logger.Warn().
			Str(log.FieldEvent, "startup.metadata_missing").
			Int("attempts", o.cfg.MetadataPollAttempts).
			Msg("metadata not available, continuing")
	}
	o.finish(PhaseAwaitingMetadata)
	return nil
}

func (o *Orchestrator) preloadAssets(ctx context.Context) error {
	live := !slices.Contains(o.cfg.SkipLiveBackgroundsOn, o.cfg.Platform)
	urls := warmup.CollectURLs(o.deps.State.Metadata(), o.deps.State.Installed(), warmup.CollectOptions{LiveBackgrounds: live})

	o.logger.Info().
		Str(log.FieldEvent, "startup.preload").
		Int(log.FieldTotal, len(urls)).
		Bool("live_backgrounds", live).
		Msg("preloading assets")

	_, err := warmup.Preload(ctx, o.deps.Assets, urls, o.cfg.PreloadTimeout, func(done, total int) {
		o.report(PhasePreloadingAssets, preloadPercent(done, total), bands[PhasePreloadingAssets].message)
	}, o.deps.Seen, "startup")
	return err
}

func (o *Orchestrator) finalize(context.Context) error {
	o.finish(PhaseFinalizing)
	o.deps.State.Apply(state.Fields{Finalized: state.Ptr(true)})
	if o.deps.OnComplete != nil {
		o.deps.OnComplete()
	}
	return nil
}

func (o *Orchestrator) subscribe(ctx context.Context) error {
	if o.cfg.SubscribeDelay > 0 {
		timer := time.NewTimer(o.cfg.SubscribeDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if o.deps.Events != nil {
		o.startConsumer(ctx)
	}

	if err := o.deps.Backend.FetchJobSnapshot(ctx); err != nil {
		o.logFetchError("jobs", err)
	}
	return ctx.Err()
}

func (o *Orchestrator) startConsumer(ctx context.Context) {
	ch, release, err := o.deps.Events.Subscribe(ctx, events.AllTypes)
	if err != nil {
		o.logger.Warn().Err(err).
			Str(log.FieldEvent, "startup.subscribe_failed").
			Msg("live updates unavailable")
		return
	}

	o.mu.Lock()
	if o.cancelled {
		o.mu.Unlock()
		release()
		return
	}
	o.release = release
	o.consumers.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.consumers.Done()
		defer o.releaseSubscription()
		events.Consume(ctx, ch, o.deps.Reducer, func(p state.Patch) { o.deps.State.Apply(p) })
	}()

	o.logger.Info().
		Str(log.FieldEvent, "startup.subscribed").
		Int(log.FieldCount, len(events.AllTypes)).
		Msg("subscribed to live updates")
}

func (o *Orchestrator) releaseSubscription() {
	o.mu.Lock()
	release := o.release
	o.release = nil
	o.mu.Unlock()
	if release != nil {
		release()
	}
}

func (o *Orchestrator) logFetchError(op string, err error) {
	o.logger.Warn().Err(err).
		Str(log.FieldEvent, "startup.fetch_failed").
		Str("op", op).
		Msg("backend fetch failed, continuing")
}
