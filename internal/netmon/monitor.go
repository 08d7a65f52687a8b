// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package netmon polls connectivity for the whole session, declares outages
// only after consecutive failures, and runs the recovery routine when the
// network comes back.
package netmon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/launchpad/internal/log"
	"github.com/ManuGH/launchpad/internal/metrics"
	"github.com/ManuGH/launchpad/internal/netcheck"
	"github.com/ManuGH/launchpad/internal/resilience"
	"github.com/ManuGH/launchpad/internal/state"
	"github.com/ManuGH/launchpad/internal/telemetry"
	"github.com/ManuGH/launchpad/internal/warmup"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Backend is the subset of backend fetches recovery re-runs.
type Backend interface {
	FetchRepositories(ctx context.Context) error
	FetchCompatibilityData(ctx context.Context) error
	FetchInstalledRunners(ctx context.Context) error
	FetchPlatformToolStatus(ctx context.Context) error
}

// Assets is the part of the asset cache recovery uses.
type Assets interface {
	warmup.Loader
	IsLoaded(url string) bool
	ClearFailed() int
}

// State is the host state the monitor reads and patches.
type State interface {
	Apply(p state.Patch) state.State
	Metadata() []state.Game
	Installed() []state.InstalledItem
	HasMetadata() bool
}

// Config holds poll timing and the recovery parameters.
type Config struct {
	Interval         time.Duration
	FailureThreshold int

	Platform              string
	CompatPlatform        string
	SkipLiveBackgroundsOn []string

	MetadataPollInterval time.Duration
	MetadataPollAttempts int
	PreloadTimeout       time.Duration
	// CompleteDisplay is how long the "complete" recovery state stays
	// visible before returning to idle.
	CompleteDisplay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.FailureThreshold < 1 {
		c.FailureThreshold = resilience.DefaultThreshold
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
	if c.CompleteDisplay <= 0 {
		c.CompleteDisplay = 2 * time.Second
	}
	return c
}

// Deps are the monitor's collaborators. The callbacks are optional.
type Deps struct {
	Checker netcheck.Checker
	Backend Backend
	Assets  Assets
	State   State

	// OnConnectivityLost fires once per declared outage.
	OnConnectivityLost func(netcheck.Result)
	// OnStatusChange fires whenever the post-hysteresis status changes.
	OnStatusChange func(netcheck.Result)
	// OnRecovered fires after a successful recovery.
	OnRecovered func()
}

// Monitor owns the poll loop and the recovery routine.
type Monitor struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	tracer trace.Tracer
	hyst   *resilience.Hysteresis

	// recoverMu makes recovery single-flight via TryLock.
	recoverMu sync.Mutex

	mu         sync.Mutex
	status     netcheck.Result
	last       netcheck.Result
	recovery   state.RecoveryState
	recovering bool
	resetTimer *time.Timer

	lifeMu   sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}
	interval chan time.Duration

	autoWG sync.WaitGroup
}

// New creates a stopped monitor.
func New(cfg Config, deps Deps) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:      cfg,
		deps:     deps,
		logger:   log.WithComponent("netmon"),
		tracer:   telemetry.Tracer("netmon"),
		hyst:     resilience.NewHysteresis("netmon", cfg.FailureThreshold),
		status:   netcheck.Result{Status: netcheck.StatusOnline},
		recovery: state.RecoveryState{Phase: state.RecoveryIdle},
		interval: make(chan time.Duration, 1),
	}
}

// Start probes once immediately and then every Interval until Stop or ctx
// is done. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.loopDone = make(chan struct{})

	go m.loop(ctx, m.loopDone)

	m.logger.Info().
		Str(log.FieldEvent, "netmon.start").
		Dur("interval", m.cfg.Interval).
		Int("threshold", m.cfg.FailureThreshold).
		Msg("network monitor started")
}

// Stop ends polling and waits for the loop to exit. A recovery in flight
// is not interrupted.
func (m *Monitor) Stop() {
	m.lifeMu.Lock()
	cancel, done := m.cancel, m.loopDone
	m.cancel, m.loopDone = nil, nil
	m.lifeMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Info().Str(log.FieldEvent, "netmon.stop").Msg("network monitor stopped")
}

// Wait blocks until automatically triggered recoveries have finished.
func (m *Monitor) Wait() { m.autoWG.Wait() }

// SetInterval changes the poll interval of a running or future loop.
func (m *Monitor) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-m.interval:
	default:
	}
	m.interval <- d
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.poll(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-m.interval:
			ticker.Reset(d)
			m.logger.Info().Str(log.FieldEvent, "netmon.interval_changed").Dur("interval", d).Msg("poll interval changed")
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// poll runs one probe through the hysteresis.
func (m *Monitor) poll(ctx context.Context) {
	res := m.check(ctx)
	if ctx.Err() != nil {
		return
	}

	if res.Online() {
		if m.markOnline(res) {
			m.logger.Info().
				Str(log.FieldEvent, "netmon.restored").
				Int64(log.FieldLatencyMS, res.Latency()).
				Msg("connectivity restored, starting recovery")
			m.autoWG.Add(1)
			go func() {
				defer m.autoWG.Done()
				m.recover(context.WithoutCancel(ctx), "auto")
			}()
		}
		return
	}

	tripped := m.hyst.RecordFailure()
	failures := m.hyst.Failures()

	m.mu.Lock()
	m.last = res
	outage := m.hyst.State() == resilience.StateTripped
	changed := false
	if outage && m.status.Status != res.Status {
		m.status = res
		changed = true
	}
	published := m.status
	m.mu.Unlock()

	m.applyNetwork(published, res, outage)

	m.logger.Debug().
		Str(log.FieldEvent, "netmon.probe_failed").
		Str(log.FieldStatus, string(res.Status)).
		Int(log.FieldFailures, failures).
		Str("message", res.Message).
		Msg("connectivity probe failed")

	if tripped {
		metrics.IncNetworkOutage()
		m.logger.Warn().
			Str(log.FieldEvent, "netmon.outage").
			Str(log.FieldStatus, string(res.Status)).
			Int(log.FieldFailures, failures).
			Msg("connectivity lost")
		if m.deps.OnConnectivityLost != nil {
			m.deps.OnConnectivityLost(res)
		}
	}
	if changed && m.deps.OnStatusChange != nil {
		m.deps.OnStatusChange(published)
	}
}

// markOnline resets the hysteresis on an online result and reports whether
// an outage had been declared.
func (m *Monitor) markOnline(res netcheck.Result) bool {
	restored := m.hyst.RecordSuccess()

	m.mu.Lock()
	m.last = res
	changed := m.status.Status != netcheck.StatusOnline
	m.status = res
	m.mu.Unlock()

	m.applyNetwork(res, res, false)
	if changed && m.deps.OnStatusChange != nil {
		m.deps.OnStatusChange(res)
	}
	return restored
}

func (m *Monitor) applyNetwork(published, raw netcheck.Result, outage bool) {
	m.deps.State.Apply(state.Fields{Network: &state.NetworkState{
		Status:    string(published.Status),
		LatencyMs: raw.LatencyMs,
		Message:   raw.Message,
		Outage:    outage,
		CheckedAt: time.Now(),
	}})
}

// check calls the checker, folding a panic into an offline result.
func (m *Monitor) check(ctx context.Context) (res netcheck.Result) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().
				Str(log.FieldEvent, "netmon.probe_panic").
				Interface("panic", r).
				Msg("connectivity probe panicked")
			res = netcheck.Offline(fmt.Sprintf("probe panic: %v", r))
		}
	}()
	return m.deps.Checker.Check(ctx)
}

// Status returns the post-hysteresis connectivity view.
func (m *Monitor) Status() netcheck.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastProbe returns the raw result of the most recent probe.
func (m *Monitor) LastProbe() netcheck.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// ConsecutiveFailures returns the current failure streak.
func (m *Monitor) ConsecutiveFailures() int { return m.hyst.Failures() }

// Outage reports whether an outage is currently declared.
func (m *Monitor) Outage() bool { return m.hyst.State() == resilience.StateTripped }

// Recovery returns the current recovery state.
func (m *Monitor) Recovery() state.RecoveryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recovery
}

// Recovering reports whether a recovery is running.
func (m *Monitor) Recovering() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recovering
}
