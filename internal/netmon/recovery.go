// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package netmon

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ManuGH/launchpad/internal/log"
	"github.com/ManuGH/launchpad/internal/metrics"
	"github.com/ManuGH/launchpad/internal/state"
	"github.com/ManuGH/launchpad/internal/telemetry"
	"github.com/ManuGH/launchpad/internal/warmup"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecoveryPhase aliases the state type so callers need not import state.
type RecoveryPhase = state.RecoveryPhase

var errStillOffline = errors.New("network still unavailable")

// TriggerRecovery runs the recovery routine unless one is already running,
// in which case it returns false immediately without any fetch. It never
// returns an error: failures are logged, reported through the recovery state
// and yield false.
func (m *Monitor) TriggerRecovery(ctx context.Context) bool {
	return m.recover(ctx, "manual")
}

// StartRecovery begins a recovery in the background and reports whether it
// started. It returns false when one is already running. The run is detached
// from ctx cancellation; Wait blocks until it finishes.
func (m *Monitor) StartRecovery(ctx context.Context) bool {
	if !m.acquire("manual") {
		return false
	}
	m.autoWG.Add(1)
	go func() {
		defer m.autoWG.Done()
		m.runLocked(context.WithoutCancel(ctx), "manual")
	}()
	return true
}

func (m *Monitor) recover(ctx context.Context, trigger string) bool {
	if !m.acquire(trigger) {
		return false
	}
	return m.runLocked(ctx, trigger)
}

// acquire takes the single-flight lock and marks the monitor recovering.
func (m *Monitor) acquire(trigger string) bool {
	if !m.recoverMu.TryLock() {
		metrics.RecordRecoveryRun(trigger, "busy", 0)
		m.logger.Debug().
			Str(log.FieldEvent, "netmon.recovery_busy").
			Str(log.FieldTrigger, trigger).
			Msg("recovery already running")
		return false
	}
	m.mu.Lock()
	m.recovering = true
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
	m.mu.Unlock()
	return true
}

// runLocked runs one recovery while holding the lock taken by acquire.
func (m *Monitor) runLocked(ctx context.Context, trigger string) (ok bool) {
	defer m.recoverMu.Unlock()
	defer func() {
		m.mu.Lock()
		m.recovering = false
		m.mu.Unlock()
	}()

	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "netmon.recovery",
		trace.WithAttributes(attribute.String(telemetry.TriggerKey, trigger)))
	logger := m.logger.With().Str(log.FieldTrigger, trigger).Logger()
	logger.Info().Str(log.FieldEvent, "netmon.recovery_start").Msg("recovery started")

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovery panic: %v", r)
		}
		outcome := "success"
		switch {
		case errors.Is(err, errStillOffline):
			outcome = "offline"
		case err != nil:
			outcome = "failed"
		}
		if err != nil {
			ok = false
			m.push(state.RecoveryState{Phase: state.RecoveryIdle, Message: failureMessage(err)})
			logger.Warn().Err(err).
				Str(log.FieldEvent, "netmon.recovery_failed").
				Msg("recovery failed")
		}
		metrics.RecordRecoveryRun(trigger, outcome, time.Since(start))
		telemetry.EndSpan(span, err)
	}()

	err = m.runRecovery(ctx)
	if err != nil {
		return false
	}

	logger.Info().
		Str(log.FieldEvent, "netmon.recovery_complete").
		Dur("duration", time.Since(start)).
		Msg("recovery complete")
	return true
}

func failureMessage(err error) string {
	if errors.Is(err, errStillOffline) {
		return "Still offline: " + strings.TrimPrefix(err.Error(), errStillOffline.Error()+": ")
	}
	return "Recovery failed: " + err.Error()
}

func (m *Monitor) runRecovery(ctx context.Context) error {
	m.push(state.RecoveryState{Phase: state.RecoveryChecking, Message: "Checking connection..."})
	res := m.check(ctx)
	trace.SpanFromContext(ctx).SetAttributes(telemetry.NetworkAttributes(string(res.Status), res.Latency())...)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !res.Online() {
		return fmt.Errorf("%w: %s", errStillOffline, orDefault(res.Message, string(res.Status)))
	}
	m.markOnline(res)

	if n := m.deps.Assets.ClearFailed(); n > 0 {
		m.logger.Debug().Str(log.FieldEvent, "netmon.failed_cleared").Int(log.FieldCount, n).Msg("retrying failed assets")
	}

	m.push(state.RecoveryState{Phase: state.RecoveryLoadingRepos, Message: "Reloading repositories..."})
	if err := m.deps.Backend.FetchRepositories(ctx); err != nil {
		return fmt.Errorf("fetch repositories: %w", err)
	}
	if m.cfg.Platform == m.cfg.CompatPlatform {
		if err := m.deps.Backend.FetchCompatibilityData(ctx); err != nil {
			return fmt.Errorf("fetch compatibility data: %w", err)
		}
		if err := m.deps.Backend.FetchInstalledRunners(ctx); err != nil {
			return fmt.Errorf("fetch runners: %w", err)
		}
		if err := m.deps.Backend.FetchPlatformToolStatus(ctx); err != nil {
			return fmt.Errorf("fetch tool status: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	warmup.AwaitMetadata(ctx, m.deps.State.HasMetadata, m.cfg.MetadataPollInterval, m.cfg.MetadataPollAttempts)
	if err := ctx.Err(); err != nil {
		return err
	}

	live := !slices.Contains(m.cfg.SkipLiveBackgroundsOn, m.cfg.Platform)
	all := warmup.CollectURLs(m.deps.State.Metadata(), m.deps.State.Installed(), warmup.CollectOptions{LiveBackgrounds: live})
	missing := make([]string, 0, len(all))
	for _, u := range all {
		if !m.deps.Assets.IsLoaded(u) {
			missing = append(missing, u)
		}
	}

	m.push(state.RecoveryState{Phase: state.RecoveryLoadingImages, Total: len(missing), Message: "Reloading images..."})
	_, err := warmup.Preload(ctx, m.deps.Assets, missing, m.cfg.PreloadTimeout, func(done, total int) {
		m.push(state.RecoveryState{Phase: state.RecoveryLoadingImages, Current: done, Total: total, Message: "Reloading images..."})
	}, nil, "recovery")
	if err != nil {
		return err
	}

	m.push(state.RecoveryState{Phase: state.RecoveryComplete, Current: len(missing), Total: len(missing), Message: "Reconnected"})
	m.deps.State.Apply(state.Fields{LimitedMode: state.Ptr(false)})
	metrics.SetLimitedMode(false)
	if m.deps.OnRecovered != nil {
		m.deps.OnRecovered()
	}
	m.scheduleIdle()
	return nil
}

// scheduleIdle returns the visible state to idle after CompleteDisplay
// unless another recovery started meanwhile.
func (m *Monitor) scheduleIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var t *time.Timer
	t = time.AfterFunc(m.cfg.CompleteDisplay, func() {
		m.mu.Lock()
		if m.resetTimer != t || m.recovery.Phase != state.RecoveryComplete {
			m.mu.Unlock()
			return
		}
		m.resetTimer = nil
		m.mu.Unlock()
		m.push(state.RecoveryState{Phase: state.RecoveryIdle})
	})
	m.resetTimer = t
}

func (m *Monitor) push(rs state.RecoveryState) {
	m.mu.Lock()
	m.recovery = rs
	m.mu.Unlock()
	m.deps.State.Apply(state.Fields{Recovery: &rs})
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
