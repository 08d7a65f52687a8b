// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"sync"
	"time"

	"github.com/ManuGH/launchpad/internal/metrics"
)

// State is the externally visible side of a Hysteresis.
type State string

const (
	StateStable  State = "stable"
	StateTripped State = "tripped"
)

// DefaultThreshold is the number of consecutive failures needed to trip.
const DefaultThreshold = 3

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Hysteresis suppresses noise in a stream of success/failure signals.
// It only reports a trip once the number of consecutive failures reaches the
// threshold, and reports it exactly once per streak. A single success resets
// the streak and, if tripped, reports the recovery.
type Hysteresis struct {
	mu        sync.Mutex
	name      string // component name for metrics
	state     State
	failures  int
	threshold int
	trippedAt time.Time
	clock     clock
}

// Option configuration pattern
type Option func(*Hysteresis)

func WithClock(c clock) Option {
	return func(h *Hysteresis) { h.clock = c }
}

// NewHysteresis creates a stable tracker. Thresholds below 1 fall back to DefaultThreshold.
func NewHysteresis(name string, threshold int, opts ...Option) *Hysteresis {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	h := &Hysteresis{
		name:      name,
		state:     StateStable,
		threshold: threshold,
		clock:     realClock{},
	}
	for _, opt := range opts {
		opt(h)
	}
	metrics.SetHysteresisState(h.name, string(h.state))
	return h
}

// RecordFailure counts one adverse signal. It returns true only for the
// failure that reaches the threshold; later failures in the same streak
// return false.
func (h *Hysteresis) RecordFailure() (tripped bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures++
	if h.state == StateStable && h.failures >= h.threshold {
		metrics.RecordHysteresisTrip(h.name)
		h.transitionTo(StateTripped)
		return true
	}
	return false
}

// RecordSuccess resets the streak. It returns true if the tracker had tripped,
// i.e. the success is a transition back to stable.
func (h *Hysteresis) RecordSuccess() (recovered bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures = 0
	if h.state != StateStable {
		h.transitionTo(StateStable)
		return true
	}
	return false
}

// transitionTo handles state transitions and updates metrics.
// Caller must hold lock.
func (h *Hysteresis) transitionTo(newState State) {
	if h.state == newState {
		return
	}
	h.state = newState
	if newState == StateTripped {
		h.trippedAt = h.clock.Now()
	}
	metrics.SetHysteresisState(h.name, string(newState))
}

// State returns the current state.
func (h *Hysteresis) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Failures returns the length of the current failure streak.
func (h *Hysteresis) Failures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}

// TrippedFor reports how long the tracker has been tripped (0 when stable).
func (h *Hysteresis) TrippedFor() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateTripped {
		return 0
	}
	return h.clock.Now().Sub(h.trippedAt)
}
