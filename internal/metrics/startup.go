// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	startupPhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "launchpad_startup_phase_duration_seconds",
		Help:    "Time spent in each startup phase",
		Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"phase"})

	startupFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launchpad_startup_fetch_errors_total",
		Help: "Non-fatal backend fetch failures during startup and recovery",
	}, []string{"op"})

	limitedMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "launchpad_limited_mode",
		Help: "Whether the shell currently runs in limited mode (1) or not (0)",
	})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launchpad_events_total",
		Help: "Backend events consumed by type and outcome",
	}, []string{"type", "outcome"}) // outcome=applied|ignored|error
)

func ObserveStartupPhase(phase string, d time.Duration) {
	startupPhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func IncFetchError(op string) { startupFetchErrors.WithLabelValues(op).Inc() }

func SetLimitedMode(on bool) {
	if on {
		limitedMode.Set(1)
		return
	}
	limitedMode.Set(0)
}

func IncEvent(eventType, outcome string) { eventsTotal.WithLabelValues(eventType, outcome).Inc() }
