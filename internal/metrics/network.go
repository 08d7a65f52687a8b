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
	networkProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launchpad_network_probes_total",
		Help: "Connectivity probes by resulting status",
	}, []string{"status"}) // status=online|slow|offline

	networkProbeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "launchpad_network_probe_latency_seconds",
		Help:    "Round-trip latency of successful connectivity probes",
		Buckets: []float64{.025, .05, .1, .25, .5, 1, 2, 5},
	})

	networkOutages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "launchpad_network_outages_total",
		Help: "Outages declared after the consecutive-failure threshold was reached",
	})

	recoveryRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launchpad_recovery_runs_total",
		Help: "Recovery routine runs by outcome",
	}, []string{"trigger", "outcome"}) // outcome=success|failed|offline|busy

	recoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "launchpad_recovery_duration_seconds",
		Help:    "Wall-clock duration of recovery runs",
		Buckets: prometheus.DefBuckets,
	})
)

// RecordProbe records a connectivity probe result.
func RecordProbe(status string, latency time.Duration) {
	networkProbes.WithLabelValues(status).Inc()
	if latency > 0 {
		networkProbeLatency.Observe(latency.Seconds())
	}
}

func IncNetworkOutage() { networkOutages.Inc() }

// RecordRecoveryRun records the outcome of a recovery attempt.
func RecordRecoveryRun(trigger, outcome string, d time.Duration) {
	recoveryRuns.WithLabelValues(trigger, outcome).Inc()
	if d > 0 {
		recoveryDuration.Observe(d.Seconds())
	}
}
