// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hysteresisState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "launchpad_hysteresis_state",
		Help: "Hysteresis state by component (stable=1 or tripped=1; others 0)",
	}, []string{"component", "state"})

	hysteresisTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launchpad_hysteresis_trips_total",
		Help: "Total number of hysteresis trips (threshold reached)",
	}, []string{"component"})
)

var hysteresisStates = []string{"stable", "tripped"}

// SetHysteresisState records the active hysteresis state for a component.
func SetHysteresisState(component, state string) {
	for _, s := range hysteresisStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		hysteresisState.WithLabelValues(component, s).Set(value)
	}
}

// RecordHysteresisTrip increments the trip counter when the threshold is reached.
func RecordHysteresisTrip(component string) {
	hysteresisTrips.WithLabelValues(component).Inc()
}
