// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Startup / recovery attributes
	PhaseKey       = "launchpad.phase"
	RunIDKey       = "launchpad.run_id"
	LimitedModeKey = "launchpad.limited_mode"
	TriggerKey     = "launchpad.recovery.trigger"

	// Asset attributes
	AssetCountKey    = "asset.count"
	AssetTimedOutKey = "asset.timed_out"

	// Network attributes
	NetworkStatusKey  = "network.status"
	NetworkLatencyKey = "network.latency_ms"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// PhaseAttributes describes one state-machine phase of a run.
func PhaseAttributes(runID, phase string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if runID != "" {
		attrs = append(attrs, attribute.String(RunIDKey, runID))
	}
	return append(attrs, attribute.String(PhaseKey, phase))
}

// PreloadAttributes describes a batch preload.
func PreloadAttributes(count int, timedOut bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AssetCountKey, count),
		attribute.Bool(AssetTimedOutKey, timedOut),
	}
}

// NetworkAttributes describes a connectivity probe result. Negative latency is omitted.
func NetworkAttributes(status string, latencyMS int64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(NetworkStatusKey, status)}
	if latencyMS >= 0 {
		attrs = append(attrs, attribute.Int64(NetworkLatencyKey, latencyMS))
	}
	return attrs
}
