// SPDX-License-Identifier: MIT
package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value
	}
	return m
}

func TestHTTPAttributes(t *testing.T) {
	m := attrMap(HTTPAttributes("POST", "/api/v1/recovery", 202))
	assert.Len(t, m, 3)
	assert.Equal(t, "POST", m[HTTPMethodKey].AsString())
	assert.Equal(t, int64(202), m[HTTPStatusCodeKey].AsInt64())
}

func TestPhaseAttributes(t *testing.T) {
	m := attrMap(PhaseAttributes("run-1", "awaiting-metadata"))
	assert.Equal(t, "run-1", m[RunIDKey].AsString())
	assert.Equal(t, "awaiting-metadata", m[PhaseKey].AsString())

	assert.Len(t, PhaseAttributes("", "finalizing"), 1)
}

func TestNetworkAttributes_OmitsUnknownLatency(t *testing.T) {
	assert.Len(t, NetworkAttributes("offline", -1), 1)

	m := attrMap(NetworkAttributes("slow", 1800))
	assert.Equal(t, int64(1800), m[NetworkLatencyKey].AsInt64())
}

func TestPreloadAttributes(t *testing.T) {
	m := attrMap(PreloadAttributes(12, true))
	assert.Equal(t, int64(12), m[AssetCountKey].AsInt64())
	assert.True(t, m[AssetTimedOutKey].AsBool())
}
