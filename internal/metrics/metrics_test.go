// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromhttpExposure(t *testing.T) {
	IncNetworkOutage()

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAssetLoads(t *testing.T) {
	before := testutil.ToFloat64(assetLoadsTotal.WithLabelValues("image", "fetched"))
	IncAssetLoad("image", "fetched")
	IncAssetLoad("image", "fetched")
	assert.Equal(t, before+2, testutil.ToFloat64(assetLoadsTotal.WithLabelValues("image", "fetched")))

	IncAssetInflight()
	IncAssetInflight()
	DecAssetInflight()
	assert.GreaterOrEqual(t, testutil.ToFloat64(assetInflight), 1.0)
	DecAssetInflight()
}

func TestAssetCacheEntries(t *testing.T) {
	RecordAssetCacheEntries(5, 2, 1)
	assert.Equal(t, 5.0, testutil.ToFloat64(assetCacheEntries.WithLabelValues("loaded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(assetCacheEntries.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(assetCacheEntries.WithLabelValues("pending")))
}

func TestHysteresisState(t *testing.T) {
	SetHysteresisState("test", "tripped")
	assert.Equal(t, 1.0, testutil.ToFloat64(hysteresisState.WithLabelValues("test", "tripped")))
	assert.Equal(t, 0.0, testutil.ToFloat64(hysteresisState.WithLabelValues("test", "stable")))

	SetHysteresisState("test", "stable")
	assert.Equal(t, 0.0, testutil.ToFloat64(hysteresisState.WithLabelValues("test", "tripped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(hysteresisState.WithLabelValues("test", "stable")))

	before := testutil.ToFloat64(hysteresisTrips.WithLabelValues("test"))
	RecordHysteresisTrip("test")
	assert.Equal(t, before+1, testutil.ToFloat64(hysteresisTrips.WithLabelValues("test")))
}

func TestLimitedMode(t *testing.T) {
	SetLimitedMode(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(limitedMode))
	SetLimitedMode(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(limitedMode))
}

func TestRecoveryRuns(t *testing.T) {
	before := testutil.ToFloat64(recoveryRuns.WithLabelValues("manual", "busy"))
	RecordRecoveryRun("manual", "busy", 0)
	assert.Equal(t, before+1, testutil.ToFloat64(recoveryRuns.WithLabelValues("manual", "busy")))

	RecordRecoveryRun("auto", "success", 1500*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(recoveryDuration))
}

func TestHistogramsExposed(t *testing.T) {
	ObserveStartupPhase("checking-network", 20*time.Millisecond)
	RecordProbe("online", 40*time.Millisecond)
	ObservePreloadBatch("startup", 12)

	expected := `
# HELP launchpad_preload_timeouts_total Batch preloads abandoned at the wall-clock ceiling
# TYPE launchpad_preload_timeouts_total counter
launchpad_preload_timeouts_total{source="recovery"} 1
`
	IncPreloadTimeout("recovery")
	require.NoError(t, testutil.CollectAndCompare(preloadTimeouts, strings.NewReader(expected)))
}
