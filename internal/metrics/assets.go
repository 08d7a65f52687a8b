// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assetLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launchpad_asset_loads_total",
		Help: "Asset load requests by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome=hit|dedup|fetched|failed|skipped_failed

	assetInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "launchpad_asset_inflight",
		Help: "Number of asset fetches currently in flight",
	})

	assetCacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "launchpad_asset_cache_entries",
		Help: "Tracked asset URLs by state",
	}, []string{"state"}) // state=loaded|failed|pending

	assetFailedCleared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "launchpad_asset_failed_cleared_total",
		Help: "Failed asset URLs evicted so they can be retried",
	})

	assetStoreOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launchpad_asset_store_ops_total",
		Help: "Durable asset store operations by backend, op and outcome",
	}, []string{"backend", "op", "outcome"})

	preloadTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "launchpad_preload_timeouts_total",
		Help: "Batch preloads abandoned at the wall-clock ceiling",
	}, []string{"source"}) // source=startup|recovery

	preloadBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "launchpad_preload_batch_size",
		Help:    "Number of asset URLs requested per preload batch",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"source"})
)

// IncAssetLoad records the outcome of one Load request.
func IncAssetLoad(kind, outcome string) {
	assetLoadsTotal.WithLabelValues(kind, outcome).Inc()
}

// IncAssetInflight / DecAssetInflight track running fetches.
func IncAssetInflight() { assetInflight.Inc() }
func DecAssetInflight() { assetInflight.Dec() }

// RecordAssetCacheEntries publishes the current cache population.
func RecordAssetCacheEntries(loaded, failed, pending int) {
	assetCacheEntries.WithLabelValues("loaded").Set(float64(loaded))
	assetCacheEntries.WithLabelValues("failed").Set(float64(failed))
	assetCacheEntries.WithLabelValues("pending").Set(float64(pending))
}

func AddAssetFailedCleared(n int) { assetFailedCleared.Add(float64(n)) }

// IncAssetStoreOp records a durable store operation (op=get|put|delete, outcome=hit|miss|ok|error).
func IncAssetStoreOp(backend, op, outcome string) {
	assetStoreOps.WithLabelValues(backend, op, outcome).Inc()
}

func IncPreloadTimeout(source string) { preloadTimeouts.WithLabelValues(source).Inc() }

func ObservePreloadBatch(source string, n int) {
	preloadBatchSize.WithLabelValues(source).Observe(float64(n))
}
