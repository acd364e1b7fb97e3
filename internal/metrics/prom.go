// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Label cardinality stays bounded: stage and backend come from the static
// registry, never from request data.

var (
	// Counters

	// BackendAttemptsTotal counts backend execution attempts by outcome.
	BackendAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assetforge_backend_attempts_total",
		Help: "Total number of backend execution attempts, by stage, backend and outcome.",
	}, []string{"stage", "backend", "outcome"})

	// StageBytesTotal counts bytes entering and leaving each stage.
	StageBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assetforge_stage_bytes_total",
		Help: "Total bytes processed per stage, by direction (in/out).",
	}, []string{"stage", "direction"})

	// AssetsProcessedTotal counts assets that finished the pipeline.
	AssetsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assetforge_assets_processed_total",
		Help: "Total number of assets that reached a terminal state, by status (completed/failed).",
	}, []string{"status"})

	// BatchesTotal counts processed batches.
	BatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assetforge_batches_total",
		Help: "Total number of processed batches.",
	})

	// CacheEventsTotal counts result-cache activity.
	CacheEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assetforge_cache_events_total",
		Help: "Total number of result cache events, by event (hit/miss/store/evict).",
	}, []string{"event"})

	// WatchEventsTotal counts hot-folder filesystem events by operation.
	WatchEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assetforge_watch_events_total",
		Help: "Total number of hot-folder filesystem events, by operation.",
	}, []string{"op"})

	// Histograms

	// StageDurationSeconds observes per-attempt backend latency.
	StageDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assetforge_stage_duration_seconds",
		Help:    "Backend attempt duration in seconds, by stage and backend.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage", "backend"})

	// Gauges

	// AssetsInFlight tracks assets currently being processed.
	AssetsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assetforge_assets_in_flight",
		Help: "Current number of assets being processed.",
	})
)

// RecordAttempt increments the attempt counter.
func RecordAttempt(stage, backend, outcome string) {
	BackendAttemptsTotal.WithLabelValues(stage, backend, outcome).Inc()
}

// ObserveStageDuration records one attempt's latency.
func ObserveStageDuration(stage, backend string, seconds float64) {
	StageDurationSeconds.WithLabelValues(stage, backend).Observe(seconds)
}

// AddStageBytes adds processed bytes for a stage. direction is "in" or "out".
func AddStageBytes(stage, direction string, n int64) {
	if n < 0 {
		return
	}
	StageBytesTotal.WithLabelValues(stage, direction).Add(float64(n))
}

// RecordAssetProcessed increments the terminal-state counter.
// status: "completed" or "failed"
func RecordAssetProcessed(status string) {
	AssetsProcessedTotal.WithLabelValues(status).Inc()
}

// RecordBatch increments the batch counter.
func RecordBatch() {
	BatchesTotal.Inc()
}

// RecordCacheEvent increments the cache event counter.
// event: "hit", "miss", "store" or "evict"
func RecordCacheEvent(event string) {
	CacheEventsTotal.WithLabelValues(event).Inc()
}

// RecordWatchEvent increments the hot-folder event counter.
func RecordWatchEvent(op string) {
	WatchEventsTotal.WithLabelValues(op).Inc()
}

// IncAssetsInFlight increments the in-flight gauge.
func IncAssetsInFlight() {
	AssetsInFlight.Inc()
}

// DecAssetsInFlight decrements the in-flight gauge.
func DecAssetsInFlight() {
	AssetsInFlight.Dec()
}

// GetAttemptCount returns the current value of the attempt counter (for testing).
func GetAttemptCount(stage, backend, outcome string) float64 {
	var m dto.Metric
	if err := BackendAttemptsTotal.WithLabelValues(stage, backend, outcome).Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// GetAssetsInFlight returns the current value of the gauge (for testing).
func GetAssetsInFlight() float64 {
	var m dto.Metric
	if err := AssetsInFlight.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
