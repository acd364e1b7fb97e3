// SPDX-License-Identifier: MIT
package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultstream/assetforge/internal/metrics"
)

func TestCollectorRecordAndSnapshot(t *testing.T) {
	c := metrics.NewCollector()

	c.RecordSuccess("compress", "gzip", 100*time.Millisecond)
	c.RecordSuccess("compress", "gzip", 300*time.Millisecond)
	c.RecordFailure("compress", "gzip", 200*time.Millisecond)
	c.RecordSuccess("upload", "ipfs", 50*time.Millisecond)

	snap, ok := c.Lookup("compress", "gzip")
	require.True(t, ok)
	assert.Equal(t, uint64(3), snap.Invocations)
	assert.Equal(t, uint64(2), snap.Successes)
	assert.Equal(t, uint64(1), snap.Failures)
	assert.Equal(t, 200*time.Millisecond, snap.AvgLatency)
	assert.False(t, snap.LastUsed.IsZero())

	_, ok = c.Lookup("compress", "zstd")
	assert.False(t, ok)
}

func TestCollectorSnapshotSortedAndFiltered(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordSuccess("upload", "local", time.Millisecond)
	c.RecordSuccess("compress", "zstd", time.Millisecond)
	c.RecordSuccess("compress", "gzip", time.Millisecond)

	all := c.Snapshot()
	require.Len(t, all, 3)
	assert.Equal(t, "gzip", all[0].Backend)
	assert.Equal(t, "zstd", all[1].Backend)
	assert.Equal(t, "local", all[2].Backend)

	compressOnly := c.SnapshotStage("compress")
	require.Len(t, compressOnly, 2)
	for _, s := range compressOnly {
		assert.Equal(t, "compress", s.Stage)
	}

	assert.Empty(t, c.SnapshotStage("validate"))
}

func TestCollectorMonotonicCounters(t *testing.T) {
	c := metrics.NewCollector()

	var prev uint64
	for i := 0; i < 10; i++ {
		if i%3 == 0 {
			c.RecordFailure("validate", "file", time.Duration(i)*time.Millisecond)
		} else {
			c.RecordSuccess("validate", "file", time.Duration(i)*time.Millisecond)
		}
		snap, ok := c.Lookup("validate", "file")
		require.True(t, ok)
		assert.Greater(t, snap.Invocations, prev)
		assert.Equal(t, snap.Invocations, snap.Successes+snap.Failures)
		prev = snap.Invocations
	}
}

func TestCollectorConcurrentRecording(t *testing.T) {
	c := metrics.NewCollector()

	const workers = 16
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if i%2 == 0 {
					c.RecordSuccess("optimize", "image", time.Millisecond)
				} else {
					c.RecordFailure("optimize", "image", time.Millisecond)
				}
				// Interleave reads with writes.
				_ = c.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	snap, ok := c.Lookup("optimize", "image")
	require.True(t, ok)
	assert.Equal(t, uint64(workers*perWorker), snap.Invocations)
	assert.Equal(t, uint64(workers*perWorker/2), snap.Successes)
	assert.Equal(t, uint64(workers*perWorker/2), snap.Failures)
	assert.Equal(t, time.Millisecond, snap.AvgLatency)
}

func TestCollectorMirrorsPrometheus(t *testing.T) {
	c := metrics.NewCollector()

	// Unique backend label per test run keeps the global registry deltas clean.
	before := metrics.GetAttemptCount("compress", "mirror-check", metrics.OutcomeSuccess)
	c.RecordSuccess("compress", "mirror-check", 5*time.Millisecond)
	c.RecordFailure("compress", "mirror-check", 5*time.Millisecond)

	assert.Equal(t, before+1, metrics.GetAttemptCount("compress", "mirror-check", metrics.OutcomeSuccess))
	assert.Equal(t, float64(1), metrics.GetAttemptCount("compress", "mirror-check", metrics.OutcomeFailure))
}

func TestAssetsInFlightGauge(t *testing.T) {
	base := metrics.GetAssetsInFlight()
	metrics.IncAssetsInFlight()
	metrics.IncAssetsInFlight()
	metrics.DecAssetsInFlight()
	assert.Equal(t, base+1, metrics.GetAssetsInFlight())
	metrics.DecAssetsInFlight()
}

func TestPromhttpExposure(t *testing.T) {
	metrics.RecordAttempt("upload", "exposure-check", metrics.OutcomeSuccess)
	metrics.AddStageBytes("upload", "in", 1024)
	metrics.RecordCacheEvent("hit")
	metrics.RecordWatchEvent("create")
	metrics.RecordBatch()
	metrics.RecordAssetProcessed("completed")
	metrics.ObserveStageDuration("upload", "exposure-check", 0.25)

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	for _, metric := range []string{
		"assetforge_backend_attempts_total",
		"assetforge_stage_bytes_total",
		"assetforge_cache_events_total",
		"assetforge_watch_events_total",
		"assetforge_batches_total",
		"assetforge_assets_processed_total",
		"assetforge_stage_duration_seconds",
	} {
		assert.True(t, strings.Contains(string(body), metric), "missing %s in exposition", metric)
	}
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAddStageBytesIgnoresNegative(t *testing.T) {
	// Prometheus counters panic on negative Add; the helper must guard.
	assert.NotPanics(t, func() {
		metrics.AddStageBytes("compress", "out", -10)
	})
}
