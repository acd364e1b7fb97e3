// SPDX-License-Identifier: MIT

// Package metrics provides the in-process per-backend counters queried by
// the pipeline plus the Prometheus metrics exported by assetforge.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// Outcome labels a recorded backend attempt.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Snapshot is a read-only copy of one backend's counters at a point in
// time. Counters are monotonically non-decreasing; AvgLatency is a
// cumulative moving average and may move in either direction.
type Snapshot struct {
	Stage       string        `json:"stage"`
	Backend     string        `json:"backend"`
	Invocations uint64        `json:"invocations"`
	Successes   uint64        `json:"successes"`
	Failures    uint64        `json:"failures"`
	AvgLatency  time.Duration `json:"avgLatency"`
	LastUsed    time.Time     `json:"lastUsed"`
}

type statsKey struct {
	stage   string
	backend string
}

type backendStats struct {
	invocations uint64
	successes   uint64
	failures    uint64
	avgLatency  time.Duration
	lastUsed    time.Time
}

// Collector aggregates attempt outcomes per (stage, backend). It is
// mutated concurrently by every stage manager and read at any time via
// Snapshot; all access is lock-protected.
type Collector struct {
	mu    sync.RWMutex
	stats map[statsKey]*backendStats
	now   func() time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		stats: make(map[statsKey]*backendStats),
		now:   time.Now,
	}
}

// RecordSuccess records one successful backend attempt with its latency.
func (c *Collector) RecordSuccess(stage, backend string, latency time.Duration) {
	c.record(stage, backend, true, latency)
}

// RecordFailure records one failed backend attempt with its latency.
func (c *Collector) RecordFailure(stage, backend string, latency time.Duration) {
	c.record(stage, backend, false, latency)
}

func (c *Collector) record(stage, backend string, success bool, latency time.Duration) {
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	RecordAttempt(stage, backend, outcome)
	ObserveStageDuration(stage, backend, latency.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	key := statsKey{stage: stage, backend: backend}
	s, ok := c.stats[key]
	if !ok {
		s = &backendStats{}
		c.stats[key] = s
	}

	s.invocations++
	if success {
		s.successes++
	} else {
		s.failures++
	}
	// Cumulative moving average keeps the update O(1) and needs no
	// history buffer.
	s.avgLatency += (latency - s.avgLatency) / time.Duration(s.invocations)
	s.lastUsed = c.now()
}

// Snapshot returns a copy of every backend's counters, sorted by stage
// then backend for deterministic output.
func (c *Collector) Snapshot() []Snapshot {
	return c.snapshot("")
}

// SnapshotStage returns a copy of the counters for one stage kind only.
func (c *Collector) SnapshotStage(stage string) []Snapshot {
	return c.snapshot(stage)
}

func (c *Collector) snapshot(stage string) []Snapshot {
	c.mu.RLock()
	out := make([]Snapshot, 0, len(c.stats))
	for key, s := range c.stats {
		if stage != "" && key.stage != stage {
			continue
		}
		out = append(out, Snapshot{
			Stage:       key.stage,
			Backend:     key.backend,
			Invocations: s.invocations,
			Successes:   s.successes,
			Failures:    s.failures,
			AvgLatency:  s.avgLatency,
			LastUsed:    s.lastUsed,
		})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].Backend < out[j].Backend
	})
	return out
}

// Lookup returns the snapshot for one (stage, backend) pair, if present.
func (c *Collector) Lookup(stage, backend string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.stats[statsKey{stage: stage, backend: backend}]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		Stage:       stage,
		Backend:     backend,
		Invocations: s.invocations,
		Successes:   s.successes,
		Failures:    s.failures,
		AvgLatency:  s.avgLatency,
		LastUsed:    s.lastUsed,
	}, true
}
