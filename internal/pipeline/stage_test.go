// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultstream/assetforge/internal/asset"
	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/metrics"
)

// fakeBackend is an instrumented backend for pipeline tests: it counts
// calls, tracks the maximum simultaneous in-flight executions and
// delegates behavior to fn.
type fakeBackend struct {
	desc  backend.Descriptor
	delay time.Duration
	fn    func(ctx context.Context, req backend.Request) (*backend.StageResult, error)

	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeBackend(kind backend.StageKind, id string, mutate func(*backend.Descriptor)) *fakeBackend {
	d := backend.Descriptor{
		Kind:          kind,
		ID:            id,
		Priority:      100,
		MaxConcurrent: 16,
		Timeout:       time.Second,
		RetryAttempts: 1,
	}
	if mutate != nil {
		mutate(&d)
	}
	return &fakeBackend{desc: d}
}

func (f *fakeBackend) Describe() backend.Descriptor { return f.desc }

func (f *fakeBackend) Execute(ctx context.Context, req backend.Request) (*backend.StageResult, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxInFlight.Load()
		if cur <= seen || f.maxInFlight.CompareAndSwap(seen, cur) {
			break
		}
	}
	f.calls.Add(1)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.fn != nil {
		return f.fn(ctx, req)
	}
	return &backend.StageResult{OutputPath: req.InputPath, BytesIn: 100, BytesOut: 50}, nil
}

func (f *fakeBackend) Calls() int       { return int(f.calls.Load()) }
func (f *fakeBackend) MaxInFlight() int { return int(f.maxInFlight.Load()) }

func newTestManager(t *testing.T, kind backend.StageKind, backends ...*fakeBackend) (*Manager, *metrics.Collector) {
	t.Helper()
	reg := NewRegistry()
	for _, fb := range backends {
		require.NoError(t, reg.Register(fb.desc, fb))
	}
	col := metrics.NewCollector()
	mgr := NewManager(ManagerConfig{
		Kind:       kind,
		Registry:   reg,
		Metrics:    col,
		Backoff:    time.Millisecond,
		MaxBackoff: 4 * time.Millisecond,
	})
	return mgr, col
}

func testAsset(id, name string, size int64, kind asset.Kind) *asset.Info {
	return &asset.Info{
		ID:          id,
		Name:        name,
		Path:        "/assets/" + name,
		Size:        size,
		Kind:        kind,
		ContentType: "application/octet-stream",
		SHA256:      "hash-" + id,
		ModTime:     time.Now(),
	}
}

func execReq(info *asset.Info, preferred string) ExecRequest {
	return ExecRequest{
		Request: backend.Request{
			InputPath: info.Path,
			Asset:     info,
			Options:   backend.CompressOptions{},
		},
		PreferredID: preferred,
	}
}

func TestStageManagerFallbackToSecondCandidate(t *testing.T) {
	b1 := newFakeBackend(backend.StageCompress, "b1", func(d *backend.Descriptor) { d.Priority = 1 })
	b1.fn = func(context.Context, backend.Request) (*backend.StageResult, error) {
		return nil, fmt.Errorf("disk on fire")
	}
	b2 := newFakeBackend(backend.StageCompress, "b2", func(d *backend.Descriptor) { d.Priority = 2 })

	mgr, col := newTestManager(t, backend.StageCompress, b1, b2)
	res, err := mgr.Execute(context.Background(), execReq(testAsset("a", "a.bin", 100, asset.KindOther), ""))

	require.NoError(t, err)
	assert.Equal(t, "b2", res.BackendID)
	assert.Equal(t, backend.StageCompress, res.Stage)
	assert.Equal(t, 1, b1.Calls())
	assert.Equal(t, 1, b2.Calls())

	s1, ok := col.Lookup("compress", "b1")
	require.True(t, ok)
	assert.Equal(t, uint64(1), s1.Failures)
	assert.Equal(t, uint64(0), s1.Successes)

	s2, ok := col.Lookup("compress", "b2")
	require.True(t, ok)
	assert.Equal(t, uint64(1), s2.Successes)
	assert.Equal(t, uint64(0), s2.Failures)
}

func TestStageManagerRetriesBeforeFallback(t *testing.T) {
	b1 := newFakeBackend(backend.StageCompress, "b1", func(d *backend.Descriptor) {
		d.Priority = 1
		d.RetryAttempts = 3
	})
	b1.fn = func(context.Context, backend.Request) (*backend.StageResult, error) {
		if b1.Calls() < 3 {
			return nil, fmt.Errorf("flaky")
		}
		return &backend.StageResult{BytesIn: 10, BytesOut: 5}, nil
	}
	b2 := newFakeBackend(backend.StageCompress, "b2", func(d *backend.Descriptor) { d.Priority = 2 })

	mgr, col := newTestManager(t, backend.StageCompress, b1, b2)
	res, err := mgr.Execute(context.Background(), execReq(testAsset("a", "a.bin", 100, asset.KindOther), ""))

	require.NoError(t, err)
	assert.Equal(t, "b1", res.BackendID, "retries stay on the same backend before falling back")
	assert.Equal(t, 3, b1.Calls())
	assert.Equal(t, 0, b2.Calls())

	s1, _ := col.Lookup("compress", "b1")
	assert.Equal(t, uint64(2), s1.Failures)
	assert.Equal(t, uint64(1), s1.Successes)
}

func TestStageManagerValidationShortCircuits(t *testing.T) {
	b1 := newFakeBackend(backend.StageValidate, "strict", func(d *backend.Descriptor) {
		d.Priority = 1
		d.RetryAttempts = 3
	})
	b1.fn = func(context.Context, backend.Request) (*backend.StageResult, error) {
		return nil, &backend.ValidationError{BackendID: "strict", Rule: "max_file_size", Reason: "too large"}
	}
	b2 := newFakeBackend(backend.StageValidate, "lenient", func(d *backend.Descriptor) { d.Priority = 2 })

	mgr, _ := newTestManager(t, backend.StageValidate, b1, b2)
	_, err := mgr.Execute(context.Background(), execReq(testAsset("a", "big.bin", 1<<30, asset.KindOther), ""))

	require.Error(t, err)
	assert.True(t, backend.IsValidation(err), "validation rejection must surface typed")
	assert.Equal(t, 1, b1.Calls(), "no retry on validation rejection")
	assert.Equal(t, 0, b2.Calls(), "no fallback on validation rejection")
}

func TestStageManagerAggregateCollectsEveryAttempt(t *testing.T) {
	b1 := newFakeBackend(backend.StageCompress, "b1", func(d *backend.Descriptor) {
		d.Priority = 1
		d.RetryAttempts = 2
	})
	b1.fn = func(context.Context, backend.Request) (*backend.StageResult, error) {
		return nil, fmt.Errorf("b1 broken")
	}
	b2 := newFakeBackend(backend.StageCompress, "b2", func(d *backend.Descriptor) { d.Priority = 2 })
	b2.fn = func(context.Context, backend.Request) (*backend.StageResult, error) {
		return nil, fmt.Errorf("b2 broken")
	}

	mgr, _ := newTestManager(t, backend.StageCompress, b1, b2)
	_, err := mgr.Execute(context.Background(), execReq(testAsset("a", "a.bin", 100, asset.KindOther), ""))

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 3, "every attempt of every candidate is collected")

	assert.Equal(t, "b1", agg.Failures[0].BackendID)
	assert.Equal(t, 1, agg.Failures[0].Attempt)
	assert.Equal(t, "b1", agg.Failures[1].BackendID)
	assert.Equal(t, 2, agg.Failures[1].Attempt)
	assert.Equal(t, "b2", agg.Failures[2].BackendID)

	assert.ErrorIs(t, err, backend.ErrExecution)
	assert.Contains(t, err.Error(), "b1 broken")
	assert.Contains(t, err.Error(), "b2 broken")
}

func TestStageManagerConcurrencyCeiling(t *testing.T) {
	fb := newFakeBackend(backend.StageOptimize, "bounded", func(d *backend.Descriptor) {
		d.MaxConcurrent = 2
	})
	fb.delay = 25 * time.Millisecond

	mgr, _ := newTestManager(t, backend.StageOptimize, fb)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			info := testAsset(fmt.Sprintf("a%d", i), "a.bin", 100, asset.KindImage)
			_, err := mgr.Execute(context.Background(), execReq(info, ""))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, fb.Calls())
	assert.LessOrEqual(t, fb.MaxInFlight(), 2, "semaphore must cap in-flight executions")
}

func TestStageManagerTimeoutClassifiedAndFallback(t *testing.T) {
	slow := newFakeBackend(backend.StageUpload, "slow", func(d *backend.Descriptor) {
		d.Priority = 1
		d.Timeout = 15 * time.Millisecond
	})
	slow.delay = 150 * time.Millisecond
	fast := newFakeBackend(backend.StageUpload, "fast", func(d *backend.Descriptor) { d.Priority = 2 })

	mgr, col := newTestManager(t, backend.StageUpload, slow, fast)
	res, err := mgr.Execute(context.Background(), execReq(testAsset("a", "a.bin", 100, asset.KindOther), ""))

	require.NoError(t, err)
	assert.Equal(t, "fast", res.BackendID)

	s, ok := col.Lookup("upload", "slow")
	require.True(t, ok)
	assert.Equal(t, uint64(1), s.Failures)
}

func TestStageManagerTimeoutSentinel(t *testing.T) {
	slow := newFakeBackend(backend.StageUpload, "slow", func(d *backend.Descriptor) {
		d.Timeout = 15 * time.Millisecond
	})
	slow.delay = 150 * time.Millisecond

	mgr, _ := newTestManager(t, backend.StageUpload, slow)
	_, err := mgr.Execute(context.Background(), execReq(testAsset("a", "a.bin", 100, asset.KindOther), ""))

	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrTimeout)
}

func TestStageManagerPermanentErrorSkipsRetries(t *testing.T) {
	b1 := newFakeBackend(backend.StageOptimize, "image", func(d *backend.Descriptor) {
		d.Priority = 1
		d.RetryAttempts = 4
	})
	b1.fn = func(context.Context, backend.Request) (*backend.StageResult, error) {
		return nil, fmt.Errorf("cannot decode: %w", backend.ErrUnsupported)
	}
	b2 := newFakeBackend(backend.StageOptimize, "generic", func(d *backend.Descriptor) { d.Priority = 2 })

	mgr, _ := newTestManager(t, backend.StageOptimize, b1, b2)
	res, err := mgr.Execute(context.Background(), execReq(testAsset("a", "a.xyz", 100, asset.KindOther), ""))

	require.NoError(t, err)
	assert.Equal(t, "generic", res.BackendID)
	assert.Equal(t, 1, b1.Calls(), "unsupported input must not be retried on the same backend")
}

func TestStageManagerPanicIsIsolated(t *testing.T) {
	b1 := newFakeBackend(backend.StageCompress, "panicky", func(d *backend.Descriptor) { d.Priority = 1 })
	b1.fn = func(context.Context, backend.Request) (*backend.StageResult, error) {
		panic("boom")
	}
	b2 := newFakeBackend(backend.StageCompress, "stable", func(d *backend.Descriptor) { d.Priority = 2 })

	mgr, col := newTestManager(t, backend.StageCompress, b1, b2)

	var res *backend.StageResult
	var err error
	require.NotPanics(t, func() {
		res, err = mgr.Execute(context.Background(), execReq(testAsset("a", "a.bin", 100, asset.KindOther), ""))
	})
	require.NoError(t, err)
	assert.Equal(t, "stable", res.BackendID)

	s, _ := col.Lookup("compress", "panicky")
	assert.Equal(t, uint64(1), s.Failures)
}

func TestStageManagerCancellation(t *testing.T) {
	fb := newFakeBackend(backend.StageCompress, "b1", nil)
	mgr, _ := newTestManager(t, backend.StageCompress, fb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mgr.Execute(ctx, execReq(testAsset("a", "a.bin", 100, asset.KindOther), ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStageManagerNoBackendsIsConfigError(t *testing.T) {
	mgr, _ := newTestManager(t, backend.StageUpload)
	_, err := mgr.Execute(context.Background(), execReq(testAsset("a", "a.bin", 100, asset.KindOther), ""))

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, backend.StageUpload, cfgErr.Kind)
}

func TestStageManagerCumulativeTimeoutBudget(t *testing.T) {
	b1 := newFakeBackend(backend.StageUpload, "slow", func(d *backend.Descriptor) {
		d.Priority = 1
		d.Timeout = 50 * time.Millisecond
		d.RetryAttempts = 5
	})
	b1.delay = 30 * time.Millisecond
	b1.fn = func(context.Context, backend.Request) (*backend.StageResult, error) {
		return nil, fmt.Errorf("still failing")
	}
	b2 := newFakeBackend(backend.StageUpload, "fast", func(d *backend.Descriptor) { d.Priority = 2 })

	mgr, _ := newTestManager(t, backend.StageUpload, b1, b2)

	req := execReq(testAsset("a", "a.bin", 100, asset.KindOther), "")
	req.CumulativeTimeout = true

	res, err := mgr.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "fast", res.BackendID)
	assert.Less(t, b1.Calls(), 5, "one budget spans all attempts of the candidate")
	assert.GreaterOrEqual(t, b1.Calls(), 1)
}

func TestStageManagerPreferredFirst(t *testing.T) {
	gzip := newFakeBackend(backend.StageCompress, "gzip", func(d *backend.Descriptor) { d.Priority = 1 })
	zstd := newFakeBackend(backend.StageCompress, "zstd", func(d *backend.Descriptor) { d.Priority = 50 })

	mgr, _ := newTestManager(t, backend.StageCompress, gzip, zstd)
	res, err := mgr.Execute(context.Background(), execReq(testAsset("a", "a.bin", 100, asset.KindOther), "zstd"))

	require.NoError(t, err)
	assert.Equal(t, "zstd", res.BackendID, "preferred backend wins over priority order")
	assert.Equal(t, 0, gzip.Calls())
}

func TestStageManagerNilResultIsFailure(t *testing.T) {
	weird := newFakeBackend(backend.StageCompress, "weird", func(d *backend.Descriptor) { d.Priority = 1 })
	weird.fn = func(context.Context, backend.Request) (*backend.StageResult, error) {
		return nil, nil
	}

	mgr, _ := newTestManager(t, backend.StageCompress, weird)
	_, err := mgr.Execute(context.Background(), execReq(testAsset("a", "a.bin", 100, asset.KindOther), ""))

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.True(t, errors.Is(err, backend.ErrExecution))
}
