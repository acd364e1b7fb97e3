// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/vaultstream/assetforge/internal/asset"
	"github.com/vaultstream/assetforge/internal/log"
	"github.com/vaultstream/assetforge/internal/metrics"
	"github.com/vaultstream/assetforge/internal/telemetry"
)

const defaultBatchSize = 5

// Coordinator splits asset lists into sequential groups of at most
// batchSize and processes the assets inside each group concurrently.
// Group N+1 does not start until group N fully settled, which caps peak
// concurrency at batchSize assets times per-backend limits.
type Coordinator struct {
	orch      *Orchestrator
	batchSize int
}

// NewCoordinator creates a batch coordinator. batchSize <= 0 selects the
// default of 5.
func NewCoordinator(orch *Orchestrator, batchSize int) *Coordinator {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Coordinator{orch: orch, batchSize: batchSize}
}

// BatchSize returns the configured group size.
func (c *Coordinator) BatchSize() int { return c.batchSize }

// ProcessBatch runs every asset through the pipeline and returns one
// BatchResult whose Results slice is index-aligned with assets. A
// failing asset never aborts the batch; canceling ctx stops scheduling
// of further groups and marks unprocessed assets failed, while in-flight
// assets settle through their own cancellation path.
func (c *Coordinator) ProcessBatch(ctx context.Context, assets []*asset.Info, opts ProcessingOptions) *BatchResult {
	batchID := uuid.NewString()
	ctx = log.ContextWithBatchID(ctx, batchID)
	logger := log.WithComponentFromContext(ctx, "batch")

	tracer := telemetry.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "batch.process")
	span.SetAttributes(telemetry.BatchAttributes(batchID, len(assets), c.batchSize)...)
	defer span.End()

	start := time.Now()
	batch := &BatchResult{
		BatchID:   batchID,
		Results:   make([]*ProcessingResult, len(assets)),
		StartedAt: start,
	}

	logger.Info().
		Str("event", "batch.start").
		Int("assets", len(assets)).
		Int("batch_size", c.batchSize).
		Msg("processing batch")

	for groupStart := 0; groupStart < len(assets); groupStart += c.batchSize {
		groupEnd := groupStart + c.batchSize
		if groupEnd > len(assets) {
			groupEnd = len(assets)
		}

		if err := ctx.Err(); err != nil {
			// Batch canceled: mark everything not yet scheduled.
			for i := groupStart; i < len(assets); i++ {
				batch.Results[i] = c.canceledResult(assets[i], err)
			}
			span.SetStatus(codes.Error, err.Error())
			break
		}

		c.runGroup(ctx, batch.Results, assets, groupStart, groupEnd, opts)

		logger.Debug().
			Str("event", "batch.group_done").
			Int("group_start", groupStart).
			Int("group_end", groupEnd).
			Msg("batch group settled")
	}

	for _, res := range batch.Results {
		if res != nil && res.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
	}
	batch.Duration = time.Since(start)
	metrics.RecordBatch()

	logger.Info().
		Str("event", "batch.done").
		Int("succeeded", batch.Succeeded).
		Int("failed", batch.Failed).
		Dur("duration", batch.Duration).
		Msg("batch finished")

	return batch
}

// runGroup fans the group's assets out to goroutines and joins them.
// Results are written straight into their input slots, preserving order
// without extra bookkeeping. A panicking asset run is converted into a
// failed result so one bad asset cannot take down the batch.
func (c *Coordinator) runGroup(ctx context.Context, results []*ProcessingResult, assets []*asset.Info, from, to int, opts ProcessingOptions) {
	var wg sync.WaitGroup
	for i := from; i < to; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = c.panicResult(assets[i], r)
				}
			}()
			results[i] = c.orch.ProcessAsset(ctx, assets[i], opts)
		}()
	}
	wg.Wait()
}

func (c *Coordinator) canceledResult(info *asset.Info, err error) *ProcessingResult {
	return &ProcessingResult{
		Asset:       info,
		RunID:       uuid.NewString(),
		State:       StateFailed,
		Errors:      []string{fmt.Sprintf("batch canceled before processing: %v", err)},
		Err:         err,
		CompletedAt: time.Now(),
	}
}

func (c *Coordinator) panicResult(info *asset.Info, recovered any) *ProcessingResult {
	err := fmt.Errorf("asset processing panic: %v", recovered)
	return &ProcessingResult{
		Asset:       info,
		RunID:       uuid.NewString(),
		State:       StateFailed,
		Errors:      []string{err.Error()},
		Err:         err,
		CompletedAt: time.Now(),
	}
}
