// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vaultstream/assetforge/internal/asset"
	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/log"
	"github.com/vaultstream/assetforge/internal/metrics"
)

// ResultCache stores serialized ProcessingResults keyed by asset hash
// and options fingerprint. Implementations must be safe for concurrent
// use. A miss is (nil, false), never an error.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte) error
}

// OrchestratorConfig wires an orchestrator.
type OrchestratorConfig struct {
	Registry *Registry
	Metrics  *metrics.Collector

	// Cache is optional; when set, successful results are cached by
	// content hash + options fingerprint and replayed on repeat runs.
	Cache ResultCache

	// Retry backoff tuning shared by all four stage managers.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Orchestrator runs single assets through the fixed stage sequence
// Validate → Optimize → Compress → Upload. One orchestrator serves the
// whole process; per-asset state lives in the ProcessingResult.
type Orchestrator struct {
	registry  *Registry
	collector *metrics.Collector
	cache     ResultCache
	managers  map[backend.StageKind]*Manager
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator with one manager per stage kind.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewCollector()
	}
	o := &Orchestrator{
		registry:  cfg.Registry,
		collector: cfg.Metrics,
		cache:     cfg.Cache,
		managers:  make(map[backend.StageKind]*Manager, 4),
		now:       time.Now,
	}
	for _, kind := range backend.Stages() {
		o.managers[kind] = NewManager(ManagerConfig{
			Kind:       kind,
			Registry:   cfg.Registry,
			Metrics:    cfg.Metrics,
			Backoff:    cfg.Backoff,
			MaxBackoff: cfg.MaxBackoff,
		})
	}
	return o
}

// Registry returns the backend registry the orchestrator resolves from.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Collector returns the shared metrics collector.
func (o *Orchestrator) Collector() *metrics.Collector { return o.collector }

// Manager returns the stage manager for one kind.
func (o *Orchestrator) Manager(kind backend.StageKind) *Manager { return o.managers[kind] }

// stageSpec is one planned stage execution for an asset.
type stageSpec struct {
	kind      backend.StageKind
	state     AssetState
	preferred string
	options   backend.StageOptions
}

// ProcessAsset runs one asset through every enabled stage in fixed
// order. It never returns an error: failures are captured in the
// result's State, Errors and Err fields. Validation always runs and a
// validation failure is terminal: no later stage executes. The upload
// stage runs exactly when opts.Platform is set.
func (o *Orchestrator) ProcessAsset(ctx context.Context, info *asset.Info, opts ProcessingOptions) *ProcessingResult {
	opts = opts.Normalized()
	runID := uuid.NewString()
	ctx = log.ContextWithRunID(ctx, runID)
	logger := log.WithComponentFromContext(ctx, "orchestrator")
	start := o.now()

	result := &ProcessingResult{RunID: runID, State: StatePending}
	if info == nil {
		o.fail(result, logger, backend.StageValidate, fmt.Errorf("no asset supplied"))
		o.seal(result, start)
		return result
	}
	result.Asset = info

	metrics.IncAssetsInFlight()
	defer metrics.DecAssetsInFlight()

	logger.Info().
		Str("event", "asset.start").
		Str(log.FieldAsset, info.ID).
		Str(log.FieldKind, info.Kind.String()).
		Int64("size_bytes", info.Size).
		Msg("processing asset")

	cacheKey := ""
	if o.cache != nil && opts.UseCache && info.SHA256 != "" {
		cacheKey = info.SHA256 + ":" + opts.Fingerprint()
		if !opts.RefreshCache {
			if cached := o.cachedResult(ctx, cacheKey, runID, logger); cached != nil {
				return cached
			}
		}
	}

	specs, lastLocalBytes := o.plan(result, logger, info, opts)
	currentPath := info.Path

	for _, spec := range specs {
		o.transition(result, logger, spec.state)

		res, err := o.managers[spec.kind].Execute(ctx, ExecRequest{
			Request: backend.Request{
				InputPath: currentPath,
				Asset:     info,
				Options:   spec.options,
			},
			PreferredID:       spec.preferred,
			CumulativeTimeout: opts.CumulativeTimeout,
		})
		if err != nil {
			o.fail(result, logger, spec.kind, err)
			break
		}

		result.setStageResult(spec.kind, res)
		result.Warnings = append(result.Warnings, res.Warnings...)

		if spec.kind == backend.StageUpload {
			result.Location = res.Location
		} else if res.OutputPath != "" {
			currentPath = res.OutputPath
			if res.BytesOut > 0 {
				lastLocalBytes = res.BytesOut
			}
		}
	}

	if result.State != StateFailed {
		o.transition(result, logger, StateCompleted)
		result.Success = true
		result.FinalPath = currentPath
		result.SizeReduction = backend.SavedRatio(info.Size, lastLocalBytes)
	}

	o.seal(result, start)
	o.storeCache(ctx, cacheKey, result, logger)

	event := logger.Info()
	if !result.Success {
		event = logger.Warn()
	}
	event.
		Str("event", "asset.done").
		Str(log.FieldAsset, info.ID).
		Bool("success", result.Success).
		Float64("size_reduction", result.SizeReduction).
		Dur("total_duration", result.TotalDuration).
		Msg("asset processing finished")

	return result
}

// plan builds the stage list for this invocation. Optimization of asset
// kinds without a registered optimizer mapping is skipped with a
// warning instead of failing the asset.
func (o *Orchestrator) plan(result *ProcessingResult, logger zerolog.Logger, info *asset.Info, opts ProcessingOptions) ([]stageSpec, int64) {
	specs := make([]stageSpec, 0, 4)
	specs = append(specs, stageSpec{
		kind:    backend.StageValidate,
		state:   StateValidating,
		options: opts.validateOptions(info),
	})

	if opts.Optimize {
		if preferred := optimizerFor(info.Kind); preferred != "" {
			specs = append(specs, stageSpec{
				kind:      backend.StageOptimize,
				state:     StateOptimizing,
				preferred: preferred,
				options:   opts.optimizeOptions(),
			})
		} else {
			result.addWarning(fmt.Sprintf("no optimizer for %s assets, optimization skipped", info.Kind))
			logger.Debug().
				Str("event", "asset.optimize_skipped").
				Str(log.FieldKind, info.Kind.String()).
				Msg("no optimizer mapping for asset kind")
		}
	}

	if opts.Compress {
		specs = append(specs, stageSpec{
			kind:      backend.StageCompress,
			state:     StateCompressing,
			preferred: opts.CompressionAlgorithm,
			options:   opts.compressOptions(),
		})
	}

	if opts.Platform != "" {
		specs = append(specs, stageSpec{
			kind:      backend.StageUpload,
			state:     StateUploading,
			preferred: opts.Platform,
			options:   opts.uploadOptions(),
		})
	}

	return specs, info.Size
}

func (o *Orchestrator) transition(result *ProcessingResult, logger zerolog.Logger, to AssetState) {
	from := result.State
	if !from.CanTransition(to) {
		logger.Error().
			Str("event", "asset.illegal_transition").
			Str(log.FieldOldState, string(from)).
			Str(log.FieldNewState, string(to)).
			Msg("illegal state transition")
		return
	}
	result.State = to
	logger.Debug().
		Str("event", "asset.state").
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Msg("state transition")
}

func (o *Orchestrator) fail(result *ProcessingResult, logger zerolog.Logger, kind backend.StageKind, err error) {
	result.Err = err
	result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", kind, err))
	result.Success = false

	from := result.State
	result.State = StateFailed
	logger.Warn().Err(err).
		Str("event", "asset.failed").
		Str(log.FieldStage, kind.String()).
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(StateFailed)).
		Msg("stage failed, aborting asset")
}

// seal stamps the timing fields and terminal metrics.
func (o *Orchestrator) seal(result *ProcessingResult, start time.Time) {
	result.TotalDuration = o.now().Sub(start)
	result.CompletedAt = o.now()

	status := "failed"
	if result.Success {
		status = "completed"
	}
	metrics.RecordAssetProcessed(status)
}

func (o *Orchestrator) cachedResult(ctx context.Context, key, runID string, logger zerolog.Logger) *ProcessingResult {
	raw, ok := o.cache.Get(ctx, key)
	if !ok {
		metrics.RecordCacheEvent("miss")
		return nil
	}

	var cached ProcessingResult
	if err := json.Unmarshal(raw, &cached); err != nil || !cached.Success {
		metrics.RecordCacheEvent("miss")
		logger.Debug().Str("event", "asset.cache_invalid").Msg("discarding unusable cache entry")
		return nil
	}

	cached.RunID = runID
	cached.CacheHit = true
	metrics.RecordCacheEvent("hit")
	logger.Info().
		Str("event", "asset.cache_hit").
		Str(log.FieldHash, key).
		Msg("served result from cache")
	return &cached
}

func (o *Orchestrator) storeCache(ctx context.Context, key string, result *ProcessingResult, logger zerolog.Logger) {
	if o.cache == nil || key == "" || !result.Success {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := o.cache.Set(ctx, key, raw); err != nil {
		logger.Debug().Err(err).Str("event", "asset.cache_store_failed").Msg("could not cache result")
		return
	}
	metrics.RecordCacheEvent("store")
}
