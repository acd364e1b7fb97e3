// SPDX-License-Identifier: MIT

// Command assetforge runs digital assets through the validate,
// optimize, compress and upload pipeline. Three modes share one
// binary: one-shot processing of files named on the command line, an
// HTTP API (-serve) and a hot-folder watcher (-watch). Serve and watch
// can run together.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vaultstream/assetforge/internal/asset"
	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/config"
	"github.com/vaultstream/assetforge/internal/log"
	"github.com/vaultstream/assetforge/internal/metrics"
	"github.com/vaultstream/assetforge/internal/pipeline"
	"github.com/vaultstream/assetforge/internal/server"
	"github.com/vaultstream/assetforge/internal/telemetry"
	"github.com/vaultstream/assetforge/internal/watch"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	serve := flag.Bool("serve", false, "run the HTTP API server")
	watchMode := flag.Bool("watch", false, "watch the hot folder for new assets")
	platform := flag.String("platform", "", "upload processed assets to this backend (local, aws, ipfs, arweave)")
	quality := flag.Int("quality", 0, "optimization quality 1-100, 0 uses the configured default")
	algorithm := flag.String("algorithm", "", "preferred compression algorithm (gzip, zstd, brotli, lz4)")
	noOptimize := flag.Bool("no-optimize", false, "skip the optimization stage")
	noCompress := flag.Bool("no-compress", false, "skip the compression stage")
	noCache := flag.Bool("no-cache", false, "bypass the result cache")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	// Safe defaults until the configuration is loaded.
	log.Configure(log.Config{
		Level:   "info",
		Service: "assetforge",
	})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Explicit -config wins; otherwise pick up ${dataDir}/config.yaml
	// when it exists so a saved configuration persists across runs.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		dataDir := config.ParseString("ASSETFORGE_DATA_DIR", "./data")
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectiveConfigPath = autoPath
		}
	}

	cfg, err := config.Load(effectiveConfigPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	// Apply the loaded level; Configure itself runs only once.
	log.SetLevel(cfg.LogLevel)

	if effectiveConfigPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	tel, err := initTelemetry(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry disabled: initialization failed")
	}
	defer func() {
		if tel == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("telemetry shutdown error")
		}
	}()

	reg, closers, err := buildRegistry(cfg)
	defer func() { closeAll(closers, logger) }()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "registry.build_failed").
			Msg("failed to build backend registry")
	}

	store, err := buildCache(cfg)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "cache.open_failed").
			Str("dir", cfg.Cache.Dir).
			Msg("failed to open result cache")
	}

	collector := metrics.NewCollector()
	orchCfg := pipeline.OrchestratorConfig{
		Registry: reg,
		Metrics:  collector,
	}
	if store != nil {
		closers = append(closers, store)
		orchCfg.Cache = store
	}
	coord := pipeline.NewCoordinator(pipeline.NewOrchestrator(orchCfg), cfg.Performance.BatchSize)

	opts := pipeline.DefaultOptions()
	opts.Platform = *platform
	if *quality > 0 {
		opts.Quality = *quality
	}
	if *algorithm != "" {
		opts.CompressionAlgorithm = *algorithm
	}
	if *noOptimize {
		opts.Optimize = false
	}
	if *noCompress {
		opts.Compress = false
	}
	if *noCache {
		opts.UseCache = false
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Msg("starting assetforge")

	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	for _, kind := range backend.Stages() {
		logger.Info().Msgf("→ %s backends: %s", kind, stageIDs(reg, kind))
	}
	if store != nil {
		logger.Info().Msgf("→ Cache: %s (ttl %s)", cfg.Cache.Dir, cfg.Cache.TTL.Std())
	} else {
		logger.Info().Msg("→ Cache: disabled")
	}

	if files := flag.Args(); len(files) > 0 {
		return runBatch(ctx, coord, files, opts, logger)
	}

	runWatch := *watchMode || cfg.Watch.Enabled
	if !*serve && !runWatch {
		fmt.Fprintln(os.Stderr, "nothing to do: name asset files to process, or pass -serve / -watch")
		flag.Usage()
		return 2
	}

	g, gctx := errgroup.WithContext(ctx)

	if *serve {
		srv := server.New(server.Config{
			Listen:  cfg.Listen,
			Version: version,
		}, server.API{
			Coordinator: coord,
			Registry:    reg,
			Collector:   collector,
			Defaults:    opts,
		})
		logger.Info().Msgf("→ API: listening on %s", cfg.Listen)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if runWatch {
		w, err := watch.New(watch.Config{
			Dir:      cfg.Watch.Dir,
			Debounce: cfg.Watch.Debounce.Std(),
		}, func(ctx context.Context, assets []*asset.Info) {
			res := coord.ProcessBatch(ctx, assets, opts)
			logger.Info().
				Str("event", "watch.batch_done").
				Str("batch_id", res.BatchID).
				Int("succeeded", res.Succeeded).
				Int("failed", res.Failed).
				Dur("duration", res.Duration).
				Msg("processed watched assets")
		})
		if err != nil {
			logger.Fatal().
				Err(err).
				Str("event", "watch.start_failed").
				Str("dir", cfg.Watch.Dir).
				Msg("failed to start watcher")
		}
		logger.Info().Msgf("→ Watch: %s (debounce %s)", cfg.Watch.Dir, cfg.Watch.Debounce.Std())
		g.Go(func() error { return w.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("assetforge failed")
		return 1
	}
	logger.Info().Msg("assetforge exiting")
	return 0
}

// runBatch processes the named files once. The exit code reports the
// outcome: 0 when every asset completed, 1 otherwise.
func runBatch(ctx context.Context, coord *pipeline.Coordinator, paths []string, opts pipeline.ProcessingOptions, logger zerolog.Logger) int {
	assets := make([]*asset.Info, 0, len(paths))
	for _, p := range paths {
		info, err := asset.Capture(p)
		if err != nil {
			logger.Error().Err(err).Str("path", p).Msg("cannot read asset")
			return 1
		}
		assets = append(assets, info)
	}

	res := coord.ProcessBatch(ctx, assets, opts)
	for i, r := range res.Results {
		logResult(logger, paths[i], r)
	}
	logger.Info().
		Str("event", "batch.done").
		Str("batch_id", res.BatchID).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Dur("duration", res.Duration).
		Msg("batch complete")

	if res.Failed > 0 {
		return 1
	}
	return 0
}

func logResult(logger zerolog.Logger, path string, r *pipeline.ProcessingResult) {
	if !r.Success {
		logger.Error().
			Str("path", path).
			Strs("errors", r.Errors).
			Msg("asset failed")
		return
	}
	ev := logger.Info().
		Str("path", path).
		Str("final_path", r.FinalPath).
		Float64("size_reduction", r.SizeReduction).
		Dur("duration", r.TotalDuration).
		Bool("cache_hit", r.CacheHit)
	if r.Location != "" {
		ev = ev.Str("location", r.Location)
	}
	if len(r.Warnings) > 0 {
		ev = ev.Strs("warnings", r.Warnings)
	}
	ev.Msg("asset processed")
}

func stageIDs(reg *pipeline.Registry, kind backend.StageKind) string {
	var ids []string
	for _, d := range reg.Descriptors() {
		if d.Kind == kind {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}

// initTelemetry wires OTLP tracing when ASSETFORGE_TELEMETRY_ENABLED
// is set. A nil provider with a nil error means tracing is off.
func initTelemetry(ctx context.Context) (*telemetry.Provider, error) {
	if !config.ParseBool("ASSETFORGE_TELEMETRY_ENABLED", false) {
		return nil, nil
	}
	cfg := telemetry.Config{
		Enabled:        true,
		ServiceName:    config.ParseString("ASSETFORGE_SERVICE_NAME", "assetforge"),
		ServiceVersion: version,
		Environment:    config.ParseString("ASSETFORGE_ENVIRONMENT", "production"),
		ExporterType:   config.ParseString("ASSETFORGE_TELEMETRY_EXPORTER", "grpc"),
		Endpoint:       config.ParseString("ASSETFORGE_OTLP_ENDPOINT", "localhost:4317"),
		SamplingRate:   samplingRate(),
	}
	return telemetry.NewProvider(ctx, cfg)
}

func samplingRate() float64 {
	f := config.ParseFloat("ASSETFORGE_SAMPLING_RATE", 1.0)
	if f < 0 || f > 1 {
		return 1.0
	}
	return f
}

func closeAll(closers []io.Closer, logger zerolog.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warn().Err(err).Msg("close failed")
		}
	}
}
