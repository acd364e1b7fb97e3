// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"

	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/backends/compressors"
	"github.com/vaultstream/assetforge/internal/backends/optimizers"
	"github.com/vaultstream/assetforge/internal/backends/uploaders"
	"github.com/vaultstream/assetforge/internal/backends/validators"
	"github.com/vaultstream/assetforge/internal/cache"
	"github.com/vaultstream/assetforge/internal/config"
	"github.com/vaultstream/assetforge/internal/pipeline"
)

// buildRegistry constructs every enabled backend and registers it under
// its configured descriptor. Backends holding external resources (open
// buckets, client connections) are returned as closers; on error the
// already-opened ones are still returned so the caller can release them.
func buildRegistry(cfg config.Config) (*pipeline.Registry, []io.Closer, error) {
	reg := pipeline.NewRegistry()
	var closers []io.Closer

	register := func(impl backend.Backend, err error) error {
		if err != nil {
			return err
		}
		if c, ok := impl.(io.Closer); ok {
			closers = append(closers, c)
		}
		desc := impl.Describe()
		if err := reg.Register(desc, impl); err != nil {
			return fmt.Errorf("register %s/%s: %w", desc.Kind, desc.ID, err)
		}
		return nil
	}

	perf := cfg.Performance

	// Validate stage.
	if b := cfg.Validators.File; b.Enabled {
		c := validatorConfig(b.Tuning, perf.MaxConcurrentValidations)
		c.MaxFileSize = b.MaxFileSize
		c.AllowedFormats = b.AllowedFormats
		if err := register(validators.New("file", c)); err != nil {
			return nil, closers, err
		}
	}
	if b := cfg.Validators.Integrity; b.Enabled {
		c := validatorConfig(b.Tuning, perf.MaxConcurrentValidations)
		if err := register(validators.New("integrity", c)); err != nil {
			return nil, closers, err
		}
	}
	if b := cfg.Validators.Virus; b.Enabled {
		c := validatorConfig(b.Tuning, perf.MaxConcurrentValidations)
		c.ClamdAddress = b.ClamdAddress
		if err := register(validators.New("virus", c)); err != nil {
			return nil, closers, err
		}
	}

	// Optimize stage.
	if b := cfg.Optimizers.Image; b.Enabled {
		c := optimizerConfig(b.Tuning, perf.MaxConcurrentOptimizations)
		c.Quality = b.Quality
		if err := register(optimizers.New("image", c)); err != nil {
			return nil, closers, err
		}
	}
	if b := cfg.Optimizers.Audio; b.Enabled {
		c := optimizerConfig(b.Tuning, perf.MaxConcurrentOptimizations)
		c.FFmpegPath = b.FFmpegPath
		c.TargetBitrate = b.TargetBitrate
		if err := register(optimizers.New("audio", c)); err != nil {
			return nil, closers, err
		}
	}
	if b := cfg.Optimizers.Video; b.Enabled {
		c := optimizerConfig(b.Tuning, perf.MaxConcurrentOptimizations)
		c.FFmpegPath = b.FFmpegPath
		c.Quality = b.Quality
		if err := register(optimizers.New("video", c)); err != nil {
			return nil, closers, err
		}
	}
	if b := cfg.Optimizers.Model3D; b.Enabled {
		c := optimizerConfig(b.Tuning, perf.MaxConcurrentOptimizations)
		if err := register(optimizers.New("model3d", c)); err != nil {
			return nil, closers, err
		}
	}

	// Compress stage. The four blocks are identical in shape, so they
	// register through one table.
	for _, entry := range []struct {
		id    string
		block config.CompressorConfig
	}{
		{"gzip", cfg.Compressors.Gzip},
		{"zstd", cfg.Compressors.Zstd},
		{"brotli", cfg.Compressors.Brotli},
		{"lz4", cfg.Compressors.LZ4},
	} {
		if !entry.block.Enabled {
			continue
		}
		c := compressorConfig(entry.block.Tuning, perf.MaxConcurrentCompressions)
		c.Level = entry.block.Level
		if err := register(compressors.New(entry.id, c)); err != nil {
			return nil, closers, err
		}
	}

	// Upload stage.
	if b := cfg.Uploaders.Local; b.Enabled {
		c := uploaderConfig(b.Tuning, perf.MaxConcurrentUploads)
		c.Directory = b.Directory
		if err := register(uploaders.New("local", c)); err != nil {
			return nil, closers, err
		}
	}
	if b := cfg.Uploaders.AWS; b.Enabled {
		c := uploaderConfig(b.Tuning, perf.MaxConcurrentUploads)
		c.Bucket = b.Bucket
		c.Region = b.Region
		c.Endpoint = b.Endpoint
		if err := register(uploaders.New("aws", c)); err != nil {
			return nil, closers, err
		}
	}
	if b := cfg.Uploaders.IPFS; b.Enabled {
		c := uploaderConfig(b.Tuning, perf.MaxConcurrentUploads)
		c.APIEndpoint = b.APIEndpoint
		if err := register(uploaders.New("ipfs", c)); err != nil {
			return nil, closers, err
		}
	}
	if b := cfg.Uploaders.Arweave; b.Enabled {
		c := uploaderConfig(b.Tuning, perf.MaxConcurrentUploads)
		c.Gateway = b.Gateway
		if err := register(uploaders.New("arweave", c)); err != nil {
			return nil, closers, err
		}
	}

	return reg, closers, nil
}

// buildCache opens the persistent result cache. A nil store with nil
// error means caching is disabled.
func buildCache(cfg config.Config) (*cache.Badger, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	return cache.NewBadger(cfg.Cache.Dir, cfg.Cache.TTL.Std())
}

// concurrency resolves a backend's semaphore width: its own setting
// when present, the stage-level performance cap otherwise.
func concurrency(own, stageCap int) int {
	if own > 0 {
		return own
	}
	return stageCap
}

func validatorConfig(t config.Tuning, stageCap int) validators.Config {
	return validators.Config{
		Priority:      t.Priority,
		Weight:        t.Weight,
		MaxConcurrent: concurrency(t.MaxConcurrent, stageCap),
		Timeout:       t.Timeout.Std(),
		RetryAttempts: t.RetryAttempts,
		Fallbacks:     t.Fallbacks,
	}
}

func optimizerConfig(t config.Tuning, stageCap int) optimizers.Config {
	return optimizers.Config{
		Priority:      t.Priority,
		Weight:        t.Weight,
		MaxConcurrent: concurrency(t.MaxConcurrent, stageCap),
		Timeout:       t.Timeout.Std(),
		RetryAttempts: t.RetryAttempts,
		Fallbacks:     t.Fallbacks,
	}
}

func compressorConfig(t config.Tuning, stageCap int) compressors.Config {
	return compressors.Config{
		Priority:      t.Priority,
		Weight:        t.Weight,
		MaxConcurrent: concurrency(t.MaxConcurrent, stageCap),
		Timeout:       t.Timeout.Std(),
		RetryAttempts: t.RetryAttempts,
		Fallbacks:     t.Fallbacks,
	}
}

func uploaderConfig(t config.Tuning, stageCap int) uploaders.Config {
	return uploaders.Config{
		Priority:      t.Priority,
		Weight:        t.Weight,
		MaxConcurrent: concurrency(t.MaxConcurrent, stageCap),
		Timeout:       t.Timeout.Std(),
		RetryAttempts: t.RetryAttempts,
		Fallbacks:     t.Fallbacks,
	}
}
