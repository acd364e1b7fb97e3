// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration with precedence ENV > file >
// defaults. The file is parsed strictly: unknown keys are fatal so a
// typo cannot silently disable a backend. Pass an empty path to run on
// defaults and environment alone.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	applyEnv(&cfg)
	expandDirs(&cfg)

	// DataDir must be absolute before cache and watch paths derive from it.
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = filepath.Join(cfg.DataDir, "cache")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over the defaults with STRICT parsing.
// Unknown fields cause a fatal error to prevent misconfiguration.
func loadFile(cfg *Config, path string) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	// Reject multiple documents or trailing content.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// applyEnv overrides file and default values with ASSETFORGE_* variables.
func applyEnv(cfg *Config) {
	cfg.LogLevel = ParseString("ASSETFORGE_LOG_LEVEL", cfg.LogLevel)
	cfg.DataDir = ParseString("ASSETFORGE_DATA_DIR", cfg.DataDir)
	cfg.Listen = ParseString("ASSETFORGE_LISTEN", cfg.Listen)

	cfg.Performance.BatchSize = ParseInt("ASSETFORGE_BATCH_SIZE", cfg.Performance.BatchSize)
	cfg.Performance.MaxConcurrentUploads = ParseInt("ASSETFORGE_MAX_CONCURRENT_UPLOADS", cfg.Performance.MaxConcurrentUploads)
	cfg.Performance.MaxConcurrentCompressions = ParseInt("ASSETFORGE_MAX_CONCURRENT_COMPRESSIONS", cfg.Performance.MaxConcurrentCompressions)
	cfg.Performance.MaxConcurrentOptimizations = ParseInt("ASSETFORGE_MAX_CONCURRENT_OPTIMIZATIONS", cfg.Performance.MaxConcurrentOptimizations)
	cfg.Performance.MaxConcurrentValidations = ParseInt("ASSETFORGE_MAX_CONCURRENT_VALIDATIONS", cfg.Performance.MaxConcurrentValidations)

	cfg.Cache.Enabled = ParseBool("ASSETFORGE_CACHE_ENABLED", cfg.Cache.Enabled)
	cfg.Cache.Dir = ParseString("ASSETFORGE_CACHE_DIR", cfg.Cache.Dir)
	cfg.Cache.TTL = Duration(ParseDuration("ASSETFORGE_CACHE_TTL", cfg.Cache.TTL.Std()))

	cfg.Watch.Enabled = ParseBool("ASSETFORGE_WATCH_ENABLED", cfg.Watch.Enabled)
	cfg.Watch.Dir = ParseString("ASSETFORGE_WATCH_DIR", cfg.Watch.Dir)
	cfg.Watch.Debounce = Duration(ParseDuration("ASSETFORGE_WATCH_DEBOUNCE", cfg.Watch.Debounce.Std()))

	// One ffmpeg override feeds both transcoding optimizers.
	ffmpeg := ParseString("ASSETFORGE_FFMPEG_PATH", "")
	if ffmpeg != "" {
		cfg.Optimizers.Audio.FFmpegPath = ffmpeg
		cfg.Optimizers.Video.FFmpegPath = ffmpeg
	}

	cfg.Validators.File.MaxFileSize = ParseInt64("ASSETFORGE_MAX_FILE_SIZE", cfg.Validators.File.MaxFileSize)
	cfg.Validators.Virus.ClamdAddress = ParseString("ASSETFORGE_CLAMD_ADDRESS", cfg.Validators.Virus.ClamdAddress)

	cfg.Uploaders.Local.Directory = ParseString("ASSETFORGE_OUTPUT_DIR", cfg.Uploaders.Local.Directory)
	cfg.Uploaders.AWS.Bucket = ParseString("ASSETFORGE_S3_BUCKET", cfg.Uploaders.AWS.Bucket)
	cfg.Uploaders.AWS.Region = ParseString("ASSETFORGE_S3_REGION", cfg.Uploaders.AWS.Region)
	cfg.Uploaders.AWS.Endpoint = ParseString("ASSETFORGE_S3_ENDPOINT", cfg.Uploaders.AWS.Endpoint)
	cfg.Uploaders.IPFS.APIEndpoint = ParseString("ASSETFORGE_IPFS_API", cfg.Uploaders.IPFS.APIEndpoint)
	cfg.Uploaders.Arweave.Gateway = ParseString("ASSETFORGE_ARWEAVE_GATEWAY", cfg.Uploaders.Arweave.Gateway)
}

// expandDirs resolves ${VAR} references in path settings so operators
// can write dataDir: ${HOME}/assetforge in the file.
func expandDirs(cfg *Config) {
	cfg.DataDir = os.ExpandEnv(cfg.DataDir)
	cfg.Cache.Dir = os.ExpandEnv(cfg.Cache.Dir)
	cfg.Watch.Dir = os.ExpandEnv(cfg.Watch.Dir)
	cfg.Uploaders.Local.Directory = os.ExpandEnv(cfg.Uploaders.Local.Directory)
}
