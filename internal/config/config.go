// SPDX-License-Identifier: MIT

// Package config builds the effective assetforge configuration from
// three layers: compiled defaults, a strict YAML file and ASSETFORGE_*
// environment overrides, in that precedence order. The result is
// validated before anything consumes it.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML accepts Go duration strings
// such as "30s" or "1h".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the complete assetforge configuration.
type Config struct {
	LogLevel string `yaml:"logLevel"`
	DataDir  string `yaml:"dataDir"`
	Listen   string `yaml:"listen"`

	Uploaders   UploadersConfig   `yaml:"uploaders"`
	Compressors CompressorsConfig `yaml:"compressors"`
	Optimizers  OptimizersConfig  `yaml:"optimizers"`
	Validators  ValidatorsConfig  `yaml:"validators"`
	Performance PerformanceConfig `yaml:"performance"`
	Cache       CacheConfig       `yaml:"cache"`
	Watch       WatchConfig       `yaml:"watch"`
}

// Tuning is the registration surface shared by every backend block.
// Zero values defer to the registry's normalization defaults.
type Tuning struct {
	Enabled       bool     `yaml:"enabled"`
	Priority      int      `yaml:"priority"`
	Weight        int      `yaml:"weight"`
	MaxConcurrent int      `yaml:"maxConcurrent"`
	Timeout       Duration `yaml:"timeout"`
	RetryAttempts int      `yaml:"retryAttempts"`
	Fallbacks     []string `yaml:"fallbacks"`
}

// UploadersConfig holds one block per upload backend.
type UploadersConfig struct {
	IPFS    IPFSConfig    `yaml:"ipfs"`
	Arweave ArweaveConfig `yaml:"arweave"`
	AWS     AWSConfig     `yaml:"aws"`
	Local   LocalConfig   `yaml:"local"`
}

type IPFSConfig struct {
	Tuning      `yaml:",inline"`
	APIEndpoint string `yaml:"apiEndpoint"`
}

type ArweaveConfig struct {
	Tuning  `yaml:",inline"`
	Gateway string `yaml:"gateway"`
}

type AWSConfig struct {
	Tuning   `yaml:",inline"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

type LocalConfig struct {
	Tuning    `yaml:",inline"`
	Directory string `yaml:"directory"`
}

// CompressorsConfig holds one block per compression backend.
type CompressorsConfig struct {
	Gzip   CompressorConfig `yaml:"gzip"`
	Zstd   CompressorConfig `yaml:"zstd"`
	Brotli CompressorConfig `yaml:"brotli"`
	LZ4    CompressorConfig `yaml:"lz4"`
}

type CompressorConfig struct {
	Tuning `yaml:",inline"`
	Level  int `yaml:"level"`
}

// OptimizersConfig holds one block per optimizer backend.
type OptimizersConfig struct {
	Image   ImageConfig   `yaml:"image"`
	Audio   AudioConfig   `yaml:"audio"`
	Video   VideoConfig   `yaml:"video"`
	Model3D Model3DConfig `yaml:"model3d"`
}

type ImageConfig struct {
	Tuning  `yaml:",inline"`
	Quality int `yaml:"quality"`
}

type AudioConfig struct {
	Tuning        `yaml:",inline"`
	FFmpegPath    string `yaml:"ffmpegPath"`
	TargetBitrate string `yaml:"targetBitrate"`
}

type VideoConfig struct {
	Tuning     `yaml:",inline"`
	FFmpegPath string `yaml:"ffmpegPath"`
	Quality    int    `yaml:"quality"`
}

type Model3DConfig struct {
	Tuning `yaml:",inline"`
}

// ValidatorsConfig holds one block per validation backend.
type ValidatorsConfig struct {
	File      FileValidatorConfig      `yaml:"file"`
	Integrity IntegrityValidatorConfig `yaml:"integrity"`
	Virus     VirusValidatorConfig     `yaml:"virus"`
}

type FileValidatorConfig struct {
	Tuning         `yaml:",inline"`
	MaxFileSize    int64    `yaml:"maxFileSize"`
	AllowedFormats []string `yaml:"allowedFormats"`
}

type IntegrityValidatorConfig struct {
	Tuning `yaml:",inline"`
}

type VirusValidatorConfig struct {
	Tuning       `yaml:",inline"`
	ClamdAddress string `yaml:"clamdAddress"`
}

// PerformanceConfig caps stage concurrency and sizes batch groups.
// The per-stage limits become the default maxConcurrent for backends
// that do not set their own.
type PerformanceConfig struct {
	MaxConcurrentUploads       int `yaml:"maxConcurrentUploads"`
	MaxConcurrentCompressions  int `yaml:"maxConcurrentCompressions"`
	MaxConcurrentOptimizations int `yaml:"maxConcurrentOptimizations"`
	MaxConcurrentValidations   int `yaml:"maxConcurrentValidations"`
	BatchSize                  int `yaml:"batchSize"`
}

// CacheConfig controls the persistent result cache. An empty Dir
// places the store under DataDir.
type CacheConfig struct {
	Enabled bool     `yaml:"enabled"`
	Dir     string   `yaml:"dir"`
	TTL     Duration `yaml:"ttl"`
}

// WatchConfig controls the hot-folder watcher.
type WatchConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Dir      string   `yaml:"dir"`
	Debounce Duration `yaml:"debounce"`
}

// Default returns the compiled-in configuration: every compressor,
// optimizer and validator enabled, local upload only, conservative
// concurrency caps.
func Default() Config {
	return Config{
		LogLevel: "info",
		DataDir:  "./data",
		Listen:   ":8080",
		Uploaders: UploadersConfig{
			Local:   LocalConfig{Tuning: Tuning{Enabled: true, Priority: 10}, Directory: "./output"},
			AWS:     AWSConfig{Tuning: Tuning{Priority: 20}},
			IPFS:    IPFSConfig{Tuning: Tuning{Priority: 30}},
			Arweave: ArweaveConfig{Tuning: Tuning{Priority: 40}},
		},
		Compressors: CompressorsConfig{
			Gzip:   CompressorConfig{Tuning: Tuning{Enabled: true, Priority: 10}},
			Zstd:   CompressorConfig{Tuning: Tuning{Enabled: true, Priority: 20}},
			Brotli: CompressorConfig{Tuning: Tuning{Enabled: true, Priority: 30}},
			LZ4:    CompressorConfig{Tuning: Tuning{Enabled: true, Priority: 40}},
		},
		Optimizers: OptimizersConfig{
			Image:   ImageConfig{Tuning: Tuning{Enabled: true, Priority: 10}, Quality: 85},
			Audio:   AudioConfig{Tuning: Tuning{Enabled: true, Priority: 10}, TargetBitrate: "128k"},
			Video:   VideoConfig{Tuning: Tuning{Enabled: true, Priority: 10}, Quality: 85},
			Model3D: Model3DConfig{Tuning: Tuning{Enabled: true, Priority: 10}},
		},
		Validators: ValidatorsConfig{
			File:      FileValidatorConfig{Tuning: Tuning{Enabled: true, Priority: 10}},
			Integrity: IntegrityValidatorConfig{Tuning: Tuning{Enabled: true, Priority: 20}},
			Virus:     VirusValidatorConfig{Tuning: Tuning{Enabled: true, Priority: 30}},
		},
		Performance: PerformanceConfig{
			MaxConcurrentUploads:       3,
			MaxConcurrentCompressions:  4,
			MaxConcurrentOptimizations: 4,
			MaxConcurrentValidations:   8,
			BatchSize:                  5,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     Duration(24 * time.Hour),
		},
		Watch: WatchConfig{
			Dir:      "./watch",
			Debounce: Duration(500 * time.Millisecond),
		},
	}
}
