// SPDX-License-Identifier: MIT

package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/vaultstream/assetforge/internal/asset"
	"github.com/vaultstream/assetforge/internal/backend"
)

// ProcessingOptions is the per-invocation configuration supplied by the
// caller. The pipeline never mutates it.
//
// Validation always runs. Optimize and Compress are opt-in flags; the
// upload stage runs exactly when Platform names a target uploader.
// CompressionAlgorithm selects the preferred compressor backend; the
// optimizer is selected by the asset's content kind.
type ProcessingOptions struct {
	MaxFileSize    int64    `json:"maxFileSize,omitempty"`
	AllowedFormats []string `json:"allowedFormats,omitempty"`

	Optimize bool `json:"optimize"`
	Quality  int  `json:"quality,omitempty"`

	Compress             bool   `json:"compress"`
	CompressionAlgorithm string `json:"compressionAlgorithm,omitempty"`
	CompressionLevel     int    `json:"compressionLevel,omitempty"`

	Platform  string            `json:"platform,omitempty"`
	KeyPrefix string            `json:"keyPrefix,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// UseCache consults the result cache before processing; RefreshCache
	// forces a fresh run whose result replaces the cached entry.
	UseCache     bool `json:"useCache,omitempty"`
	RefreshCache bool `json:"refreshCache,omitempty"`

	// CumulativeTimeout switches the per-attempt timeout clock to one
	// budget spanning all retry attempts of a candidate. The default
	// (false) resets the clock on every attempt.
	CumulativeTimeout bool `json:"cumulativeTimeout,omitempty"`
}

// DefaultOptions returns the options used when a caller supplies none:
// optimize and compress with default knobs, no upload.
func DefaultOptions() ProcessingOptions {
	return ProcessingOptions{
		Optimize:             true,
		Compress:             true,
		CompressionAlgorithm: "gzip",
		UseCache:             true,
	}
}

// Normalized clamps knobs into their valid ranges.
func (o ProcessingOptions) Normalized() ProcessingOptions {
	out := o
	if out.Quality < 0 {
		out.Quality = 0
	}
	if out.Quality > 100 {
		out.Quality = 100
	}
	if out.MaxFileSize < 0 {
		out.MaxFileSize = 0
	}
	if out.CompressionLevel < 0 {
		out.CompressionLevel = 0
	}
	return out
}

// Fingerprint returns a stable digest of the output-affecting options,
// combined with the asset hash to form result-cache keys. Two calls with
// equal options must collide; json.Marshal's deterministic key ordering
// guarantees it. Cache and timeout policy knobs do not change what the
// pipeline produces, so they are excluded from the key.
func (o ProcessingOptions) Fingerprint() string {
	key := o
	key.UseCache = false
	key.RefreshCache = false
	key.CumulativeTimeout = false

	b, err := json.Marshal(key)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

func (o ProcessingOptions) validateOptions(info *asset.Info) backend.ValidateOptions {
	opts := backend.ValidateOptions{
		MaxFileSize:    o.MaxFileSize,
		AllowedFormats: o.AllowedFormats,
	}
	if info != nil {
		opts.ExpectedSHA256 = info.SHA256
	}
	return opts
}

func (o ProcessingOptions) optimizeOptions() backend.OptimizeOptions {
	return backend.OptimizeOptions{
		Quality: o.Quality,
	}
}

func (o ProcessingOptions) compressOptions() backend.CompressOptions {
	return backend.CompressOptions{
		Level: o.CompressionLevel,
	}
}

func (o ProcessingOptions) uploadOptions() backend.UploadOptions {
	return backend.UploadOptions{
		Platform:  o.Platform,
		KeyPrefix: o.KeyPrefix,
		Metadata:  o.Metadata,
	}
}

// optimizerFor maps an asset kind to the conventional optimizer backend
// ID preferred for it. Kinds without a dedicated optimizer return "".
func optimizerFor(kind asset.Kind) string {
	switch kind {
	case asset.KindImage:
		return "image"
	case asset.KindAudio:
		return "audio"
	case asset.KindVideo:
		return "video"
	case asset.KindModel3D:
		return "model3d"
	}
	return ""
}
