// SPDX-License-Identifier: MIT

// Package optimizers provides the optimization stage backends, one per
// asset family: image (native re-encode), audio and video (ffmpeg
// subprocess) and model3d (glTF minification). Optimizers that cannot
// improve an asset pass it through with a zero savings ratio instead of
// failing; optimizers that cannot read a format report it as
// unsupported so the stage manager can try a fallback.
package optimizers

import (
	"fmt"
	"os"
	"time"

	"github.com/vaultstream/assetforge/internal/backend"
)

const defaultQuality = 85

// Config tunes one optimizer registration.
type Config struct {
	// Quality is the default 1-100 quality knob for requests that do
	// not carry their own.
	Quality int

	// FFmpegPath points at the ffmpeg binary for the audio and video
	// optimizers. Empty means resolve "ffmpeg" from PATH; when that
	// fails too, media optimization degrades to a passthrough.
	FFmpegPath string

	// TargetBitrate is the default audio bitrate, e.g. "128k".
	TargetBitrate string

	Priority      int
	Weight        int
	MaxConcurrent int
	Timeout       time.Duration
	RetryAttempts int
	Fallbacks     []string
}

// New creates the optimizer registered under id. Known IDs are image,
// audio, video and model3d.
func New(id string, cfg Config) (backend.Backend, error) {
	switch id {
	case "image":
		return NewImage(cfg), nil
	case "audio":
		return NewAudio(cfg), nil
	case "video":
		return NewVideo(cfg), nil
	case "model3d":
		return NewModel3D(cfg), nil
	}
	return nil, fmt.Errorf("unknown optimizer %q", id)
}

// IDs lists the available optimizer backend IDs.
func IDs() []string {
	return []string{"image", "audio", "video", "model3d"}
}

func descriptor(id string, cfg Config) backend.Descriptor {
	return backend.Descriptor{
		Kind:          backend.StageOptimize,
		ID:            id,
		Priority:      cfg.Priority,
		Weight:        cfg.Weight,
		MaxConcurrent: cfg.MaxConcurrent,
		Timeout:       cfg.Timeout,
		RetryAttempts: cfg.RetryAttempts,
		Fallbacks:     cfg.Fallbacks,
	}
}

func quality(cfg Config, opts backend.OptimizeOptions) int {
	q := opts.Quality
	if q <= 0 {
		q = cfg.Quality
	}
	if q <= 0 {
		q = defaultQuality
	}
	if q > 100 {
		q = 100
	}
	return q
}

// passthrough builds the result for an asset that travels on unchanged.
func passthrough(path string, size int64, warning string) *backend.StageResult {
	res := &backend.StageResult{
		OutputPath: path,
		BytesIn:    size,
		BytesOut:   size,
		Ratio:      0,
	}
	if warning != "" {
		res.Warnings = append(res.Warnings, warning)
	}
	return res
}

func inputSize(path string) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat input: %w", err)
	}
	return st.Size(), nil
}
