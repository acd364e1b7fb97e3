// SPDX-License-Identifier: MIT

package optimizers

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/log"
)

const defaultAudioBitrate = "128k"

// Audio transcodes audio assets to a constrained bitrate through
// ffmpeg. When no ffmpeg binary can be resolved the asset passes
// through untouched with a warning instead of failing the stage.
type Audio struct {
	cfg Config
}

// NewAudio creates the audio optimizer backend.
func NewAudio(cfg Config) *Audio {
	return &Audio{cfg: cfg}
}

func (o *Audio) Describe() backend.Descriptor {
	return descriptor("audio", o.cfg)
}

func (o *Audio) Execute(ctx context.Context, req backend.Request) (*backend.StageResult, error) {
	opts, _ := req.Options.(backend.OptimizeOptions)
	size, err := inputSize(req.InputPath)
	if err != nil {
		return nil, err
	}

	bin, err := resolveFFmpeg(o.cfg)
	if err != nil {
		log.WithComponentFromContext(ctx, "optimize.audio").Debug().Err(err).Msg("ffmpeg unavailable")
		return passthrough(req.InputPath, size, "ffmpeg not available, audio left untouched"), nil
	}

	bitrate := opts.TargetBitrate
	if bitrate == "" {
		bitrate = o.cfg.TargetBitrate
	}
	if bitrate == "" {
		bitrate = defaultAudioBitrate
	}

	outPath := optimizedPath(req.InputPath)
	tmpPath := partialPath(outPath)
	args := []string{"-y", "-i", req.InputPath, "-vn", "-b:a", bitrate, tmpPath}
	if err := runFFmpeg(ctx, bin, args); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	return finishTranscode(ctx, req.InputPath, tmpPath, outPath, size, map[string]string{
		"bitrate": bitrate,
	})
}

// Video re-encodes video assets with x264 at a constant rate factor
// derived from the requested quality. The audio track is copied
// unchanged. Like Audio it degrades to a passthrough when ffmpeg is
// missing.
type Video struct {
	cfg Config
}

// NewVideo creates the video optimizer backend.
func NewVideo(cfg Config) *Video {
	return &Video{cfg: cfg}
}

func (o *Video) Describe() backend.Descriptor {
	return descriptor("video", o.cfg)
}

func (o *Video) Execute(ctx context.Context, req backend.Request) (*backend.StageResult, error) {
	opts, _ := req.Options.(backend.OptimizeOptions)
	size, err := inputSize(req.InputPath)
	if err != nil {
		return nil, err
	}

	bin, err := resolveFFmpeg(o.cfg)
	if err != nil {
		log.WithComponentFromContext(ctx, "optimize.video").Debug().Err(err).Msg("ffmpeg unavailable")
		return passthrough(req.InputPath, size, "ffmpeg not available, video left untouched"), nil
	}

	crf := crfFor(quality(o.cfg, opts))
	outPath := optimizedPath(req.InputPath)
	tmpPath := partialPath(outPath)
	args := []string{
		"-y", "-i", req.InputPath,
		"-c:v", "libx264", "-crf", strconv.Itoa(crf), "-preset", "medium",
		"-c:a", "copy",
		tmpPath,
	}
	if err := runFFmpeg(ctx, bin, args); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	return finishTranscode(ctx, req.InputPath, tmpPath, outPath, size, map[string]string{
		"video_codec": "libx264",
		"crf":         strconv.Itoa(crf),
	})
}

// crfFor maps the 1-100 quality scale onto x264's constant rate
// factor, where lower means better: quality 100 gives crf 18,
// quality 1 gives crf 40.
func crfFor(q int) int {
	return 40 - q*22/100
}

func resolveFFmpeg(cfg Config) (string, error) {
	if cfg.FFmpegPath != "" {
		return cfg.FFmpegPath, nil
	}
	return exec.LookPath("ffmpeg")
}

func runFFmpeg(ctx context.Context, bin string, args []string) error {
	// #nosec G204 -- binary path comes from trusted config or PATH lookup, args are built internally
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %w (output: %s)", err, tailOutput(out))
	}
	return nil
}

// tailOutput keeps error messages readable when ffmpeg dumps its full
// log on stderr; the interesting part is at the end.
func tailOutput(out []byte) string {
	const keep = 512
	s := strings.TrimSpace(string(out))
	if len(s) > keep {
		s = s[len(s)-keep:]
	}
	return s
}

// partialPath keeps the container extension so ffmpeg can infer the
// output format: video.opt.mp4 becomes video.opt.partial.mp4.
func partialPath(outPath string) string {
	ext := filepath.Ext(outPath)
	return strings.TrimSuffix(outPath, ext) + ".partial" + ext
}

// finishTranscode promotes the ffmpeg output when it actually shrank
// the asset and discards it otherwise.
func finishTranscode(ctx context.Context, inPath, tmpPath, outPath string, bytesIn int64, meta map[string]string) (*backend.StageResult, error) {
	st, err := os.Stat(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("stat transcoded output: %w", err)
	}
	if st.Size() >= bytesIn {
		if err := os.Remove(tmpPath); err != nil {
			log.WithComponentFromContext(ctx, "optimize.media").Debug().Err(err).Msg("remove oversized transcode")
		}
		return passthrough(inPath, bytesIn,
			fmt.Sprintf("transcode would grow %s, keeping original", filepath.Base(inPath))), nil
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return nil, fmt.Errorf("promote transcoded output: %w", err)
	}
	return &backend.StageResult{
		OutputPath: outPath,
		BytesIn:    bytesIn,
		BytesOut:   st.Size(),
		Ratio:      backend.SavedRatio(bytesIn, st.Size()),
		Metadata:   meta,
	}, nil
}
