// SPDX-License-Identifier: MIT

package optimizers

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
	xdraw "golang.org/x/image/draw"

	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/log"
)

// Image re-encodes JPEG and PNG assets at a target quality and scales
// them down to fit requested bounds. Formats the stdlib cannot decode
// are reported unsupported so a fallback optimizer can take over.
type Image struct {
	cfg Config
}

// NewImage creates the image optimizer backend.
func NewImage(cfg Config) *Image {
	return &Image{cfg: cfg}
}

func (o *Image) Describe() backend.Descriptor {
	return descriptor("image", o.cfg)
}

func (o *Image) Execute(ctx context.Context, req backend.Request) (*backend.StageResult, error) {
	opts, _ := req.Options.(backend.OptimizeOptions)
	q := quality(o.cfg, opts)
	logger := log.WithComponentFromContext(ctx, "optimize.image")

	size, err := inputSize(req.InputPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", backend.ErrUnsupported, err)
	}
	if format != "jpeg" && format != "png" {
		return nil, fmt.Errorf("%w: no re-encoder for %s images", backend.ErrUnsupported, format)
	}

	before := img.Bounds()
	img = fitWithin(img, opts.MaxWidth, opts.MaxHeight)
	after := img.Bounds()
	scaled := !after.Eq(before)

	outPath := optimizedPath(req.InputPath)
	pending, err := renameio.NewPendingFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("create pending artifact: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending artifact")
		}
	}()

	counter := &countWriter{w: pending}
	switch format {
	case "jpeg":
		err = jpeg.Encode(counter, img, &jpeg.Options{Quality: q})
	case "png":
		enc := &png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(counter, img)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}

	if counter.n >= size && !scaled {
		logger.Debug().
			Str("event", "optimize.no_gain").
			Str(log.FieldPath, req.InputPath).
			Int64("bytes_in", size).
			Int64("bytes_encoded", counter.n).
			Msg("re-encode does not shrink, passing through")
		return passthrough(req.InputPath, size,
			fmt.Sprintf("re-encode would grow %s, keeping original", filepath.Base(req.InputPath))), nil
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("atomically replace artifact: %w", err)
	}

	res := &backend.StageResult{
		OutputPath: outPath,
		BytesIn:    size,
		BytesOut:   counter.n,
		Ratio:      backend.SavedRatio(size, counter.n),
		Metadata: map[string]string{
			"format":  format,
			"quality": strconv.Itoa(q),
			"width":   strconv.Itoa(after.Dx()),
			"height":  strconv.Itoa(after.Dy()),
		},
	}
	if opts.PreserveMetadata {
		res.Warnings = append(res.Warnings, "re-encoding always strips embedded metadata")
	}
	return res, nil
}

// fitWithin scales img down to fit inside maxW x maxH, preserving the
// aspect ratio. Zero limits leave that axis unconstrained; images
// already inside the box are never upscaled.
func fitWithin(img image.Image, maxW, maxH int) image.Image {
	if maxW <= 0 && maxH <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}
	if scale >= 1.0 {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale+0.5), int(float64(h)*scale+0.5)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// optimizedPath derives the artifact name: photo.png -> photo.opt.png.
func optimizedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".opt" + ext
}

type countWriter struct {
	w io.Writer
	n int64
}

func (cw *countWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
