// SPDX-License-Identifier: MIT

// Package compressors provides the compression stage backends: gzip,
// zstd, brotli and lz4. All four share one streaming execution path and
// differ only in their codec. Artifacts are written atomically next to
// the input file; when an input does not shrink the original file is
// kept and the result reports a savings ratio of zero.
package compressors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/renameio/v2"

	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/log"
)

// Config tunes one compressor registration. Zero values fall back to
// the descriptor defaults; Level 0 selects the codec's own default.
type Config struct {
	Level         int
	Priority      int
	Weight        int
	MaxConcurrent int
	Timeout       time.Duration
	RetryAttempts int
	Fallbacks     []string
}

// codec is the per-algorithm surface behind the shared execution path.
type codec interface {
	id() string
	ext() string
	newWriter(w io.Writer, level int) (io.WriteCloser, error)
	newReader(r io.Reader) (io.ReadCloser, error)
}

// Compressor runs one compression algorithm as a pipeline backend.
type Compressor struct {
	codec codec
	cfg   Config
}

// New creates the compressor registered under id. Known IDs are gzip,
// zstd, brotli and lz4.
func New(id string, cfg Config) (*Compressor, error) {
	switch id {
	case "gzip":
		return NewGzip(cfg), nil
	case "zstd":
		return NewZstd(cfg), nil
	case "brotli":
		return NewBrotli(cfg), nil
	case "lz4":
		return NewLZ4(cfg), nil
	}
	return nil, fmt.Errorf("unknown compressor %q", id)
}

// IDs lists the available compressor backend IDs.
func IDs() []string {
	return []string{"gzip", "zstd", "brotli", "lz4"}
}

func newCompressor(c codec, cfg Config) *Compressor {
	return &Compressor{codec: c, cfg: cfg}
}

// Describe returns the registration descriptor for this compressor.
func (c *Compressor) Describe() backend.Descriptor {
	return backend.Descriptor{
		Kind:          backend.StageCompress,
		ID:            c.codec.id(),
		Priority:      c.cfg.Priority,
		Weight:        c.cfg.Weight,
		MaxConcurrent: c.cfg.MaxConcurrent,
		Timeout:       c.cfg.Timeout,
		RetryAttempts: c.cfg.RetryAttempts,
		Fallbacks:     c.cfg.Fallbacks,
	}
}

// Execute compresses the input file into a sibling artifact carrying the
// codec's extension. A grown output is discarded: the result then points
// back at the original file with a zero ratio and a warning.
func (c *Compressor) Execute(ctx context.Context, req backend.Request) (*backend.StageResult, error) {
	logger := log.WithComponentFromContext(ctx, "compress."+c.codec.id())

	level := c.cfg.Level
	if opts, ok := req.Options.(backend.CompressOptions); ok && opts.Level > 0 {
		level = opts.Level
	}

	in, err := os.Open(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}

	outPath := req.InputPath + c.codec.ext()
	pending, err := renameio.NewPendingFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("create pending artifact: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending artifact")
		}
	}()

	hash := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(pending, hash)}

	zw, err := c.codec.newWriter(counter, level)
	if err != nil {
		return nil, fmt.Errorf("init %s writer: %w", c.codec.id(), err)
	}
	if _, err := io.Copy(zw, readerContext(ctx, in)); err != nil {
		zw.Close()
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("flush %s stream: %w", c.codec.id(), err)
	}

	res := &backend.StageResult{
		BytesIn: st.Size(),
		Metadata: map[string]string{
			"algorithm": c.codec.id(),
			"level":     strconv.Itoa(level),
		},
	}

	if counter.n >= st.Size() {
		// Not worth keeping: the pending file is cleaned up by the
		// deferred Cleanup and the original travels on unchanged.
		res.OutputPath = req.InputPath
		res.BytesOut = st.Size()
		res.Ratio = 0
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%s would grow %s, keeping original", c.codec.id(), filepath.Base(req.InputPath)))
		logger.Debug().
			Str("event", "compress.incompressible").
			Str(log.FieldPath, req.InputPath).
			Int64("bytes_in", st.Size()).
			Int64("bytes_compressed", counter.n).
			Msg("input does not shrink, passing through")
		return res, nil
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("atomically replace artifact: %w", err)
	}

	res.OutputPath = outPath
	res.BytesOut = counter.n
	res.Ratio = backend.SavedRatio(st.Size(), counter.n)
	res.Checksum = hex.EncodeToString(hash.Sum(nil))
	return res, nil
}

// Decompress restores a compressed artifact, used by round-trip checks
// and artifact recovery.
func (c *Compressor) Decompress(dst io.Writer, src io.Reader) error {
	zr, err := c.codec.newReader(src)
	if err != nil {
		return fmt.Errorf("init %s reader: %w", c.codec.id(), err)
	}
	defer zr.Close()
	if _, err := io.Copy(dst, zr); err != nil {
		return fmt.Errorf("decompress: %w", err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// readerContext makes a blocking file copy cancelable between reads.
func readerContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
