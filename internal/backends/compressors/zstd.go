// SPDX-License-Identifier: MIT

package compressors

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// NewZstd creates the zstd compressor backend. Levels follow the zstd
// scale (1-22) and are mapped onto the library's speed tiers.
func NewZstd(cfg Config) *Compressor {
	return newCompressor(zstdCodec{}, cfg)
}

type zstdCodec struct{}

func (zstdCodec) id() string  { return "zstd" }
func (zstdCodec) ext() string { return ".zst" }

func (zstdCodec) newWriter(w io.Writer, level int) (io.WriteCloser, error) {
	enc := zstd.SpeedDefault
	if level > 0 {
		enc = zstd.EncoderLevelFromZstd(level)
	}
	return zstd.NewWriter(w,
		zstd.WithEncoderLevel(enc),
		zstd.WithEncoderConcurrency(1),
	)
}

func (zstdCodec) newReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}
