// SPDX-License-Identifier: MIT

package compressors

import (
	"io"

	"github.com/andybalholm/brotli"
)

// NewBrotli creates the brotli compressor backend. Levels 0-11 per the
// brotli scale; 0 selects the library default.
func NewBrotli(cfg Config) *Compressor {
	return newCompressor(brotliCodec{}, cfg)
}

type brotliCodec struct{}

func (brotliCodec) id() string  { return "brotli" }
func (brotliCodec) ext() string { return ".br" }

func (brotliCodec) newWriter(w io.Writer, level int) (io.WriteCloser, error) {
	switch {
	case level <= 0:
		level = brotli.DefaultCompression
	case level > brotli.BestCompression:
		level = brotli.BestCompression
	}
	return brotli.NewWriterLevel(w, level), nil
}

func (brotliCodec) newReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(brotli.NewReader(r)), nil
}
