// SPDX-License-Identifier: MIT

package compressors

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

// NewGzip creates the gzip compressor backend. Levels 1-9 map straight
// onto gzip levels; 0 selects the library default.
func NewGzip(cfg Config) *Compressor {
	return newCompressor(gzipCodec{}, cfg)
}

type gzipCodec struct{}

func (gzipCodec) id() string  { return "gzip" }
func (gzipCodec) ext() string { return ".gz" }

func (gzipCodec) newWriter(w io.Writer, level int) (io.WriteCloser, error) {
	switch {
	case level <= 0:
		level = gzip.DefaultCompression
	case level > gzip.BestCompression:
		level = gzip.BestCompression
	}
	return gzip.NewWriterLevel(w, level)
}

func (gzipCodec) newReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}
