// SPDX-License-Identifier: MIT

package compressors

import (
	"io"

	"github.com/pierrec/lz4/v4"
)

// NewLZ4 creates the lz4 compressor backend. Levels 1-9 select the
// compression effort; 0 selects the fast default.
func NewLZ4(cfg Config) *Compressor {
	return newCompressor(lz4Codec{}, cfg)
}

var lz4Levels = []lz4.CompressionLevel{
	lz4.Fast,
	lz4.Level1, lz4.Level2, lz4.Level3,
	lz4.Level4, lz4.Level5, lz4.Level6,
	lz4.Level7, lz4.Level8, lz4.Level9,
}

type lz4Codec struct{}

func (lz4Codec) id() string  { return "lz4" }
func (lz4Codec) ext() string { return ".lz4" }

func (lz4Codec) newWriter(w io.Writer, level int) (io.WriteCloser, error) {
	switch {
	case level < 0:
		level = 0
	case level >= len(lz4Levels):
		level = len(lz4Levels) - 1
	}
	zw := lz4.NewWriter(w)
	if err := zw.Apply(lz4.CompressionLevelOption(lz4Levels[level])); err != nil {
		return nil, err
	}
	return zw, nil
}

func (lz4Codec) newReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}
