// SPDX-License-Identifier: MIT
package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vaultstream/assetforge/internal/asset"
)

func TestOptionsFingerprintStable(t *testing.T) {
	a := ProcessingOptions{
		Optimize:             true,
		Quality:              80,
		Compress:             true,
		CompressionAlgorithm: "zstd",
		Metadata:             map[string]string{"env": "prod", "team": "media"},
	}
	b := ProcessingOptions{
		Optimize:             true,
		Quality:              80,
		Compress:             true,
		CompressionAlgorithm: "zstd",
		Metadata:             map[string]string{"team": "media", "env": "prod"},
	}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "equal options must share a fingerprint")
	assert.Len(t, a.Fingerprint(), 16)

	c := a
	c.Quality = 70
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	d := a
	d.Platform = "s3"
	assert.NotEqual(t, a.Fingerprint(), d.Fingerprint())

	e := a
	e.UseCache = true
	e.RefreshCache = true
	e.CumulativeTimeout = true
	assert.Equal(t, a.Fingerprint(), e.Fingerprint(),
		"policy knobs that cannot change the output do not change the key")
}

func TestOptionsNormalized(t *testing.T) {
	o := ProcessingOptions{Quality: 150, MaxFileSize: -1, CompressionLevel: -9}.Normalized()
	assert.Equal(t, 100, o.Quality)
	assert.Equal(t, int64(0), o.MaxFileSize)
	assert.Equal(t, 0, o.CompressionLevel)

	o = ProcessingOptions{Quality: -5}.Normalized()
	assert.Equal(t, 0, o.Quality)
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.True(t, o.Optimize)
	assert.True(t, o.Compress)
	assert.True(t, o.UseCache)
	assert.Equal(t, "gzip", o.CompressionAlgorithm)
	assert.Empty(t, o.Platform, "no upload unless a platform is named")
}

func TestOptimizerForKind(t *testing.T) {
	tests := []struct {
		kind asset.Kind
		want string
	}{
		{asset.KindImage, "image"},
		{asset.KindAudio, "audio"},
		{asset.KindVideo, "video"},
		{asset.KindModel3D, "model3d"},
		{asset.KindDocument, ""},
		{asset.KindArchive, ""},
		{asset.KindOther, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, optimizerFor(tt.kind), "kind %s", tt.kind)
	}
}

func TestValidateOptionsCarryAssetHash(t *testing.T) {
	info := testAsset("a1", "x.png", 1000, asset.KindImage)
	opts := ProcessingOptions{MaxFileSize: 42, AllowedFormats: []string{".png"}}

	vo := opts.validateOptions(info)
	assert.Equal(t, int64(42), vo.MaxFileSize)
	assert.Equal(t, []string{".png"}, vo.AllowedFormats)
	assert.Equal(t, info.SHA256, vo.ExpectedSHA256)

	assert.Empty(t, opts.validateOptions(nil).ExpectedSHA256)
}
