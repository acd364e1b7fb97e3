// SPDX-License-Identifier: MIT
package asset

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestCapture(t *testing.T) {
	content := []byte("not really a png but good enough")
	path := writeTemp(t, "logo.png", content)

	info, err := Capture(path)
	require.NoError(t, err)

	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "logo.png", info.Name)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, KindImage, info.Kind)

	sum := sha256.Sum256(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), info.SHA256)
	assert.False(t, info.ModTime.IsZero())
}

func TestCaptureEmptyFile(t *testing.T) {
	path := writeTemp(t, "empty.bin", nil)

	info, err := Capture(path)
	require.NoError(t, err)

	assert.Equal(t, int64(0), info.Size)
	sum := sha256.Sum256(nil)
	assert.Equal(t, hex.EncodeToString(sum[:]), info.SHA256)
}

func TestCaptureRejectsDirectory(t *testing.T) {
	_, err := Capture(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}

func TestCaptureMissingFile(t *testing.T) {
	_, err := Capture(filepath.Join(t.TempDir(), "nope.bin"))
	require.Error(t, err)
}

func TestCaptureNormalizesNFDName(t *testing.T) {
	// "é" as NFD: 'e' + combining acute accent.
	nfd := "café.txt"
	nfc := "café.txt"
	path := writeTemp(t, nfd, []byte("menu"))

	info, err := Capture(path)
	require.NoError(t, err)
	assert.Equal(t, nfc, info.Name)
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		sniff       []byte
		contentType string
		want        Kind
	}{
		{"png by extension", "a.png", nil, "application/octet-stream", KindImage},
		{"flac by extension", "track.FLAC", nil, "application/octet-stream", KindAudio},
		{"mkv by extension", "clip.mkv", nil, "application/octet-stream", KindVideo},
		{"gltf by extension", "scene.gltf", nil, "text/plain; charset=utf-8", KindModel3D},
		{"glb by magic", "scene.bin3d", []byte("glTF\x02\x00\x00\x00"), "application/octet-stream", KindModel3D},
		{"image by content type", "unknown", nil, "image/webp", KindImage},
		{"audio by content type", "unknown", nil, "audio/mpeg", KindAudio},
		{"video by content type", "unknown", nil, "video/mp4", KindVideo},
		{"pdf by content type", "unknown", nil, "application/pdf", KindDocument},
		{"zip by content type", "unknown", nil, "application/zip", KindArchive},
		{"fallback other", "mystery", nil, "application/octet-stream", KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectKind(tt.file, tt.sniff, tt.contentType))
		})
	}
}

func TestKindValid(t *testing.T) {
	assert.True(t, KindImage.Valid())
	assert.True(t, KindOther.Valid())
	assert.False(t, Kind("texture").Valid())
	assert.False(t, Kind("").Valid())
}

func TestHashFile(t *testing.T) {
	data := []byte("integrity check payload")
	path := writeTemp(t, "blob.bin", data)

	got, err := HashFile(path)
	require.NoError(t, err)

	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), got)

	_, err = HashFile(path + ".missing")
	assert.Error(t, err)
}
