// SPDX-License-Identifier: MIT

// Package asset captures file metadata for pipeline processing: content
// kind detection, display-name normalization and content hashing.
package asset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Kind classifies an asset by its content family. It drives which
// optimizer backends are eligible for the asset.
type Kind string

const (
	KindImage    Kind = "image"
	KindAudio    Kind = "audio"
	KindVideo    Kind = "video"
	KindModel3D  Kind = "model3d"
	KindDocument Kind = "document"
	KindArchive  Kind = "archive"
	KindOther    Kind = "other"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindAudio, KindVideo, KindModel3D, KindDocument, KindArchive, KindOther:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Info describes a single asset at capture time. Hash and size refer to
// the original bytes on disk, before any pipeline stage touched them.
type Info struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	Kind        Kind      `json:"kind"`
	ContentType string    `json:"contentType"`
	SHA256      string    `json:"sha256"`
	ModTime     time.Time `json:"modTime"`
}

// sniffLen matches http.DetectContentType's maximum useful prefix.
const sniffLen = 512

// Capture stats and hashes the file at path and returns its metadata.
// The display name is NFC-normalized so assets coming from macOS (NFD
// filenames) and Linux hash and compare identically downstream.
func Capture(path string) (*Info, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path %q: %w", path, err)
	}

	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat asset: %w", err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("asset path is a directory: %s", abs)
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()

	// Single pass: the sniff prefix feeds both content detection and the hash.
	sniff := make([]byte, sniffLen)
	n, err := io.ReadFull(f, sniff)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read asset header: %w", err)
	}
	sniff = sniff[:n]

	h := sha256.New()
	h.Write(sniff)
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hash asset: %w", err)
	}

	name := norm.NFC.String(filepath.Base(abs))
	contentType := http.DetectContentType(sniff)

	return &Info{
		ID:          uuid.NewString(),
		Name:        name,
		Path:        abs,
		Size:        fi.Size(),
		Kind:        DetectKind(name, sniff, contentType),
		ContentType: contentType,
		SHA256:      hex.EncodeToString(h.Sum(nil)),
		ModTime:     fi.ModTime(),
	}, nil
}

// DetectKind infers the asset kind from the file extension, the sniffed
// header bytes and the detected content type, in that order of trust.
// Extensions win because DetectContentType cannot tell glTF from plain
// JSON or FLAC from generic binary.
func DetectKind(name string, sniff []byte, contentType string) Kind {
	if k, ok := kindByExtension[strings.ToLower(filepath.Ext(name))]; ok {
		return k
	}

	// GLB container magic, not covered by http.DetectContentType.
	if len(sniff) >= 4 && string(sniff[:4]) == "glTF" {
		return KindModel3D
	}

	switch {
	case strings.HasPrefix(contentType, "image/"):
		return KindImage
	case strings.HasPrefix(contentType, "audio/"):
		return KindAudio
	case strings.HasPrefix(contentType, "video/"):
		return KindVideo
	case strings.HasPrefix(contentType, "text/"),
		contentType == "application/pdf":
		return KindDocument
	case contentType == "application/zip",
		contentType == "application/x-gzip",
		contentType == "application/x-rar-compressed":
		return KindArchive
	}
	return KindOther
}

var kindByExtension = map[string]Kind{
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
	".gif":  KindImage,
	".webp": KindImage,
	".bmp":  KindImage,
	".svg":  KindImage,

	".mp3":  KindAudio,
	".wav":  KindAudio,
	".flac": KindAudio,
	".ogg":  KindAudio,
	".aac":  KindAudio,
	".m4a":  KindAudio,

	".mp4":  KindVideo,
	".mov":  KindVideo,
	".avi":  KindVideo,
	".mkv":  KindVideo,
	".webm": KindVideo,

	".glb":  KindModel3D,
	".gltf": KindModel3D,
	".obj":  KindModel3D,
	".fbx":  KindModel3D,
	".stl":  KindModel3D,
	".usdz": KindModel3D,

	".pdf":  KindDocument,
	".txt":  KindDocument,
	".md":   KindDocument,
	".json": KindDocument,
	".xml":  KindDocument,

	".zip": KindArchive,
	".tar": KindArchive,
	".gz":  KindArchive,
	".zst": KindArchive,
	".br":  KindArchive,
	".lz4": KindArchive,
}

// HashFile returns the hex-encoded SHA-256 of the file contents.
// Integrity validators use it to re-check assets after optimization
// stages rewrote them.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
