// SPDX-License-Identifier: MIT

package optimizers

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/log"
)

// glbMagic is the little-endian GLB header tag "glTF".
const glbMagic = 0x46546C67

// Model3D handles glTF model assets. Text documents (.gltf) are
// minified, binary containers (.glb) are validated and passed through
// since their payload is already packed. Anything else is unsupported.
type Model3D struct {
	cfg Config
}

// NewModel3D creates the 3D model optimizer backend.
func NewModel3D(cfg Config) *Model3D {
	return &Model3D{cfg: cfg}
}

func (o *Model3D) Describe() backend.Descriptor {
	return descriptor("model3d", o.cfg)
}

func (o *Model3D) Execute(ctx context.Context, req backend.Request) (*backend.StageResult, error) {
	switch strings.ToLower(filepath.Ext(req.InputPath)) {
	case ".gltf":
		return o.minifyDocument(ctx, req.InputPath)
	case ".glb":
		return o.validateContainer(req.InputPath)
	default:
		return nil, fmt.Errorf("%w: no optimizer for %s models", backend.ErrUnsupported, filepath.Ext(req.InputPath))
	}
}

func (o *Model3D) minifyDocument(ctx context.Context, path string) (*backend.StageResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	size := int64(len(raw))

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("%w: parse glTF document: %v", backend.ErrUnsupported, err)
	}
	if int64(buf.Len()) >= size {
		return passthrough(path, size, fmt.Sprintf("%s is already minified", filepath.Base(path))), nil
	}

	outPath := optimizedPath(path)
	if err := renameio.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write minified document: %w", err)
	}

	log.WithComponentFromContext(ctx, "optimize.model3d").Debug().
		Str(log.FieldPath, path).
		Int64("bytes_in", size).
		Int("bytes_out", buf.Len()).
		Msg("minified glTF document")

	return &backend.StageResult{
		OutputPath: outPath,
		BytesIn:    size,
		BytesOut:   int64(buf.Len()),
		Ratio:      backend.SavedRatio(size, int64(buf.Len())),
		Metadata:   map[string]string{"format": "gltf"},
	}, nil
}

// validateContainer checks the 12 byte GLB header without touching the
// payload. A valid container is returned unchanged.
func (o *Model3D) validateContainer(path string) (*backend.StageResult, error) {
	size, err := inputSize(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("%w: read GLB header: %v", backend.ErrUnsupported, err)
	}
	if binary.LittleEndian.Uint32(header[0:4]) != glbMagic {
		return nil, fmt.Errorf("%w: not a GLB container", backend.ErrUnsupported)
	}
	if version := binary.LittleEndian.Uint32(header[4:8]); version != 2 {
		return nil, fmt.Errorf("%w: unsupported GLB version %d", backend.ErrUnsupported, version)
	}
	if declared := binary.LittleEndian.Uint32(header[8:12]); int64(declared) != size {
		return nil, fmt.Errorf("%w: GLB header declares %d bytes, file has %d", backend.ErrUnsupported, declared, size)
	}

	return &backend.StageResult{
		OutputPath: path,
		BytesIn:    size,
		BytesOut:   size,
		Metadata:   map[string]string{"format": "glb", "gltf_version": "2"},
	}, nil
}
