// SPDX-License-Identifier: MIT

package validators

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vaultstream/assetforge/internal/backend"
)

// File checks the basic shape of an asset file: it must be a non-empty
// regular file, within the size limit, and carry an allowed extension.
type File struct {
	cfg Config
}

// NewFile creates the file validator backend.
func NewFile(cfg Config) *File {
	return &File{cfg: cfg}
}

func (v *File) Describe() backend.Descriptor {
	return descriptor("file", v.cfg)
}

func (v *File) Execute(_ context.Context, req backend.Request) (*backend.StageResult, error) {
	opts, _ := req.Options.(backend.ValidateOptions)

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = v.cfg.MaxFileSize
	}
	formats := opts.AllowedFormats
	if len(formats) == 0 {
		formats = v.cfg.AllowedFormats
	}

	st, err := os.Stat(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}

	if !st.Mode().IsRegular() {
		return nil, &backend.ValidationError{
			BackendID: "file",
			Rule:      "regular_file",
			Reason:    fmt.Sprintf("%s is not a regular file", filepath.Base(req.InputPath)),
		}
	}
	if st.Size() == 0 {
		return nil, &backend.ValidationError{
			BackendID: "file",
			Rule:      "empty_file",
			Reason:    fmt.Sprintf("%s is empty", filepath.Base(req.InputPath)),
		}
	}
	if maxSize > 0 && st.Size() > maxSize {
		return nil, &backend.ValidationError{
			BackendID: "file",
			Rule:      "max_file_size",
			Reason:    fmt.Sprintf("%d bytes exceeds the %d byte limit", st.Size(), maxSize),
		}
	}

	ext := strings.ToLower(filepath.Ext(req.InputPath))
	if len(formats) > 0 && !formatAllowed(ext, formats) {
		return nil, &backend.ValidationError{
			BackendID: "file",
			Rule:      "allowed_formats",
			Reason:    fmt.Sprintf("format %q is not in the allowed list", ext),
		}
	}

	return &backend.StageResult{
		BytesIn:  st.Size(),
		BytesOut: st.Size(),
		Metadata: map[string]string{
			"format":     ext,
			"size_bytes": strconv.FormatInt(st.Size(), 10),
		},
	}, nil
}

// formatAllowed matches ext against the list, tolerating entries with or
// without the leading dot and any casing.
func formatAllowed(ext string, formats []string) bool {
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		if f == ext {
			return true
		}
	}
	return false
}
