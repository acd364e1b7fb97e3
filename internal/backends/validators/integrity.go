// SPDX-License-Identifier: MIT

package validators

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vaultstream/assetforge/internal/asset"
	"github.com/vaultstream/assetforge/internal/backend"
)

// Integrity recomputes the file's SHA-256 and compares it against the
// digest captured when the asset entered the pipeline. A mismatch means
// the file changed (or was corrupted) between capture and validation.
type Integrity struct {
	cfg Config
}

// NewIntegrity creates the integrity validator backend.
func NewIntegrity(cfg Config) *Integrity {
	return &Integrity{cfg: cfg}
}

func (v *Integrity) Describe() backend.Descriptor {
	return descriptor("integrity", v.cfg)
}

func (v *Integrity) Execute(_ context.Context, req backend.Request) (*backend.StageResult, error) {
	expected := ""
	if opts, ok := req.Options.(backend.ValidateOptions); ok {
		expected = opts.ExpectedSHA256
	}
	if expected == "" && req.Asset != nil {
		expected = req.Asset.SHA256
	}
	if expected == "" {
		return nil, &backend.ValidationError{
			BackendID: "integrity",
			Rule:      "sha256",
			Reason:    "no expected digest to compare against",
		}
	}

	sum, err := asset.HashFile(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("hash input: %w", err)
	}
	if !strings.EqualFold(sum, expected) {
		return nil, &backend.ValidationError{
			BackendID: "integrity",
			Rule:      "sha256",
			Reason:    fmt.Sprintf("digest %s does not match expected %s", sum, expected),
		}
	}

	st, err := os.Stat(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	return &backend.StageResult{
		BytesIn:  st.Size(),
		BytesOut: st.Size(),
		Checksum: sum,
		Metadata: map[string]string{"sha256": sum},
	}, nil
}
