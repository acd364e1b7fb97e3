// SPDX-License-Identifier: MIT

// Package backend defines the contract between the pipeline and its
// pluggable stage implementations: stage kinds, the Backend interface,
// execution requests/results and the error taxonomy shared by all
// validators, optimizers, compressors and uploaders.
package backend

import (
	"context"
	"time"

	"github.com/vaultstream/assetforge/internal/asset"
)

// StageKind identifies one of the four fixed pipeline stages.
type StageKind string

const (
	StageValidate StageKind = "validate"
	StageOptimize StageKind = "optimize"
	StageCompress StageKind = "compress"
	StageUpload   StageKind = "upload"
)

// Stages returns all stage kinds in pipeline execution order.
// The order is fixed: validate, optimize, compress, upload.
func Stages() []StageKind {
	return []StageKind{StageValidate, StageOptimize, StageCompress, StageUpload}
}

// Valid reports whether k names a known stage kind.
func (k StageKind) Valid() bool {
	switch k {
	case StageValidate, StageOptimize, StageCompress, StageUpload:
		return true
	}
	return false
}

// Order returns the position of k in the pipeline (0-based).
// Unknown kinds sort last.
func (k StageKind) Order() int {
	switch k {
	case StageValidate:
		return 0
	case StageOptimize:
		return 1
	case StageCompress:
		return 2
	case StageUpload:
		return 3
	}
	return 4
}

func (k StageKind) String() string { return string(k) }

// Request carries everything a backend needs for one execution attempt.
// InputPath is the current working file: the original asset for the first
// stage, the previous stage's output afterwards. Options holds the
// stage-specific option set; backends type-switch on it.
type Request struct {
	Kind      StageKind
	InputPath string
	Asset     *asset.Info
	Options   StageOptions
}

// StageResult is the outcome of one successful backend execution.
// Exactly one backend produces the StageResult for a given stage.
type StageResult struct {
	Stage      StageKind         `json:"stage"`
	BackendID  string            `json:"backendId"`
	OutputPath string            `json:"outputPath,omitempty"`
	BytesIn    int64             `json:"bytesIn"`
	BytesOut   int64             `json:"bytesOut"`
	Ratio      float64           `json:"ratio"`
	Checksum   string            `json:"checksum,omitempty"`
	Location   string            `json:"location,omitempty"`
	Duration   time.Duration     `json:"duration"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// SavedRatio computes the byte reduction achieved by the stage.
// A stage that could not improve the asset reports ratio 0, never an error.
func SavedRatio(bytesIn, bytesOut int64) float64 {
	if bytesIn <= 0 || bytesOut >= bytesIn {
		return 0
	}
	return 1 - float64(bytesOut)/float64(bytesIn)
}

// Backend is one pluggable stage implementation. Execute must be safe for
// concurrent use up to the declared MaxConcurrent; the pipeline enforces
// the ceiling, the backend must merely tolerate it. Execute must honor
// ctx cancellation on anything blocking.
type Backend interface {
	Describe() Descriptor
	Execute(ctx context.Context, req Request) (*StageResult, error)
}
