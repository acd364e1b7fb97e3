// SPDX-License-Identifier: MIT

package pipeline

import (
	"time"

	"github.com/vaultstream/assetforge/internal/asset"
	"github.com/vaultstream/assetforge/internal/backend"
)

// AssetState tracks an asset through the pipeline state machine:
// Pending → Validating → Optimizing → Compressing → Uploading →
// Completed, with Failed reachable from any processing state. Completed
// and Failed are terminal; a retry of the whole asset is a new
// ProcessAsset call.
type AssetState string

const (
	StatePending     AssetState = "pending"
	StateValidating  AssetState = "validating"
	StateOptimizing  AssetState = "optimizing"
	StateCompressing AssetState = "compressing"
	StateUploading   AssetState = "uploading"
	StateCompleted   AssetState = "completed"
	StateFailed      AssetState = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s AssetState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

var stateTransitions = map[AssetState][]AssetState{
	StatePending:     {StateValidating, StateFailed},
	StateValidating:  {StateOptimizing, StateCompressing, StateUploading, StateCompleted, StateFailed},
	StateOptimizing:  {StateCompressing, StateUploading, StateCompleted, StateFailed},
	StateCompressing: {StateUploading, StateCompleted, StateFailed},
	StateUploading:   {StateCompleted, StateFailed},
}

// CanTransition reports whether s → to is a legal state change. Skipped
// stages make the longer jumps legal (e.g. Validating → Completed when
// optimize, compress and upload are all disabled).
func (s AssetState) CanTransition(to AssetState) bool {
	for _, next := range stateTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ProcessingResult aggregates everything one ProcessAsset run produced.
// Stage pointers are nil when the stage was skipped. The value is owned
// by its caller once returned and never mutated afterwards.
type ProcessingResult struct {
	Asset *asset.Info `json:"asset"`
	RunID string      `json:"runId"`

	State   AssetState `json:"state"`
	Success bool       `json:"success"`

	Validation   *backend.StageResult `json:"validation,omitempty"`
	Optimization *backend.StageResult `json:"optimization,omitempty"`
	Compression  *backend.StageResult `json:"compression,omitempty"`
	Upload       *backend.StageResult `json:"upload,omitempty"`

	// FinalPath is the working file after the last local stage;
	// Location is the remote address when an upload ran.
	FinalPath string `json:"finalPath,omitempty"`
	Location  string `json:"location,omitempty"`

	// SizeReduction is the fraction of bytes saved between the original
	// asset and the final local artifact (0 when nothing shrank).
	SizeReduction float64 `json:"sizeReduction"`

	TotalDuration time.Duration `json:"totalDuration"`
	CompletedAt   time.Time     `json:"completedAt"`
	CacheHit      bool          `json:"cacheHit,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`

	// Err is the terminal error for programmatic inspection; Errors
	// carries the serializable rendering of the same information.
	Err error `json:"-"`
}

// StageResult returns the result recorded for one stage kind, nil if the
// stage was skipped or never reached.
func (r *ProcessingResult) StageResult(kind backend.StageKind) *backend.StageResult {
	switch kind {
	case backend.StageValidate:
		return r.Validation
	case backend.StageOptimize:
		return r.Optimization
	case backend.StageCompress:
		return r.Compression
	case backend.StageUpload:
		return r.Upload
	}
	return nil
}

func (r *ProcessingResult) setStageResult(kind backend.StageKind, res *backend.StageResult) {
	switch kind {
	case backend.StageValidate:
		r.Validation = res
	case backend.StageOptimize:
		r.Optimization = res
	case backend.StageCompress:
		r.Compression = res
	case backend.StageUpload:
		r.Upload = res
	}
}

func (r *ProcessingResult) addWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// BatchResult is the ordered outcome of one batch run. Results is
// index-aligned with the input asset list.
type BatchResult struct {
	BatchID   string              `json:"batchId"`
	Results   []*ProcessingResult `json:"results"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Duration  time.Duration       `json:"duration"`
	StartedAt time.Time           `json:"startedAt"`
}
