// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRunID   = "run_id"
	FieldBatchID = "batch_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldBackend   = "backend"
	FieldAttempt   = "attempt"

	// Asset fields
	FieldAsset = "asset"
	FieldPath  = "path"
	FieldKind  = "kind"
	FieldHash  = "hash"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
