// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Stage attributes
	StageKindKey     = "stage.kind"
	StageBackendKey  = "stage.backend"
	StageAttemptKey  = "stage.attempt"
	StageBytesInKey  = "stage.bytes_in"
	StageBytesOutKey = "stage.bytes_out"
	StageRatioKey    = "stage.ratio"

	// Asset attributes
	AssetIDKey   = "asset.id"
	AssetKindKey = "asset.kind"
	AssetSizeKey = "asset.size_bytes"

	// Batch attributes
	BatchIDKey    = "batch.id"
	BatchSizeKey  = "batch.size"
	BatchGroupKey = "batch.group"

	// Cache attributes
	CacheHitKey = "cache.hit"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// AttemptAttributes creates span attributes for one backend attempt.
func AttemptAttributes(stage, backendID string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StageKindKey, stage),
		attribute.String(StageBackendKey, backendID),
		attribute.Int(StageAttemptKey, attempt),
	}
}

// AssetAttributes creates asset-related span attributes.
func AssetAttributes(id, kind string, size int64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if id != "" {
		attrs = append(attrs, attribute.String(AssetIDKey, id))
	}
	if kind != "" {
		attrs = append(attrs, attribute.String(AssetKindKey, kind))
	}
	if size > 0 {
		attrs = append(attrs, attribute.Int64(AssetSizeKey, size))
	}
	return attrs
}

// BatchAttributes creates batch-related span attributes.
func BatchAttributes(batchID string, size, group int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(BatchIDKey, batchID),
		attribute.Int(BatchSizeKey, size),
		attribute.Int(BatchGroupKey, group),
	}
}

// ResultAttributes creates span attributes for a completed stage result.
func ResultAttributes(bytesIn, bytesOut int64, ratio float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(StageBytesInKey, bytesIn),
		attribute.Int64(StageBytesOutKey, bytesOut),
		attribute.Float64(StageRatioKey, ratio),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
