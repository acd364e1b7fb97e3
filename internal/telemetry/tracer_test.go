// SPDX-License-Identifier: MIT
package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewProviderDisabledInstallsNoop(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		Enabled:      false,
		ServiceName:  "assetforge-test",
		ExporterType: "grpc",
	})
	require.NoError(t, err)
	assert.Nil(t, provider.tp, "disabled provider must carry no SDK state")

	_, span := otel.Tracer("assetforge-test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording(), "noop spans must not record")
	span.End()

	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "assetforge-test",
		ExporterType: "invalid",
	})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: invalid (supported: grpc, http)", err.Error())
}

func TestSamplerForClampsRate(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", samplerFor(1.5).Description())
	assert.Equal(t, "AlwaysOnSampler", samplerFor(1.0).Description())
	assert.Equal(t, "AlwaysOffSampler", samplerFor(0).Description())
	assert.Equal(t, "AlwaysOffSampler", samplerFor(-0.2).Description())
	assert.Contains(t, samplerFor(0.5).Description(), "TraceIDRatioBased")
}

func TestTracerReturnsUsableTracer(t *testing.T) {
	tracer := Tracer("pipeline")
	require.NotNil(t, tracer)
	_, span := tracer.Start(context.Background(), "stage.execute")
	span.End()
}

func TestAttemptAttributes(t *testing.T) {
	attrs := AttemptAttributes("compress", "gzip", 2)
	require.Len(t, attrs, 3)

	want := map[attribute.Key]string{
		StageKindKey:    "compress",
		StageBackendKey: "gzip",
	}
	for _, a := range attrs {
		if expected, ok := want[a.Key]; ok {
			assert.Equal(t, expected, a.Value.AsString(), "attribute %s", a.Key)
		}
	}
}

func TestAssetAttributesSkipsEmpty(t *testing.T) {
	attrs := AssetAttributes("", "image", 0)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key(AssetKindKey), attrs[0].Key)

	assert.Len(t, AssetAttributes("a-1", "video", 2048), 3)
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(nil, "execution")
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key(ErrorKey), attrs[0].Key)
	assert.True(t, attrs[0].Value.AsBool(), "error attribute must be true")
}
