// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogs redirects the package logger into a buffer for one test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	Configure(Config{Output: io.Discard})

	var buf bytes.Buffer
	orig := base
	base = zerolog.New(&buf)
	t.Cleanup(func() { base = orig })
	return &buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func serveThrough(h http.HandlerFunc, target string) {
	wrapped := Middleware()(h)
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
}

func TestMiddlewareLogsSuccess(t *testing.T) {
	buf := captureLogs(t)

	serveThrough(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}, "/api/v1/backends")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "http.request", entry["event"])
	assert.Equal(t, http.MethodGet, entry["method"])
	assert.Equal(t, "/api/v1/backends", entry[FieldPath])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
	assert.Equal(t, float64(2), entry["bytes"])
}

func TestMiddlewareWarnsOnClientError(t *testing.T) {
	buf := captureLogs(t)

	serveThrough(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}, "/missing")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
}

func TestMiddlewareErrorsOnServerError(t *testing.T) {
	buf := captureLogs(t)

	serveThrough(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, "/broken")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, float64(http.StatusServiceUnavailable), entry["status"])
}

func TestMiddlewareDefaultsSilentHandlerToOK(t *testing.T) {
	buf := captureLogs(t)

	serveThrough(func(w http.ResponseWriter, r *http.Request) {}, "/silent")

	entry := decodeEntry(t, buf)
	assert.Equal(t, float64(http.StatusOK), entry["status"])
	assert.Equal(t, float64(0), entry["bytes"])
}

func TestStatusWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}

	sw.WriteHeader(http.StatusTeapot)
	sw.WriteHeader(http.StatusOK)
	_, err := sw.Write([]byte("short and stout"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusTeapot, sw.status)
	assert.Equal(t, int64(15), sw.bytes)
}
