// SPDX-License-Identifier: MIT

package server

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vaultstream/assetforge/internal/asset"
	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/log"
	"github.com/vaultstream/assetforge/internal/metrics"
	"github.com/vaultstream/assetforge/internal/pipeline"
	"github.com/vaultstream/assetforge/internal/validate"
)

// maxBatchPaths caps one submission; larger jobs belong in watch mode.
const maxBatchPaths = 256

// maxBatchBody bounds the request body. Submissions carry paths and
// options, never asset bytes.
const maxBatchBody = 1 << 20

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.cfg.Version,
	})
}

// backendStatus joins a backend's static registration with its runtime
// counters, when it has been invoked at least once.
type backendStatus struct {
	backend.Descriptor
	Stats *metrics.Snapshot `json:"stats,omitempty"`
}

func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	descs := s.api.Registry.Descriptors()

	out := make([]backendStatus, 0, len(descs))
	for _, d := range descs {
		st := backendStatus{Descriptor: d}
		if s.api.Collector != nil {
			if snap, ok := s.api.Collector.Lookup(d.Kind.String(), d.ID); ok {
				st.Stats = &snap
			}
		}
		out = append(out, st)
	}

	writeJSON(w, http.StatusOK, map[string]any{"backends": out})
}

type processBatchRequest struct {
	// Paths are local files readable by the server process.
	Paths []string `json:"paths"`
	// Options override the server's processing defaults when present.
	Options *pipeline.ProcessingOptions `json:"options,omitempty"`
}

// handleProcessBatch captures the submitted files and runs them through
// the pipeline synchronously. The response is the full batch result, so
// the request lives as long as the batch does.
func (s *Server) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "server")

	var req processBatchRequest
	body := http.MaxBytesReader(w, r.Body, maxBatchBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "paths is required")
		return
	}
	if len(req.Paths) > maxBatchPaths {
		writeError(w, http.StatusRequestEntityTooLarge, "too many paths in one batch")
		return
	}

	opts := s.api.Defaults
	if req.Options != nil {
		opts = req.Options.Normalized()
	}

	// A traversal-laden key prefix could place local uploads outside
	// the configured root.
	if opts.KeyPrefix != "" {
		pv := validate.New()
		pv.Path("options.keyPrefix", opts.KeyPrefix)
		if err := pv.Err(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	assets := make([]*asset.Info, 0, len(req.Paths))
	for _, p := range req.Paths {
		info, err := asset.Capture(p)
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldPath, p).Msg("batch submission rejected")
			writeError(w, http.StatusBadRequest, "cannot capture asset "+p+": "+err.Error())
			return
		}
		assets = append(assets, info)
	}

	logger.Info().
		Str("event", "server.batch_submitted").
		Int("assets", len(assets)).
		Msg("processing submitted batch")

	result := s.api.Coordinator.ProcessBatch(r.Context(), assets, opts)
	writeJSON(w, http.StatusOK, result)
}
