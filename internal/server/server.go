// SPDX-License-Identifier: MIT

// Package server exposes the assetforge HTTP surface: health and
// Prometheus endpoints plus a small JSON API for inspecting backends
// and submitting batches.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaultstream/assetforge/internal/log"
	"github.com/vaultstream/assetforge/internal/metrics"
	"github.com/vaultstream/assetforge/internal/pipeline"
)

// Config holds the HTTP server settings.
type Config struct {
	// Listen is the address to bind, e.g. ":8080".
	Listen string
	// Version is reported by the health endpoint.
	Version string

	// ReadTimeout bounds reading the request including the body.
	// Zero selects 30s.
	ReadTimeout time.Duration
	// IdleTimeout bounds keep-alive connections. Zero selects 60s.
	IdleTimeout time.Duration
	// ShutdownTimeout bounds graceful shutdown. Zero selects 15s.
	ShutdownTimeout time.Duration
}

// API bundles the pipeline dependencies the handlers work against.
type API struct {
	Coordinator *pipeline.Coordinator
	Registry    *pipeline.Registry
	Collector   *metrics.Collector
	// Defaults are the processing options applied to submitted batches
	// that do not carry their own.
	Defaults pipeline.ProcessingOptions
}

// Server is the assetforge HTTP server.
type Server struct {
	cfg    Config
	api    API
	srv    *http.Server
	logger zerolog.Logger
}

// New creates the server with its router fully wired.
func New(cfg Config, api API) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	s := &Server{
		cfg:    cfg,
		api:    api,
		logger: log.WithComponent("server"),
	}
	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.router(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout / 2,
		// No WriteTimeout: batch submissions stream results only after
		// the whole batch settled, which can take minutes.
		IdleTimeout: cfg.IdleTimeout,
	}
	return s
}

// Run serves until ctx is canceled, then shuts down gracefully. A
// listener error other than a clean close is returned as-is.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("event", "server.start").
			Str("listen", s.cfg.Listen).
			Msg("HTTP server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	s.logger.Info().Str("event", "server.stop").Msg("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
