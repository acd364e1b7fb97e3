// SPDX-License-Identifier: MIT

package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/vaultstream/assetforge/internal/log"
)

// Batch submissions run the full pipeline, so they get a much tighter
// rate than read-only endpoints.
const (
	apiRequestsPerMinute   = 600
	batchRequestsPerMinute = 30
)

func (s *Server) router() *chi.Mux {
	r := chi.NewRouter()

	// Recoverer first, correlation next, then observability wrappers.
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(tracing("assetforge"))
	r.Use(log.Middleware())

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metricsHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(apiRequestsPerMinute, time.Minute))

		r.Get("/backends", s.handleBackends)
		r.With(rateLimit(batchRequestsPerMinute, time.Minute)).
			Post("/batches", s.handleProcessBatch)
	})

	return r
}

// tracing wraps handlers with OpenTelemetry HTTP instrumentation.
// Health and metrics scrapes are not traced to keep the noise down.
func tracing(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			service,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithFilter(func(r *http.Request) bool {
				switch r.URL.Path {
				case "/healthz", "/metrics":
					return false
				}
				return true
			}),
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return operation + " " + r.Method + " " + r.URL.Path
			}),
		)
	}
}

// rateLimit applies a sliding-window per-IP limit with a JSON 429.
func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","detail":"Too many requests. Please try again later."}`))
		}),
	)
}
