// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/log"
	"github.com/vaultstream/assetforge/internal/metrics"
	"github.com/vaultstream/assetforge/internal/telemetry"
)

const (
	defaultBackoff    = 200 * time.Millisecond
	defaultMaxBackoff = 2 * time.Second

	tracerName = "assetforge.pipeline"
)

// ManagerConfig configures one stage manager.
type ManagerConfig struct {
	Kind     backend.StageKind
	Registry *Registry
	Metrics  *metrics.Collector

	// Backoff is the base retry backoff (0 → 200ms); MaxBackoff caps the
	// exponential growth (0 → 2s).
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Manager executes one pipeline stage: it resolves the candidate list
// from the registry, enforces each backend's concurrency ceiling, rate
// limit, per-attempt timeout and retry budget, walks the fallback chain
// on failure and records every attempt in the metrics collector.
//
// Exactly one backend (the first to succeed) produces the StageResult.
// A ValidationError short-circuits everything: no retry, no fallback.
type Manager struct {
	kind       backend.StageKind
	registry   *Registry
	collector  *metrics.Collector
	backoff    time.Duration
	maxBackoff time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewManager creates a stage manager for cfg.Kind.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &Manager{
		kind:       cfg.Kind,
		registry:   cfg.Registry,
		collector:  cfg.Metrics,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

// Kind returns the stage kind this manager executes.
func (m *Manager) Kind() backend.StageKind { return m.kind }

// ExecRequest is one stage execution order: the backend request plus the
// selection and timeout policy for this invocation.
type ExecRequest struct {
	backend.Request

	// PreferredID names the backend tried first; its fallback chain
	// follows, then the remaining candidates by priority.
	PreferredID string

	// CumulativeTimeout charges one timeout budget across all retry
	// attempts of a candidate instead of resetting the clock per attempt.
	CumulativeTimeout bool
}

// Execute runs the stage and returns the first successful StageResult.
// It fails with *ConfigError when no backend is registered, with the
// *backend.ValidationError when the asset is rejected, with ctx.Err()
// on external cancellation, and with *AggregateError carrying every
// attempt failure when all candidates are exhausted.
func (m *Manager) Execute(ctx context.Context, req ExecRequest) (*backend.StageResult, error) {
	req.Request.Kind = m.kind

	candidates, err := m.registry.Candidates(m.kind, req.PreferredID)
	if err != nil {
		return nil, err
	}

	logger := log.WithComponentFromContext(ctx, "stage."+m.kind.String())
	tracer := telemetry.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "stage."+m.kind.String())
	span.SetAttributes(
		attribute.String(telemetry.StageKindKey, m.kind.String()),
		attribute.Int("stage.candidates", len(candidates)),
	)
	defer span.End()

	var failures []AttemptFailure
	for i, cand := range candidates {
		if i > 0 {
			logger.Debug().
				Str("event", "stage.fallback").
				Str(log.FieldBackend, cand.Descriptor.ID).
				Int("candidate", i+1).
				Msg("trying next candidate backend")
		}

		res, candFailures, fatal := m.runCandidate(ctx, tracer, logger, cand, req)
		failures = append(failures, candFailures...)

		if fatal != nil {
			span.RecordError(fatal)
			span.SetStatus(codes.Error, fatal.Error())
			return nil, fatal
		}
		if res != nil {
			span.SetAttributes(telemetry.ResultAttributes(res.BytesIn, res.BytesOut, res.Ratio)...)
			span.SetStatus(codes.Ok, "")
			return res, nil
		}
	}

	agg := &AggregateError{Stage: m.kind, Failures: failures}
	logger.Error().
		Str("event", "stage.exhausted").
		Int("candidates", len(candidates)).
		Int("attempts", len(failures)).
		Msg("all candidate backends failed")
	span.RecordError(agg)
	span.SetStatus(codes.Error, agg.Error())
	return nil, agg
}

// runCandidate drives the retry loop for a single candidate. A non-nil
// fatal error aborts the whole stage (validation rejection or external
// cancellation); otherwise the caller moves on to the next candidate.
func (m *Manager) runCandidate(ctx context.Context, tracer trace.Tracer, logger zerolog.Logger, cand *Candidate, req ExecRequest) (*backend.StageResult, []AttemptFailure, error) {
	d := cand.Descriptor
	var failures []AttemptFailure

	attemptCtx := ctx
	cancelBudget := func() {}
	if req.CumulativeTimeout {
		// One budget spans waits, retries and backoff for this candidate.
		attemptCtx, cancelBudget = context.WithTimeout(ctx, d.Timeout)
	}
	defer cancelBudget()

	for attempt := 1; attempt <= d.RetryAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepWithContext(ctx, m.backoffFor(attempt-1)); err != nil {
				failures = append(failures, AttemptFailure{BackendID: d.ID, Attempt: attempt, Err: err})
				return nil, failures, err
			}
			// The budget may have died during the backoff sleep; do not
			// burn an attempt on a dead context.
			if req.CumulativeTimeout && attemptCtx.Err() != nil {
				logger.Debug().
					Str("event", "stage.budget_spent").
					Str(log.FieldBackend, d.ID).
					Msg("cumulative timeout budget exhausted")
				break
			}
		}

		res, err := m.attempt(attemptCtx, tracer, cand, req, attempt)
		if err == nil {
			logger.Debug().
				Str("event", "stage.success").
				Str(log.FieldBackend, d.ID).
				Int(log.FieldAttempt, attempt).
				Msg("backend succeeded")
			return res, failures, nil
		}

		failures = append(failures, AttemptFailure{BackendID: d.ID, Attempt: attempt, Err: err})

		if backend.IsValidation(err) {
			return nil, failures, err
		}
		if ctx.Err() != nil {
			return nil, failures, ctx.Err()
		}
		if req.CumulativeTimeout && attemptCtx.Err() != nil {
			logger.Debug().
				Str("event", "stage.budget_spent").
				Str(log.FieldBackend, d.ID).
				Msg("cumulative timeout budget exhausted")
			break
		}
		if backend.IsPermanent(err) {
			break
		}

		logger.Debug().Err(err).
			Str("event", "stage.retry").
			Str(log.FieldBackend, d.ID).
			Int(log.FieldAttempt, attempt).
			Int("max_attempts", d.RetryAttempts).
			Msg("backend attempt failed")
	}

	return nil, failures, nil
}

// attempt performs one bounded backend call: rate admission, semaphore
// slot, timeout clock, execution, metrics. The timeout clock starts
// after the semaphore slot is held so queue wait does not eat into the
// backend's budget (except under CumulativeTimeout, where the budget
// deliberately covers everything).
func (m *Manager) attempt(ctx context.Context, tracer trace.Tracer, cand *Candidate, req ExecRequest, attempt int) (*backend.StageResult, error) {
	d := cand.Descriptor

	ctx, span := tracer.Start(ctx, "stage.attempt")
	span.SetAttributes(telemetry.AttemptAttributes(d.Kind.String(), d.ID, attempt)...)
	span.SetAttributes(attribute.Bool("retry", attempt > 1))
	defer span.End()

	if err := cand.WaitRate(ctx); err != nil {
		return nil, m.failAttempt(span, d, attempt, 0, fmt.Errorf("rate limiter: %w", err))
	}
	if err := cand.Acquire(ctx); err != nil {
		return nil, m.failAttempt(span, d, attempt, 0, fmt.Errorf("semaphore: %w", err))
	}
	defer cand.Release()

	execCtx := ctx
	cancel := func() {}
	if !req.CumulativeTimeout {
		execCtx, cancel = context.WithTimeout(ctx, d.Timeout)
	}

	start := time.Now()
	res, err := safeExecute(execCtx, cand.Impl, req.Request)
	deadlineHit := execCtx.Err() != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded)
	cancel()
	latency := time.Since(start)

	if err == nil && res == nil {
		err = fmt.Errorf("backend returned neither result nor error")
	}

	if err != nil {
		if backend.IsValidation(err) {
			// Business rejection, not an execution fault: keep the typed
			// error intact for the orchestrator.
			m.collector.RecordFailure(d.Kind.String(), d.ID, latency)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if deadlineHit {
			err = fmt.Errorf("%w after %s: %v", backend.ErrTimeout, d.Timeout, err)
		}
		return nil, m.failAttempt(span, d, attempt, latency, err)
	}

	res.Stage = d.Kind
	res.BackendID = d.ID
	if res.Duration == 0 {
		res.Duration = latency
	}

	metrics.AddStageBytes(d.Kind.String(), "in", res.BytesIn)
	metrics.AddStageBytes(d.Kind.String(), "out", res.BytesOut)
	m.collector.RecordSuccess(d.Kind.String(), d.ID, latency)

	span.SetStatus(codes.Ok, "")
	return res, nil
}

// failAttempt wraps err as an execution fault, records it and closes the
// attempt span.
func (m *Manager) failAttempt(span trace.Span, d backend.Descriptor, attempt int, latency time.Duration, err error) error {
	wrapped := backend.NewExecutionError(d.Kind, d.ID, err)
	var ee *backend.ExecutionError
	if errors.As(wrapped, &ee) && ee.Attempt == 0 {
		ee.Attempt = attempt
	}

	m.collector.RecordFailure(d.Kind.String(), d.ID, latency)
	span.RecordError(wrapped)
	span.SetStatus(codes.Error, wrapped.Error())
	return wrapped
}

// safeExecute shields the pipeline from panicking backends.
func safeExecute(ctx context.Context, impl backend.Backend, req backend.Request) (res *backend.StageResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return impl.Execute(ctx, req)
}

func (m *Manager) backoffFor(attempt int) time.Duration {
	wait := m.backoff * time.Duration(1<<attempt)
	if wait > m.maxBackoff {
		wait = m.maxBackoff
	}
	jitter := time.Duration(m.randInt63n(int64(wait/5 + 1)))
	return wait + jitter
}

func (m *Manager) randInt63n(n int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rnd.Int63n(n)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
