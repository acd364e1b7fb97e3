// SPDX-License-Identifier: MIT

package pipeline

import (
	"fmt"
	"strings"

	"github.com/vaultstream/assetforge/internal/backend"
)

// ConfigError reports an invalid registration or an unresolvable stage
// configuration. It is returned at wiring time, never during asset
// processing, so callers can fail fast on startup.
type ConfigError struct {
	Op        string // "register" or "resolve"
	Kind      backend.StageKind
	BackendID string
	Reason    string
}

func (e *ConfigError) Error() string {
	if e.BackendID != "" {
		return fmt.Sprintf("pipeline config: %s %s/%s: %s", e.Op, e.Kind, e.BackendID, e.Reason)
	}
	return fmt.Sprintf("pipeline config: %s %s: %s", e.Op, e.Kind, e.Reason)
}

// AttemptFailure records a single failed backend attempt. Every attempt
// of every candidate is collected, not only the last one, so an
// AggregateError tells the full story of a failed stage.
type AttemptFailure struct {
	BackendID string
	Attempt   int
	Err       error
}

func (f AttemptFailure) String() string {
	return fmt.Sprintf("%s#%d: %v", f.BackendID, f.Attempt, f.Err)
}

// AggregateError reports that every candidate backend for a stage,
// including the full fallback chain, was exhausted. It is fatal for the
// stage and, by the fixed stage ordering, for the remainder of the
// asset's pipeline.
type AggregateError struct {
	Stage    backend.StageKind
	Failures []AttemptFailure
}

func (e *AggregateError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("%s: no backend could be attempted", e.Stage)
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%s: all candidates exhausted after %d attempts: %s",
		e.Stage, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes every attempt error for errors.Is/As inspection.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
