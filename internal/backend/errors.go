// SPDX-License-Identifier: MIT

package backend

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the pipeline boundary.
	ErrUnsupported = errors.New("backend: unsupported asset or format")
	ErrUnavailable = errors.New("backend: dependency unavailable")
	ErrTimeout     = errors.New("backend: attempt timed out")
	ErrExecution   = errors.New("backend: execution failed")
)

// ExecutionError is a rich error type wrapping the sentinel errors with
// attempt context. Every internal backend fault (bad input, I/O failure,
// unsupported format) surfaces as one of these; the pipeline retries it
// and walks the fallback chain.
type ExecutionError struct {
	Sentinel  error
	Stage     StageKind
	BackendID string
	Attempt   int
	Err       error // Nested lower-level error (e.g. fs or net error)
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("%s/%s: %v", e.Stage, e.BackendID, e.Sentinel)
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d)", msg, e.Attempt)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Sentinel
}

// NewExecutionError wraps err as an execution fault of the given backend.
// If err already is an *ExecutionError it is returned unchanged so
// backends can pre-classify their own faults.
func NewExecutionError(kind StageKind, backendID string, err error) error {
	if err == nil {
		return nil
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return err
	}
	sentinel := ErrExecution
	switch {
	case errors.Is(err, ErrUnsupported):
		sentinel = ErrUnsupported
	case errors.Is(err, ErrUnavailable):
		sentinel = ErrUnavailable
	case errors.Is(err, ErrTimeout):
		sentinel = ErrTimeout
	}
	return &ExecutionError{
		Sentinel:  sentinel,
		Stage:     kind,
		BackendID: backendID,
		Err:       err,
	}
}

// ValidationError reports that an asset failed a validation rule. It is
// a business rejection, not an infrastructure fault: the pipeline does
// not retry it, does not fall back, and marks the asset failed.
type ValidationError struct {
	BackendID string
	Rule      string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("validation failed (%s/%s): %s", e.BackendID, e.Rule, e.Reason)
	}
	return fmt.Sprintf("validation failed (%s): %s", e.BackendID, e.Reason)
}

// IsValidation reports whether err is (or wraps) an asset validation
// rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPermanent reports whether retrying the same backend cannot help:
// validation rejections and unsupported-format faults. Fallback
// candidates may still be tried for the latter.
func IsPermanent(err error) bool {
	return IsValidation(err) || errors.Is(err, ErrUnsupported)
}
