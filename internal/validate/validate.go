// SPDX-License-Identifier: MIT

// Package validate collects configuration findings instead of failing
// on the first one, so a bad config file reports every problem at once.
package validate

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Error is a single finding against one field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Validator accumulates findings. The zero value is not usable; call New.
type Validator struct {
	errors []Error
}

// ValidationError bundles every finding of one validation run.
type ValidationError struct {
	errors []Error
}

func New() *Validator {
	return &Validator{errors: make([]Error, 0)}
}

// AddError records a finding directly. The check methods below all
// funnel through it.
func (v *Validator) AddError(field, message string, value any) {
	v.errors = append(v.errors, Error{Field: field, Value: value, Message: message})
}

func (v *Validator) failf(field string, value any, format string, args ...any) {
	v.AddError(field, fmt.Sprintf(format, args...), value)
}

// IsValid reports whether no finding has been recorded yet.
func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

// Errors exposes the accumulated findings in recording order.
func (v *Validator) Errors() []Error { return v.errors }

// Err returns nil when everything passed, otherwise a ValidationError
// holding a snapshot of the findings.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	snap := make([]Error, len(v.errors))
	copy(snap, v.errors)
	return ValidationError{errors: snap}
}

// Errors returns the individual findings behind the bundled error.
func (e ValidationError) Errors() []Error { return e.errors }

func (e ValidationError) Error() string {
	switch len(e.errors) {
	case 0:
		return ""
	case 1:
		return e.errors[0].Error()
	}
	parts := make([]string, len(e.errors))
	for i, err := range e.errors {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

// URL requires a parseable URL with a host and, when allowedSchemes is
// non-empty, one of the given schemes.
func (v *Validator) URL(field, value string, allowedSchemes []string) {
	if value == "" {
		v.AddError(field, "URL cannot be empty", value)
		return
	}
	u, err := url.Parse(value)
	if err != nil {
		v.failf(field, value, "invalid URL: %v", err)
		return
	}
	if u.Host == "" {
		v.AddError(field, "URL must have a host", value)
		return
	}
	if len(allowedSchemes) == 0 {
		return
	}
	for _, scheme := range allowedSchemes {
		if u.Scheme == scheme {
			return
		}
	}
	v.failf(field, value, "unsupported URL scheme %q (allowed: %v)", u.Scheme, allowedSchemes)
}

// Port requires a TCP port in 1..65535.
func (v *Validator) Port(field string, port int) {
	if port <= 0 || port > 65535 {
		v.failf(field, port, "port must be between 1 and 65535, got %d", port)
	}
}

// Range requires minVal <= value <= maxVal.
func (v *Validator) Range(field string, value, minVal, maxVal int) {
	if value < minVal || value > maxVal {
		v.failf(field, value, "value must be between %d and %d, got %d", minVal, maxVal, value)
	}
}

// Directory requires a usable directory path. With mustExist the
// directory has to be there already; without it a missing directory is
// created, so config validation doubles as workspace setup for the
// data, watch and upload roots.
func (v *Validator) Directory(field, path string, mustExist bool) {
	if path == "" {
		v.AddError(field, "directory path cannot be empty", path)
		return
	}
	if strings.Contains(path, "..") {
		v.AddError(field, "path contains traversal sequences (..)", path)
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		v.failf(field, path, "invalid path: %v", err)
		return
	}

	info, err := os.Stat(abs)
	switch {
	case err == nil:
		if !info.IsDir() {
			v.AddError(field, "path is not a directory", path)
		}
	case os.IsNotExist(err):
		if mustExist {
			v.AddError(field, "directory does not exist", path)
			return
		}
		if err := os.MkdirAll(abs, 0750); err != nil {
			v.failf(field, path, "cannot create directory: %v", err)
		}
	default:
		v.failf(field, path, "cannot access directory: %v", err)
	}
}

// NotEmpty rejects empty and whitespace-only values.
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

// OneOf requires value to match one of allowed exactly.
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.failf(field, value, "value must be one of %v, got %q", allowed, value)
}

// Positive requires value > 0.
func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.failf(field, value, "value must be positive, got %d", value)
	}
}

// NonNegative requires value >= 0.
func (v *Validator) NonNegative(field string, value int) {
	if value < 0 {
		v.failf(field, value, "value cannot be negative, got %d", value)
	}
}

// Duration requires value > 0.
func (v *Validator) Duration(field string, value time.Duration) {
	if value <= 0 {
		v.failf(field, value, "duration must be positive, got %s", value)
	}
}

// Custom runs an arbitrary check and records its error as a finding.
func (v *Validator) Custom(field string, value any, check func(any) error) {
	if err := check(value); err != nil {
		v.AddError(field, err.Error(), value)
	}
}

// localRelative rejects absolute paths and traversal, and returns the
// cleaned path when it stays local. Empty paths pass through untouched
// since most path fields are optional.
func (v *Validator) localRelative(field, path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if filepath.IsAbs(path) {
		v.failf(field, path, "must be relative path, got absolute: %s", path)
		return "", false
	}
	if strings.Contains(path, "..") {
		v.failf(field, path, "contains path traversal: %s", path)
		return "", false
	}
	cleaned := filepath.Clean(path)
	if !filepath.IsLocal(cleaned) {
		v.failf(field, path, "is not a local path: %s", path)
		return "", false
	}
	return cleaned, true
}

// Path requires a relative, traversal-free path. Existing files are
// additionally checked through their symlink targets, so a link cannot
// smuggle a confined-looking name out of the tree.
func (v *Validator) Path(field, path string) {
	cleaned, ok := v.localRelative(field, path)
	if !ok {
		return
	}
	if _, err := os.Stat(cleaned); err != nil {
		return
	}
	resolved, err := filepath.EvalSymlinks(cleaned)
	if err != nil {
		v.failf(field, path, "symlink resolution failed: %v", err)
		return
	}
	if !filepath.IsLocal(resolved) {
		v.failf(field, path, "resolves to non-local path: %s", resolved)
	}
}

// PathWithinRoot requires a relative path that, joined with rootDir,
// cannot leave it. Paths that do not exist yet pass on structure alone;
// existing files must also resolve inside the root after following
// symlinks on both sides.
func (v *Validator) PathWithinRoot(field, path, rootDir string) {
	cleaned, ok := v.localRelative(field, path)
	if !ok {
		return
	}
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		v.failf(field, path, "cannot resolve root directory: %v", err)
		return
	}

	full := filepath.Join(absRoot, cleaned)
	info, err := os.Stat(full)
	if err != nil {
		return
	}
	if info.IsDir() {
		v.failf(field, path, "path points to directory, expected file: %s", path)
		return
	}
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		v.failf(field, path, "symlink resolution failed: %v", err)
		return
	}
	resolvedRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		resolvedRoot = absRoot
	}
	rel, err := filepath.Rel(resolvedRoot, resolved)
	if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		v.failf(field, path, "path escapes root directory: %s", path)
	}
}
