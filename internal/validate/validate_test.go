// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name           string
		value          string
		allowedSchemes []string
		wantErr        bool
	}{
		{"valid http", "http://example.com", []string{"http", "https"}, false},
		{"valid https", "https://storage.example.com", []string{"http", "https"}, false},
		{"empty url", "", []string{"http"}, true},
		{"no host", "http://", []string{"http"}, true},
		{"invalid scheme", "ftp://example.com", []string{"http", "https"}, true},
		{"no scheme", "example.com", []string{"http"}, true},
		{"with port", "http://example.com:9000", []string{"http"}, false},
		{"with path", "https://example.com/bucket", []string{"https"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("testURL", tt.value, tt.allowedSchemes)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_Port(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{"valid port 80", 80, false},
		{"valid port 8080", 8080, false},
		{"valid port 65535", 65535, false},
		{"valid port 1", 1, false},
		{"invalid port 0", 0, true},
		{"invalid port -1", -1, true},
		{"invalid port 65536", 65536, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Port("testPort", tt.port)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_Duration(t *testing.T) {
	tests := []struct {
		name    string
		value   time.Duration
		wantErr bool
	}{
		{"positive", 30 * time.Second, false},
		{"one nanosecond", time.Nanosecond, false},
		{"zero", 0, true},
		{"negative", -time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Duration("timeout", tt.value)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_OneOf(t *testing.T) {
	allowed := []string{"validate", "optimize", "compress", "upload"}

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"first", "validate", false},
		{"last", "upload", false},
		{"unknown", "transcode", true},
		{"empty", "", true},
		{"case sensitive", "Validate", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.OneOf("stage", tt.value, allowed)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_NotEmpty(t *testing.T) {
	v := New()
	v.NotEmpty("id", "image-optimizer")
	v.NotEmpty("platform", "")
	v.NotEmpty("whitespace", "   ")

	if v.IsValid() {
		t.Fatal("expected errors for empty values")
	}
	if got := len(v.Errors()); got != 2 {
		t.Errorf("expected 2 errors, got %d: %v", got, v.Errors())
	}
}

func TestValidator_PositiveAndNonNegative(t *testing.T) {
	v := New()
	v.Positive("maxConcurrent", 4)
	v.Positive("batchSize", 0)
	v.NonNegative("retryAttempts", 0)
	v.NonNegative("weight", -1)

	errs := v.Errors()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Field != "batchSize" || errs[1].Field != "weight" {
		t.Errorf("unexpected error fields: %v", errs)
	}
}

func TestValidator_ErrAggregation(t *testing.T) {
	v := New()
	if v.Err() != nil {
		t.Fatalf("empty validator should yield nil error, got %v", v.Err())
	}

	v.AddError("a", "first problem", 1)
	v.AddError("b", "second problem", 2)

	err := v.Err()
	if err == nil {
		t.Fatal("expected aggregated error")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Errors()) != 2 {
		t.Errorf("expected 2 wrapped errors, got %d", len(verr.Errors()))
	}
	if !strings.Contains(err.Error(), "first problem") || !strings.Contains(err.Error(), "second problem") {
		t.Errorf("aggregated message incomplete: %s", err.Error())
	}
}

func TestValidator_Path(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"empty allowed", "", false},
		{"simple relative", "assets/logo.png", false},
		{"absolute rejected", "/etc/passwd", true},
		{"traversal rejected", "../escape.bin", true},
		{"embedded traversal", "assets/../../escape.bin", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Path("input", tt.path)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_PathWithinRoot(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative inside", "out/artifact.gz", false},
		{"absolute", filepath.Join(root, "x.bin"), true},
		{"traversal", "../outside.bin", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.PathWithinRoot("output", tt.path, root)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_Directory(t *testing.T) {
	tmpDir := t.TempDir()

	v := New()
	v.Directory("workDir", tmpDir, true)
	if !v.IsValid() {
		t.Fatalf("existing directory rejected: %v", v.Err())
	}

	v = New()
	v.Directory("workDir", filepath.Join(tmpDir, "missing"), true)
	if v.IsValid() {
		t.Fatal("missing directory with mustExist should fail")
	}

	v = New()
	created := filepath.Join(tmpDir, "autocreate")
	v.Directory("workDir", created, false)
	if !v.IsValid() {
		t.Fatalf("auto-create failed: %v", v.Err())
	}
}
