// SPDX-License-Identifier: MIT

// Package validators provides the validation stage backends: file
// (size, format and shape rules), virus (clamd INSTREAM or built-in
// signature scan) and integrity (content hash comparison). Validators
// never modify the asset; a rule violation is a ValidationError, which
// the pipeline treats as terminal for the asset.
package validators

import (
	"fmt"
	"time"

	"github.com/vaultstream/assetforge/internal/backend"
)

// Config tunes one validator registration. Most fields feed the
// descriptor; MaxFileSize and AllowedFormats are defaults for requests
// that do not set their own, ClamdAddress switches the virus validator
// to a real clamd daemon.
type Config struct {
	MaxFileSize    int64
	AllowedFormats []string

	ClamdAddress string
	DialTimeout  time.Duration

	Priority      int
	Weight        int
	MaxConcurrent int
	Timeout       time.Duration
	RetryAttempts int
	Fallbacks     []string
}

// New creates the validator registered under id. Known IDs are file,
// virus and integrity.
func New(id string, cfg Config) (backend.Backend, error) {
	switch id {
	case "file":
		return NewFile(cfg), nil
	case "virus":
		return NewVirus(cfg), nil
	case "integrity":
		return NewIntegrity(cfg), nil
	}
	return nil, fmt.Errorf("unknown validator %q", id)
}

// IDs lists the available validator backend IDs.
func IDs() []string {
	return []string{"file", "virus", "integrity"}
}

func descriptor(id string, cfg Config) backend.Descriptor {
	return backend.Descriptor{
		Kind:          backend.StageValidate,
		ID:            id,
		Priority:      cfg.Priority,
		Weight:        cfg.Weight,
		MaxConcurrent: cfg.MaxConcurrent,
		Timeout:       cfg.Timeout,
		RetryAttempts: cfg.RetryAttempts,
		Fallbacks:     cfg.Fallbacks,
	}
}
