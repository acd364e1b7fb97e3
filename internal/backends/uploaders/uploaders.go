// SPDX-License-Identifier: MIT

// Package uploaders provides the upload stage backends: local (fileblob
// directory tree), aws (S3-compatible object stores), ipfs (node HTTP
// API) and arweave (upload gateway). Every uploader reports a
// scheme-qualified location for the stored artifact.
package uploaders

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/platform/httpx"
)

const defaultTransferTimeout = 60 * time.Second

// Config tunes one uploader registration. Only the fields for the
// uploader being constructed are consulted.
type Config struct {
	// Directory is the local uploader's destination root.
	Directory string

	// Bucket, Region and Endpoint configure the aws uploader. Endpoint
	// is only needed for S3-compatible stores such as MinIO or R2.
	Bucket   string
	Region   string
	Endpoint string

	// APIEndpoint is the IPFS node API, e.g. http://127.0.0.1:5001.
	APIEndpoint string

	// Gateway is the arweave upload gateway.
	Gateway string

	Priority      int
	Weight        int
	MaxConcurrent int
	Timeout       time.Duration
	RetryAttempts int
	Fallbacks     []string
}

// New creates the uploader registered under id. Known IDs are local,
// aws, ipfs and arweave. Construction validates endpoints and opens
// buckets so misconfiguration surfaces at startup, not mid-batch.
func New(id string, cfg Config) (backend.Backend, error) {
	switch id {
	case "local":
		return NewLocal(cfg)
	case "aws":
		return NewAWS(cfg)
	case "ipfs":
		return NewIPFS(cfg)
	case "arweave":
		return NewArweave(cfg)
	}
	return nil, fmt.Errorf("unknown uploader %q", id)
}

// IDs lists the available uploader backend IDs.
func IDs() []string {
	return []string{"local", "aws", "ipfs", "arweave"}
}

func descriptor(id string, cfg Config) backend.Descriptor {
	return backend.Descriptor{
		Kind:          backend.StageUpload,
		ID:            id,
		Priority:      cfg.Priority,
		Weight:        cfg.Weight,
		MaxConcurrent: cfg.MaxConcurrent,
		Timeout:       cfg.Timeout,
		RetryAttempts: cfg.RetryAttempts,
		Fallbacks:     cfg.Fallbacks,
	}
}

// objectKey joins the request prefix and the artifact base name into a
// remote object key. Keys always use forward slashes.
func objectKey(prefix, inputPath string) string {
	name := filepath.Base(inputPath)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func transferClient(cfg Config) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTransferTimeout
	}
	return httpx.NewUploadClient(timeout)
}
