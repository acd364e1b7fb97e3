// SPDX-License-Identifier: MIT

// Package httpx builds the hardened HTTP clients assetforge uses to
// talk to upload gateways and sidecar services. Two profiles exist:
// a short-deadline control client for probes and small API calls, and
// a transfer client sized for multi-megabyte artifact uploads.
package httpx

import (
	"net"
	"net/http"
	"time"
)

const (
	controlTimeout       = 5 * time.Second
	controlDialTimeout   = 3 * time.Second
	controlHeaderTimeout = 3 * time.Second

	transferTimeout       = 5 * time.Minute
	transferDialTimeout   = 10 * time.Second
	transferHeaderTimeout = 30 * time.Second

	idleConnTimeout        = 90 * time.Second
	expectContinueTimeout  = 1 * time.Second
	maxIdleConns           = 16
	maxIdleConnsPerGateway = 8
)

// NewClient returns a control-plane client with conservative dial and
// response-header caps. Suitable for health probes and small JSON
// calls, not for artifact transfers.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = controlTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport(capAt(timeout, controlDialTimeout), capAt(timeout, controlHeaderTimeout), false),
	}
}

// NewUploadClient returns a client tuned for streaming artifact bodies
// to a single gateway host. The response-header cap is generous because
// gateways hash or pin the payload after the body is fully written, and
// transport compression is off since upload bodies arrive pre-compressed
// from the pipeline.
func NewUploadClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = transferTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport(capAt(timeout, transferDialTimeout), capAt(timeout, transferHeaderTimeout), true),
	}
}

func transport(dial, header time.Duration, upload bool) *http.Transport {
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dial, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxIdleConnsPerGateway,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   dial,
		ResponseHeaderTimeout: header,
		ExpectContinueTimeout: expectContinueTimeout,
	}
	if upload {
		t.DisableCompression = true
	}
	return t
}

func capAt(d, ceiling time.Duration) time.Duration {
	if d > ceiling {
		return ceiling
	}
	return d
}
