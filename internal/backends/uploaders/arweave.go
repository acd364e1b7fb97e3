// SPDX-License-Identifier: MIT

package uploaders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/netutil"
)

const defaultArweaveGateway = "https://arweave.net"

// Arweave posts artifacts to an arweave upload gateway, a bundler
// service that signs and settles the transaction server side, and
// reports ar://txid locations.
type Arweave struct {
	cfg     Config
	gateway string
	client  *http.Client
}

// NewArweave creates the arweave uploader against cfg.Gateway.
func NewArweave(cfg Config) (*Arweave, error) {
	gateway := cfg.Gateway
	if gateway == "" {
		gateway = defaultArweaveGateway
	}
	validated, err := netutil.ValidateEndpoint(gateway, []string{"http", "https"})
	if err != nil {
		return nil, fmt.Errorf("arweave gateway: %w", err)
	}
	return &Arweave{
		cfg:     cfg,
		gateway: strings.TrimRight(validated, "/"),
		client:  transferClient(cfg),
	}, nil
}

func (u *Arweave) Describe() backend.Descriptor {
	return descriptor("arweave", u.cfg)
}

func (u *Arweave) Execute(ctx context.Context, req backend.Request) (*backend.StageResult, error) {
	opts, _ := req.Options.(backend.UploadOptions)

	f, err := os.Open(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.gateway+"/tx", f)
	if err != nil {
		return nil, fmt.Errorf("build tx request: %w", err)
	}
	httpReq.ContentLength = st.Size()
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.Header.Set("X-File-Name", filepath.Base(req.InputPath))
	for k, v := range opts.Metadata {
		httpReq.Header.Set("X-Tag-"+k, v)
	}

	resp, err := u.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: arweave post: %v", backend.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: arweave status %d: %s", backend.ErrUnavailable, resp.StatusCode, bytes.TrimSpace(body))
		}
		return nil, fmt.Errorf("arweave status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var tx struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, fmt.Errorf("decode arweave response: %w", err)
	}
	if tx.ID == "" {
		return nil, fmt.Errorf("arweave gateway returned no transaction id")
	}

	host := u.gateway
	if parsed, err := url.Parse(u.gateway); err == nil {
		host = parsed.Host
	}

	return &backend.StageResult{
		OutputPath: req.InputPath,
		BytesIn:    st.Size(),
		BytesOut:   st.Size(),
		Location:   "ar://" + tx.ID,
		Metadata:   map[string]string{"transaction": tx.ID, "gateway": host},
	}, nil
}
