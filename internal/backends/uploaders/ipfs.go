// SPDX-License-Identifier: MIT

package uploaders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/netutil"
)

const defaultIPFSAPI = "http://127.0.0.1:5001"

// IPFS adds artifacts to an IPFS node over its HTTP API and reports
// ipfs://CID locations. The node pins what it receives; content
// addressing makes key prefixes meaningless here.
type IPFS struct {
	cfg    Config
	api    string
	client *http.Client
}

// NewIPFS creates the ipfs uploader against cfg.APIEndpoint, falling
// back to the conventional local node address.
func NewIPFS(cfg Config) (*IPFS, error) {
	api := cfg.APIEndpoint
	if api == "" {
		api = defaultIPFSAPI
	}
	validated, err := netutil.ValidateEndpoint(api, []string{"http", "https"})
	if err != nil {
		return nil, fmt.Errorf("ipfs api endpoint: %w", err)
	}
	return &IPFS{
		cfg:    cfg,
		api:    strings.TrimRight(validated, "/"),
		client: transferClient(cfg),
	}, nil
}

func (u *IPFS) Describe() backend.Descriptor {
	return descriptor("ipfs", u.cfg)
}

func (u *IPFS) Execute(ctx context.Context, req backend.Request) (*backend.StageResult, error) {
	f, err := os.Open(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(req.InputPath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	addURL := u.api + "/api/v0/add?cid-version=1&pin=true"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, addURL, pr)
	if err != nil {
		return nil, fmt.Errorf("build add request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ipfs add: %v", backend.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: ipfs add status %d: %s", backend.ErrUnavailable, resp.StatusCode, bytes.TrimSpace(body))
		}
		return nil, fmt.Errorf("ipfs add status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var added struct {
		Name string `json:"Name"`
		Hash string `json:"Hash"`
		Size string `json:"Size"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return nil, fmt.Errorf("decode ipfs response: %w", err)
	}
	if added.Hash == "" {
		return nil, fmt.Errorf("ipfs add returned no CID")
	}

	return &backend.StageResult{
		OutputPath: req.InputPath,
		BytesIn:    st.Size(),
		BytesOut:   st.Size(),
		Location:   "ipfs://" + added.Hash,
		Metadata:   map[string]string{"cid": added.Hash, "pinned": "true"},
	}, nil
}
