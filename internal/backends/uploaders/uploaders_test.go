// SPDX-License-Identifier: MIT

package uploaders

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultstream/assetforge/internal/backend"
)

func writeArtifact(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func uploadReq(path string, opts backend.UploadOptions) backend.Request {
	return backend.Request{
		Kind:      backend.StageUpload,
		InputPath: path,
		Options:   opts,
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "photo.png.gz", objectKey("", "/tmp/photo.png.gz"))
	assert.Equal(t, "out/photo.png.gz", objectKey("out", "/tmp/photo.png.gz"))
	assert.Equal(t, "out/photo.png.gz", objectKey("out/", "/tmp/photo.png.gz"))
	assert.Equal(t, "a/b/photo.png.gz", objectKey("/a/b/", "/tmp/photo.png.gz"))
}

func TestLocalUploaderWritesArtifact(t *testing.T) {
	dest := t.TempDir()
	content := "artifact-bytes"
	in := writeArtifact(t, "photo.png.gz", content)

	u, err := NewLocal(Config{Directory: dest})
	require.NoError(t, err)
	defer u.Close()

	res, err := u.Execute(context.Background(), uploadReq(in, backend.UploadOptions{
		KeyPrefix: "out",
		Metadata:  map[string]string{"assetId": "a1"},
	}))
	require.NoError(t, err)

	assert.Equal(t, "file://"+filepath.Join(dest, "out", "photo.png.gz"), res.Location)
	assert.Equal(t, int64(len(content)), res.BytesIn)
	assert.Equal(t, "out/photo.png.gz", res.Metadata["key"])

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), res.Checksum)

	stored, err := os.ReadFile(filepath.Join(dest, "out", "photo.png.gz"))
	require.NoError(t, err)
	assert.Equal(t, content, string(stored))
}

func TestLocalUploaderWithoutPrefix(t *testing.T) {
	dest := t.TempDir()
	in := writeArtifact(t, "model.glb", "glb")

	u, err := NewLocal(Config{Directory: dest})
	require.NoError(t, err)
	defer u.Close()

	res, err := u.Execute(context.Background(), uploadReq(in, backend.UploadOptions{}))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dest, "model.glb"), res.Location)
	assert.FileExists(t, filepath.Join(dest, "model.glb"))
}

func TestLocalUploaderRequiresDirectory(t *testing.T) {
	_, err := NewLocal(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}

func TestLocalUploaderMissingArtifact(t *testing.T) {
	u, err := NewLocal(Config{Directory: t.TempDir()})
	require.NoError(t, err)
	defer u.Close()

	_, err = u.Execute(context.Background(),
		uploadReq(filepath.Join(t.TempDir(), "gone.bin"), backend.UploadOptions{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open artifact")
}

func TestAWSUploaderRequiresBucket(t *testing.T) {
	_, err := NewAWS(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestAWSUploaderRejectsBadEndpoint(t *testing.T) {
	_, err := NewAWS(Config{Bucket: "assets", Endpoint: "ftp://minio.local"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aws endpoint")
}

func TestAWSLocation(t *testing.T) {
	u := &AWS{name: "assets-prod"}
	assert.Equal(t, "s3://assets-prod/out/x.gz", u.locate("out/x.gz"))
}

func TestIPFSUploaderAddsArtifact(t *testing.T) {
	content := "pinned payload"
	in := writeArtifact(t, "photo.png.gz", content)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v0/add", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("cid-version"))
		assert.Equal(t, "true", r.URL.Query().Get("pin"))

		mr, err := r.MultipartReader()
		require.NoError(t, err)
		part, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "file", part.FormName())
		assert.Equal(t, "photo.png.gz", part.FileName())
		body, err := io.ReadAll(part)
		require.NoError(t, err)
		assert.Equal(t, content, string(body))

		_, _ = w.Write([]byte(`{"Name":"photo.png.gz","Hash":"bafybeigdyrzt5example","Size":"14"}`))
	}))
	defer srv.Close()

	u, err := NewIPFS(Config{APIEndpoint: srv.URL})
	require.NoError(t, err)

	res, err := u.Execute(context.Background(), uploadReq(in, backend.UploadOptions{}))
	require.NoError(t, err)

	assert.Equal(t, "ipfs://bafybeigdyrzt5example", res.Location)
	assert.Equal(t, "bafybeigdyrzt5example", res.Metadata["cid"])
	assert.Equal(t, int64(len(content)), res.BytesIn)
}

func TestIPFSUploaderNodeDownIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	api := srv.URL
	srv.Close()

	u, err := NewIPFS(Config{APIEndpoint: api})
	require.NoError(t, err)

	in := writeArtifact(t, "x.bin", "data")
	_, err = u.Execute(context.Background(), uploadReq(in, backend.UploadOptions{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrUnavailable)
}

func TestIPFSUploaderStatusClassification(t *testing.T) {
	newServer := func(status int) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", status)
		}))
	}

	t.Run("server error is unavailable", func(t *testing.T) {
		srv := newServer(http.StatusInternalServerError)
		defer srv.Close()
		u, err := NewIPFS(Config{APIEndpoint: srv.URL})
		require.NoError(t, err)

		in := writeArtifact(t, "x.bin", "data")
		_, err = u.Execute(context.Background(), uploadReq(in, backend.UploadOptions{}))
		assert.ErrorIs(t, err, backend.ErrUnavailable)
	})

	t.Run("client error is permanent", func(t *testing.T) {
		srv := newServer(http.StatusBadRequest)
		defer srv.Close()
		u, err := NewIPFS(Config{APIEndpoint: srv.URL})
		require.NoError(t, err)

		in := writeArtifact(t, "x.bin", "data")
		_, err = u.Execute(context.Background(), uploadReq(in, backend.UploadOptions{}))
		require.Error(t, err)
		assert.NotErrorIs(t, err, backend.ErrUnavailable)
		assert.Contains(t, err.Error(), "status 400")
	})
}

func TestIPFSUploaderEndpointValidation(t *testing.T) {
	_, err := NewIPFS(Config{APIEndpoint: "ftp://node:5001"})
	require.Error(t, err)

	u, err := NewIPFS(Config{})
	require.NoError(t, err)
	assert.Equal(t, defaultIPFSAPI, u.api)
}

func TestArweaveUploaderPostsTransaction(t *testing.T) {
	content := "permanent bytes"
	in := writeArtifact(t, "scene.opt.gltf", content)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tx", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		assert.Equal(t, "scene.opt.gltf", r.Header.Get("X-File-Name"))
		assert.Equal(t, "prod", r.Header.Get("X-Tag-env"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, content, string(body))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"tx-abc123"}`))
	}))
	defer srv.Close()

	u, err := NewArweave(Config{Gateway: srv.URL})
	require.NoError(t, err)

	res, err := u.Execute(context.Background(), uploadReq(in, backend.UploadOptions{
		Metadata: map[string]string{"env": "prod"},
	}))
	require.NoError(t, err)

	assert.Equal(t, "ar://tx-abc123", res.Location)
	assert.Equal(t, "tx-abc123", res.Metadata["transaction"])
	assert.Equal(t, int64(len(content)), res.BytesIn)
}

func TestArweaveUploaderGatewayErrors(t *testing.T) {
	t.Run("unavailable on server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		u, err := NewArweave(Config{Gateway: srv.URL})
		require.NoError(t, err)

		in := writeArtifact(t, "x.bin", "data")
		_, err = u.Execute(context.Background(), uploadReq(in, backend.UploadOptions{}))
		assert.ErrorIs(t, err, backend.ErrUnavailable)
	})

	t.Run("missing transaction id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()
		u, err := NewArweave(Config{Gateway: srv.URL})
		require.NoError(t, err)

		in := writeArtifact(t, "x.bin", "data")
		_, err = u.Execute(context.Background(), uploadReq(in, backend.UploadOptions{}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no transaction id")
	})
}

func TestUploaderFactory(t *testing.T) {
	assert.Equal(t, []string{"local", "aws", "ipfs", "arweave"}, IDs())

	u, err := New("local", Config{Directory: t.TempDir(), Priority: 3})
	require.NoError(t, err)
	desc := u.Describe()
	assert.Equal(t, backend.StageUpload, desc.Kind)
	assert.Equal(t, "local", desc.ID)
	assert.Equal(t, 3, desc.Priority)

	_, err = New("ipfs", Config{})
	require.NoError(t, err)

	_, err = New("aws", Config{})
	require.Error(t, err, "factory propagates construction errors")

	_, err = New("gcs", Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gcs")
}
