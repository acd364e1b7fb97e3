// SPDX-License-Identifier: MIT

package uploaders

import (
	"context"
	"fmt"
	"path/filepath"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"

	"github.com/vaultstream/assetforge/internal/backend"
)

// Local publishes artifacts into a directory tree and reports file://
// locations. It goes through the fileblob driver so local and remote
// destinations share one write path.
type Local struct {
	cfg    Config
	dir    string
	bucket *blob.Bucket
}

// NewLocal creates the local uploader rooted at cfg.Directory. The
// directory is created on demand.
func NewLocal(cfg Config) (*Local, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("local uploader needs a directory")
	}
	dir, err := filepath.Abs(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("resolve directory %s: %w", cfg.Directory, err)
	}
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
	if err != nil {
		return nil, fmt.Errorf("open local bucket %s: %w", dir, err)
	}
	return &Local{cfg: cfg, dir: dir, bucket: bucket}, nil
}

func (u *Local) Describe() backend.Descriptor {
	return descriptor("local", u.cfg)
}

func (u *Local) Execute(ctx context.Context, req backend.Request) (*backend.StageResult, error) {
	opts, _ := req.Options.(backend.UploadOptions)
	key := objectKey(opts.KeyPrefix, req.InputPath)

	n, sum, err := putBlob(ctx, u.bucket, key, req.InputPath, opts.Metadata)
	if err != nil {
		return nil, err
	}

	return &backend.StageResult{
		OutputPath: req.InputPath,
		BytesIn:    n,
		BytesOut:   n,
		Checksum:   sum,
		Location:   "file://" + filepath.Join(u.dir, filepath.FromSlash(key)),
		Metadata:   map[string]string{"key": key, "directory": u.dir},
	}, nil
}

// Close releases the underlying bucket.
func (u *Local) Close() error {
	return u.bucket.Close()
}
