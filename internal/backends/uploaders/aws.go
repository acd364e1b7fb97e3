// SPDX-License-Identifier: MIT

package uploaders

import (
	"context"
	"fmt"
	"net/url"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob" // S3 driver

	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/netutil"
)

// AWS uploads artifacts to S3-compatible object stores and reports
// s3:// locations. A custom endpoint switches the driver to path-style
// addressing for MinIO, R2 and friends.
type AWS struct {
	cfg    Config
	name   string
	bucket *blob.Bucket
}

// NewAWS creates the aws uploader for cfg.Bucket. Credentials come
// from the ambient AWS environment.
func NewAWS(cfg Config) (*AWS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("aws uploader needs a bucket")
	}

	bucketURL := "s3://" + cfg.Bucket
	params := url.Values{}
	if cfg.Region != "" {
		params.Set("region", cfg.Region)
	}
	if cfg.Endpoint != "" {
		endpoint, err := netutil.ValidateEndpoint(cfg.Endpoint, []string{"http", "https"})
		if err != nil {
			return nil, fmt.Errorf("aws endpoint: %w", err)
		}
		params.Set("endpoint", endpoint)
		params.Set("s3ForcePathStyle", "true")
	}
	if len(params) > 0 {
		bucketURL += "?" + params.Encode()
	}

	bucket, err := blob.OpenBucket(context.Background(), bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open S3 bucket %s: %w", cfg.Bucket, err)
	}
	return &AWS{cfg: cfg, name: cfg.Bucket, bucket: bucket}, nil
}

func (u *AWS) Describe() backend.Descriptor {
	return descriptor("aws", u.cfg)
}

func (u *AWS) Execute(ctx context.Context, req backend.Request) (*backend.StageResult, error) {
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
		Location:   u.locate(key),
		Metadata:   map[string]string{"key": key, "bucket": u.name},
	}, nil
}

func (u *AWS) locate(key string) string {
	return "s3://" + u.name + "/" + key
}

// Close releases the underlying bucket.
func (u *AWS) Close() error {
	return u.bucket.Close()
}
