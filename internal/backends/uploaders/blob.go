// SPDX-License-Identifier: MIT

package uploaders

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"gocloud.dev/blob"
)

// putBlob streams the artifact into the bucket under key, attaching
// meta as blob attributes, and returns the byte count and sha256 of
// what went over the wire.
func putBlob(ctx context.Context, bucket *blob.Bucket, key, inputPath string, meta map[string]string) (int64, string, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return 0, "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{Metadata: meta})
	if err != nil {
		return 0, "", fmt.Errorf("create writer for %s: %w", key, err)
	}

	hash := sha256.New()
	n, err := io.Copy(w, io.TeeReader(f, hash))
	if err != nil {
		_ = w.Close()
		return 0, "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return 0, "", fmt.Errorf("close writer for %s: %w", key, err)
	}
	return n, hex.EncodeToString(hash.Sum(nil)), nil
}
