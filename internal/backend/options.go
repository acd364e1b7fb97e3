// SPDX-License-Identifier: MIT

package backend

// StageOptions is the sealed set of per-stage option types. Backends
// receive exactly the option type matching their stage kind and may
// ignore fields they do not understand.
type StageOptions interface {
	stageOptions()
}

// ValidateOptions parameterizes validation backends.
// MaxFileSize 0 means unlimited; an empty AllowedFormats list accepts
// every format. ExpectedSHA256, when set, lets the integrity validator
// compare against a caller-supplied digest instead of the captured one.
type ValidateOptions struct {
	MaxFileSize    int64
	AllowedFormats []string
	ExpectedSHA256 string
}

func (ValidateOptions) stageOptions() {}

// OptimizeOptions parameterizes optimizer backends. Quality is a 1-100
// scale interpreted per media type; 0 selects the backend default.
type OptimizeOptions struct {
	Quality          int
	MaxWidth         int
	MaxHeight        int
	TargetBitrate    string
	PreserveMetadata bool
}

func (OptimizeOptions) stageOptions() {}

// CompressOptions parameterizes compressor backends. Level 0 selects the
// algorithm's default level; valid ranges differ per algorithm and are
// clamped by the backend.
type CompressOptions struct {
	Level int
}

func (CompressOptions) stageOptions() {}

// UploadOptions parameterizes uploader backends. Platform names the
// preferred uploader; KeyPrefix is joined in front of the asset name to
// build the remote object key.
type UploadOptions struct {
	Platform  string
	KeyPrefix string
	Metadata  map[string]string
}

func (UploadOptions) stageOptions() {}
