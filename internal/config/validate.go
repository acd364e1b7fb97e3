// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/vaultstream/assetforge/internal/validate"
)

var (
	uploaderIDs   = []string{"local", "aws", "ipfs", "arweave"}
	compressorIDs = []string{"gzip", "zstd", "brotli", "lz4"}
	optimizerIDs  = []string{"image", "audio", "video", "model3d"}
	validatorIDs  = []string{"file", "integrity", "virus"}
)

// Validate checks the whole configuration and reports every problem at
// once, so operators fix a broken file in one pass instead of one
// restart per mistake.
func (c *Config) Validate() error {
	v := validate.New()

	v.Custom("logLevel", c.LogLevel, func(val interface{}) error {
		s, _ := val.(string)
		if _, err := zerolog.ParseLevel(s); err != nil {
			return fmt.Errorf("unknown log level %q", s)
		}
		return nil
	})
	v.Directory("dataDir", c.DataDir, false)
	v.Custom("listen", c.Listen, validListenAddr)

	c.validateUploaders(v)
	c.validateCompressors(v)
	c.validateOptimizers(v)
	c.validateValidators(v)

	v.Positive("performance.maxConcurrentUploads", c.Performance.MaxConcurrentUploads)
	v.Positive("performance.maxConcurrentCompressions", c.Performance.MaxConcurrentCompressions)
	v.Positive("performance.maxConcurrentOptimizations", c.Performance.MaxConcurrentOptimizations)
	v.Positive("performance.maxConcurrentValidations", c.Performance.MaxConcurrentValidations)
	v.Positive("performance.batchSize", c.Performance.BatchSize)

	if c.Cache.Enabled {
		v.Duration("cache.ttl", c.Cache.TTL.Std())
		if c.Cache.Dir != "" {
			v.Directory("cache.dir", c.Cache.Dir, false)
		}
	}
	if c.Watch.Enabled {
		v.Directory("watch.dir", c.Watch.Dir, false)
		v.Duration("watch.debounce", c.Watch.Debounce.Std())
	}

	return v.Err()
}

func (c *Config) validateUploaders(v *validate.Validator) {
	if c.Uploaders.Local.Enabled {
		checkTuning(v, "uploaders.local", c.Uploaders.Local.Tuning, uploaderIDs)
		v.Directory("uploaders.local.directory", c.Uploaders.Local.Directory, false)
	}
	if c.Uploaders.AWS.Enabled {
		checkTuning(v, "uploaders.aws", c.Uploaders.AWS.Tuning, uploaderIDs)
		v.NotEmpty("uploaders.aws.bucket", c.Uploaders.AWS.Bucket)
		if c.Uploaders.AWS.Endpoint != "" {
			v.URL("uploaders.aws.endpoint", c.Uploaders.AWS.Endpoint, []string{"http", "https"})
		}
	}
	if c.Uploaders.IPFS.Enabled {
		checkTuning(v, "uploaders.ipfs", c.Uploaders.IPFS.Tuning, uploaderIDs)
		if c.Uploaders.IPFS.APIEndpoint != "" {
			v.URL("uploaders.ipfs.apiEndpoint", c.Uploaders.IPFS.APIEndpoint, []string{"http", "https"})
		}
	}
	if c.Uploaders.Arweave.Enabled {
		checkTuning(v, "uploaders.arweave", c.Uploaders.Arweave.Tuning, uploaderIDs)
		if c.Uploaders.Arweave.Gateway != "" {
			v.URL("uploaders.arweave.gateway", c.Uploaders.Arweave.Gateway, []string{"http", "https"})
		}
	}
}

func (c *Config) validateCompressors(v *validate.Validator) {
	blocks := []struct {
		name string
		cfg  CompressorConfig
		max  int
	}{
		{"gzip", c.Compressors.Gzip, 9},
		{"zstd", c.Compressors.Zstd, 4},
		{"brotli", c.Compressors.Brotli, 11},
		{"lz4", c.Compressors.LZ4, 9},
	}
	for _, b := range blocks {
		if !b.cfg.Enabled {
			continue
		}
		prefix := "compressors." + b.name
		checkTuning(v, prefix, b.cfg.Tuning, compressorIDs)
		// Level 0 means library default.
		v.Range(prefix+".level", b.cfg.Level, 0, b.max)
	}
}

func (c *Config) validateOptimizers(v *validate.Validator) {
	if c.Optimizers.Image.Enabled {
		checkTuning(v, "optimizers.image", c.Optimizers.Image.Tuning, optimizerIDs)
		v.Range("optimizers.image.quality", c.Optimizers.Image.Quality, 0, 100)
	}
	if c.Optimizers.Audio.Enabled {
		checkTuning(v, "optimizers.audio", c.Optimizers.Audio.Tuning, optimizerIDs)
		if c.Optimizers.Audio.TargetBitrate != "" {
			v.Custom("optimizers.audio.targetBitrate", c.Optimizers.Audio.TargetBitrate, validBitrate)
		}
	}
	if c.Optimizers.Video.Enabled {
		checkTuning(v, "optimizers.video", c.Optimizers.Video.Tuning, optimizerIDs)
		v.Range("optimizers.video.quality", c.Optimizers.Video.Quality, 0, 100)
	}
	if c.Optimizers.Model3D.Enabled {
		checkTuning(v, "optimizers.model3d", c.Optimizers.Model3D.Tuning, optimizerIDs)
	}
}

func (c *Config) validateValidators(v *validate.Validator) {
	if c.Validators.File.Enabled {
		checkTuning(v, "validators.file", c.Validators.File.Tuning, validatorIDs)
		if c.Validators.File.MaxFileSize < 0 {
			v.AddError("validators.file.maxFileSize", "size cannot be negative", c.Validators.File.MaxFileSize)
		}
	}
	if c.Validators.Integrity.Enabled {
		checkTuning(v, "validators.integrity", c.Validators.Integrity.Tuning, validatorIDs)
	}
	if c.Validators.Virus.Enabled {
		checkTuning(v, "validators.virus", c.Validators.Virus.Tuning, validatorIDs)
		// Empty address selects the built-in signature scanner.
		if c.Validators.Virus.ClamdAddress != "" {
			v.Custom("validators.virus.clamdAddress", c.Validators.Virus.ClamdAddress, validHostPort)
		}
	}
}

// checkTuning validates the registration knobs shared by all backends.
// Fallbacks must name backends of the same stage.
func checkTuning(v *validate.Validator, prefix string, t Tuning, known []string) {
	v.NonNegative(prefix+".priority", t.Priority)
	v.NonNegative(prefix+".weight", t.Weight)
	v.NonNegative(prefix+".maxConcurrent", t.MaxConcurrent)
	v.NonNegative(prefix+".retryAttempts", t.RetryAttempts)
	if t.Timeout < 0 {
		v.AddError(prefix+".timeout", "duration cannot be negative", t.Timeout.Std())
	}
	for _, fb := range t.Fallbacks {
		v.OneOf(prefix+".fallbacks", fb, known)
	}
}

func validListenAddr(val interface{}) error {
	s, _ := val.(string)
	if s == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	_, port, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("invalid listen address: %v", err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid listen port %q", port)
	}
	return nil
}

// validBitrate accepts ffmpeg bitrate notation: digits with an
// optional k or M suffix, e.g. 128k or 320000.
func validBitrate(val interface{}) error {
	s, _ := val.(string)
	num := s
	if n := len(s); n > 0 {
		switch s[n-1] {
		case 'k', 'K', 'm', 'M':
			num = s[:n-1]
		}
	}
	if _, err := strconv.ParseUint(num, 10, 64); err != nil {
		return fmt.Errorf("invalid bitrate %q", s)
	}
	return nil
}
