// SPDX-License-Identifier: MIT

package backend

import (
	"time"

	"github.com/vaultstream/assetforge/internal/validate"
)

// Registration defaults applied by Descriptor.Normalized.
const (
	DefaultPriority      = 100
	DefaultMaxConcurrent = 4
	DefaultTimeout       = 30 * time.Second
	DefaultRetryAttempts = 1
)

// Descriptor is the static registration record for a backend: identity,
// ordering hints and execution limits. It is created once at registration
// and read-only afterwards.
//
// Priority orders candidates ascending (lower runs first), Weight breaks
// priority ties descending. RetryAttempts is the total number of calls
// made to the backend per stage execution, each bounded by Timeout.
// Fallbacks lists backend IDs tried, in order, after this backend's
// attempts are exhausted. RatePerSec/RateBurst optionally throttle
// attempt starts; zero means unlimited.
type Descriptor struct {
	Kind          StageKind     `json:"kind"`
	ID            string        `json:"id"`
	Priority      int           `json:"priority"`
	Weight        int           `json:"weight"`
	MaxConcurrent int           `json:"maxConcurrent"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retryAttempts"`
	Fallbacks     []string      `json:"fallbacks,omitempty"`
	RatePerSec    float64       `json:"ratePerSec,omitempty"`
	RateBurst     int           `json:"rateBurst,omitempty"`
}

// Normalized returns a copy of d with zero-valued limits replaced by the
// registration defaults. Priority 0 is meaningful ("run first"), so only
// negative priorities are lifted to the default.
func (d Descriptor) Normalized() Descriptor {
	out := d
	if out.Priority < 0 {
		out.Priority = DefaultPriority
	}
	if out.MaxConcurrent <= 0 {
		out.MaxConcurrent = DefaultMaxConcurrent
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.RetryAttempts <= 0 {
		out.RetryAttempts = DefaultRetryAttempts
	}
	if out.RateBurst <= 0 && out.RatePerSec > 0 {
		out.RateBurst = 1
	}
	return out
}

// Validate checks the descriptor for registration. Call on the
// normalized copy; the registry does both.
func (d Descriptor) Validate() error {
	v := validate.New()

	if !d.Kind.Valid() {
		v.AddError("kind", "unknown stage kind", string(d.Kind))
	}
	v.NotEmpty("id", d.ID)
	v.NonNegative("weight", d.Weight)
	v.Positive("maxConcurrent", d.MaxConcurrent)
	v.Duration("timeout", d.Timeout)
	v.Positive("retryAttempts", d.RetryAttempts)
	if d.RatePerSec < 0 {
		v.AddError("ratePerSec", "rate must not be negative", d.RatePerSec)
	}

	for _, fb := range d.Fallbacks {
		if fb == d.ID {
			v.AddError("fallbacks", "backend cannot list itself as fallback", fb)
		}
		if fb == "" {
			v.AddError("fallbacks", "fallback id cannot be empty", fb)
		}
	}

	return v.Err()
}
