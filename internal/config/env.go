// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vaultstream/assetforge/internal/log"
)

// Every ASSETFORGE_* variable resolves through lookup so the effective
// source of each setting shows up in the debug log. Values of keys that
// look like credentials are never logged.

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password") || strings.Contains(k, "secret")
}

func lookup[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	logger := log.WithComponent("config")

	raw, set := os.LookupEnv(key)
	if !set || raw == "" {
		ev := logger.Debug().Str("key", key).Str("source", "default")
		if !isSecretKey(key) {
			ev = ev.Any("default", defaultValue)
		}
		if set {
			ev.Msg("using default value (environment variable is empty)")
		} else {
			ev.Msg("using default value")
		}
		return defaultValue
	}

	value, err := parse(raw)
	if err != nil {
		ev := logger.Warn().Str("key", key)
		if !isSecretKey(key) {
			ev = ev.Str("value", raw).Any("default", defaultValue)
		}
		ev.Msgf("%v, using default", err)
		return defaultValue
	}

	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if isSecretKey(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Any("value", value)
	}
	ev.Msg("using environment variable")
	return value
}

// ParseString reads a string setting; empty and unset both mean the
// default.
func ParseString(key, defaultValue string) string {
	return lookup(key, defaultValue, func(raw string) (string, error) {
		return raw, nil
	})
}

// ParseInt reads an integer setting, keeping the default on garbage.
func ParseInt(key string, defaultValue int) int {
	return lookup(key, defaultValue, func(raw string) (int, error) {
		i, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid integer in environment variable")
		}
		return i, nil
	})
}

// ParseInt64 reads an int64 setting. Byte sizes such as file-size caps
// go through this helper; values are plain digits, no unit suffixes.
func ParseInt64(key string, defaultValue int64) int64 {
	return lookup(key, defaultValue, func(raw string) (int64, error) {
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer in environment variable")
		}
		return i, nil
	})
}

// ParseFloat reads a float64 setting, e.g. trace sampling rates.
func ParseFloat(key string, defaultValue float64) float64 {
	return lookup(key, defaultValue, func(raw string) (float64, error) {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid float in environment variable")
		}
		return f, nil
	})
}

// ParseDuration reads a Go duration setting such as "90s" or "2m30s".
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return lookup(key, defaultValue, func(raw string) (time.Duration, error) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid duration in environment variable")
		}
		return d, nil
	})
}

// ParseBool reads a boolean setting. Beyond strconv's forms it accepts
// yes/no and on/off, case-insensitively.
func ParseBool(key string, defaultValue bool) bool {
	return lookup(key, defaultValue, func(raw string) (bool, error) {
		switch strings.ToLower(raw) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return false, fmt.Errorf("invalid boolean in environment variable")
	})
}
