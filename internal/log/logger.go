// SPDX-License-Identifier: MIT

// Package log provides structured logging for assetforge built on zerolog.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stderr)
	Service string    // optional service name attached to every log entry
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure initialises the global zerolog logger exactly once. Later
// calls are no-ops; use SetLevel to change the level afterwards.
func Configure(cfg Config) {
	once.Do(func() {
		zerolog.SetGlobalLevel(resolveLevel(cfg.Level))
		zerolog.TimeFieldFormat = time.RFC3339
		base = zerolog.New(resolveWriter(cfg.Output)).With().
			Timestamp().
			Str("service", resolveService(cfg.Service)).
			Logger()
	})
}

// resolveLevel prefers the explicit level, then ASSETFORGE_LOG_LEVEL,
// then info. Unparseable levels fall through to the next source.
func resolveLevel(explicit string) zerolog.Level {
	for _, candidate := range []string{explicit, os.Getenv("ASSETFORGE_LOG_LEVEL")} {
		if candidate == "" {
			continue
		}
		if parsed, err := zerolog.ParseLevel(candidate); err == nil {
			return parsed
		}
	}
	return zerolog.InfoLevel
}

func resolveWriter(w io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return os.Stderr
}

func resolveService(service string) string {
	if service != "" {
		return service
	}
	if env := os.Getenv("ASSETFORGE_LOG_SERVICE"); env != "" {
		return env
	}
	return "assetforge"
}

// SetLevel adjusts the global level after Configure has run, e.g. once
// the effective configuration is known. Unknown levels are ignored.
func SetLevel(level string) {
	if parsed, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(parsed)
	}
}

func logger() zerolog.Logger {
	Configure(Config{})
	return base
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str(FieldComponent, component).Logger()
}
