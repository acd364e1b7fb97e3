// SPDX-License-Identifier: MIT

// Package watch turns a directory into a hot folder: files dropped into
// it are captured and handed to the pipeline in batches once their
// write events settle.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/vaultstream/assetforge/internal/asset"
	"github.com/vaultstream/assetforge/internal/log"
	"github.com/vaultstream/assetforge/internal/metrics"
)

const defaultDebounce = 500 * time.Millisecond

// BatchFunc receives one settled group of captured assets.
type BatchFunc func(ctx context.Context, assets []*asset.Info)

// Config controls a hot-folder watcher.
type Config struct {
	// Dir is the watched directory. Subdirectories are not watched.
	Dir string
	// Debounce is how long the folder must stay quiet before the
	// accumulated files are processed. Zero selects 500ms.
	Debounce time.Duration
}

// Watcher accumulates filesystem events for a single directory and
// flushes the settled files as one batch. Files are never handed over
// while writes may still be in flight: every new event re-arms the
// debounce timer.
type Watcher struct {
	cfg    Config
	fn     BatchFunc
	fsw    *fsnotify.Watcher
	logger zerolog.Logger

	// pending is only touched from the Run loop goroutine.
	pending map[string]struct{}
}

// New creates a watcher for cfg.Dir. The directory must exist.
func New(cfg Config, fn BatchFunc) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}

	fi, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("watch path is not a directory: %s", cfg.Dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	if err := fsw.Add(cfg.Dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch directory %s: %w", cfg.Dir, err)
	}

	return &Watcher{
		cfg:     cfg,
		fn:      fn,
		fsw:     fsw,
		logger:  log.WithComponent("watch"),
		pending: make(map[string]struct{}),
	}, nil
}

// Run watches until ctx is canceled. Files already sitting in the
// folder at startup are processed like freshly dropped ones. Batches
// run on the loop goroutine, so a flush finishes before the next one
// starts.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.Debug().Err(err).Msg("close watcher")
		}
	}()

	w.logger.Info().
		Str("event", "watch.start").
		Str("dir", w.cfg.Dir).
		Dur("debounce", w.cfg.Debounce).
		Msg("watching hot folder")

	// Debounce timer, armed only while events are pending.
	timer := time.NewTimer(w.cfg.Debounce)
	defer timer.Stop()
	stopTimer(timer)

	if w.sweep() > 0 {
		timer.Reset(w.cfg.Debounce)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str("event", "watch.stop").Msg("hot folder watcher stopped")
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if w.track(event) {
				stopTimer(timer)
				timer.Reset(w.cfg.Debounce)
			}

		case <-timer.C:
			if w.flush(ctx) {
				// Files still settling, give them another window.
				timer.Reset(w.cfg.Debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			w.logger.Warn().Err(err).Str("event", "watch.error").Msg("fsnotify watcher error")
		}
	}
}

// sweep enqueues files already present in the folder and returns how
// many it found.
func (w *Watcher) sweep() int {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		w.logger.Warn().Err(err).Msg("initial folder scan failed")
		return 0
	}
	found := 0
	for _, e := range entries {
		if e.IsDir() || skipName(e.Name()) {
			continue
		}
		w.pending[filepath.Join(w.cfg.Dir, e.Name())] = struct{}{}
		found++
	}
	if found > 0 {
		w.logger.Info().
			Str("event", "watch.sweep").
			Int("files", found).
			Msg("found files already in hot folder")
	}
	return found
}

// track records an event and reports whether the debounce window should
// restart. Create covers files moved into the folder, Write covers
// in-place edits and slow copies.
func (w *Watcher) track(event fsnotify.Event) bool {
	recordOps(event.Op)

	name := filepath.Base(event.Name)
	if skipName(name) {
		return false
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		delete(w.pending, event.Name)
		return false
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}

	w.logger.Debug().
		Str("event", "watch.file_changed").
		Str("op", event.Op.String()).
		Str(log.FieldPath, event.Name).
		Msg("hot folder event")
	w.pending[event.Name] = struct{}{}
	return true
}

// flush captures every settled pending file and hands them over as one
// batch. It returns true when files remain pending, e.g. still empty
// because a writer has not flushed yet.
func (w *Watcher) flush(ctx context.Context) bool {
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	assets := make([]*asset.Info, 0, len(paths))
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			// Vanished between event and flush.
			delete(w.pending, p)
			continue
		}
		if fi.IsDir() {
			delete(w.pending, p)
			continue
		}
		if fi.Size() == 0 {
			// Create fires before data lands, keep it for the next window.
			continue
		}

		info, err := asset.Capture(p)
		if err != nil {
			w.logger.Warn().Err(err).Str(log.FieldPath, p).Msg("cannot capture hot folder file")
			delete(w.pending, p)
			continue
		}
		assets = append(assets, info)
		delete(w.pending, p)
	}

	if len(assets) > 0 {
		w.logger.Info().
			Str("event", "watch.flush").
			Int("assets", len(assets)).
			Msg("hot folder batch settled")
		w.fn(ctx, assets)
	}
	return len(w.pending) > 0
}

// skipName filters editor droppings and half-transferred files.
func skipName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tmp", ".part", ".partial", ".swp", ".crdownload":
		return true
	}
	return false
}

func recordOps(op fsnotify.Op) {
	if op.Has(fsnotify.Create) {
		metrics.RecordWatchEvent("create")
	}
	if op.Has(fsnotify.Write) {
		metrics.RecordWatchEvent("write")
	}
	if op.Has(fsnotify.Remove) {
		metrics.RecordWatchEvent("remove")
	}
	if op.Has(fsnotify.Rename) {
		metrics.RecordWatchEvent("rename")
	}
}

// stopTimer drains the timer so a later Reset cannot fire twice.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
