// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/vaultstream/assetforge/internal/log"
)

const gcInterval = 5 * time.Minute

// Badger is a persistent result cache backed by an embedded badger
// store. Entries carry a TTL so stale results age out between runs.
type Badger struct {
	db     *badger.DB
	ttl    time.Duration
	logger zerolog.Logger
	stop   chan struct{}
	once   sync.Once
}

// NewBadger opens (or creates) the store under dir and starts the
// background value-log garbage collector.
func NewBadger(dir string, ttl time.Duration) (*Badger, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := log.WithComponent("cache")

	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(badgerLogger{logger}))
	if err != nil {
		return nil, fmt.Errorf("open result cache %s: %w", dir, err)
	}

	c := &Badger{
		db:     db,
		ttl:    ttl,
		logger: logger,
		stop:   make(chan struct{}),
	}
	go c.gcLoop()
	return c, nil
}

// Get retrieves a result. Storage errors are logged and reported as a
// miss so a broken cache degrades to cold runs instead of failing the
// pipeline.
func (c *Badger) Get(_ context.Context, key string) ([]byte, bool) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case err == nil:
		return value, true
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, false
	default:
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return nil, false
	}
}

// Set stores a result for the configured TTL.
func (c *Badger) Set(_ context.Context, key string, value []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), value).WithTTL(c.ttl))
	})
	if err != nil {
		return fmt.Errorf("cache write %s: %w", key, err)
	}
	return nil
}

// Delete removes one key. Missing keys are not an error.
func (c *Badger) Delete(key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Close stops garbage collection and closes the store.
func (c *Badger) Close() error {
	c.once.Do(func() { close(c.stop) })
	return c.db.Close()
}

// gcLoop reclaims value-log space in the background. ErrNoRewrite just
// means there was nothing worth collecting.
func (c *Badger) gcLoop() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				err := c.db.RunValueLogGC(0.5)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						c.logger.Debug().Err(err).Msg("value log gc")
					}
					break
				}
			}
		case <-c.stop:
			return
		}
	}
}

// badgerLogger adapts zerolog to badger's printf-style logger. Badger
// is chatty at info level, so info goes to debug.
type badgerLogger struct {
	l zerolog.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error().Msg(badgerMsg(format, args))
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn().Msg(badgerMsg(format, args))
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Debug().Msg(badgerMsg(format, args))
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug().Msg(badgerMsg(format, args))
}

func badgerMsg(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
