// SPDX-License-Identifier: MIT

// Package cache stores serialized processing results keyed by content
// hash and options fingerprint, so unchanged assets skip the pipeline
// on repeat runs. Two implementations are provided: a persistent
// badger store for long-running daemons and an in-memory store with
// TTL eviction for one-shot runs and tests.
package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL bounds how long a cached result is trusted.
const DefaultTTL = 24 * time.Hour

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

// Memory is a thread-safe in-memory result cache. All entries share
// the TTL the cache was created with.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memEntry
	stats   Stats
	stop    chan struct{}
	once    sync.Once
}

type memEntry struct {
	value      []byte
	expiration time.Time
}

func (e memEntry) expired() bool {
	return time.Now().After(e.expiration)
}

// NewMemory creates an in-memory cache whose entries live for ttl
// (DefaultTTL when zero). A positive cleanupInterval starts a janitor
// goroutine that evicts expired entries; Close stops it.
func NewMemory(ttl, cleanupInterval time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Memory{
		ttl:     ttl,
		entries: make(map[string]memEntry),
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

// Get retrieves a result. Expired or missing keys report a miss.
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.expired() {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	// copy so callers never observe later overwrites
	return append([]byte(nil), e.value...), true
}

// Set stores a result for the configured TTL.
func (c *Memory) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memEntry{
		value:      append([]byte(nil), value...),
		expiration: time.Now().Add(c.ttl),
	}
	c.stats.Sets++
	return nil
}

// Delete removes one key. Missing keys are not an error.
func (c *Memory) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Stats returns a snapshot of the counters.
func (c *Memory) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.CurrentSize = len(c.entries)
	return s
}

// Close stops the janitor. The cache stays usable afterwards.
func (c *Memory) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *Memory) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, e := range c.entries {
		if e.expired() {
			delete(c.entries, key)
			count++
		}
	}
	c.stats.Evictions += int64(count)
	return count
}

func (c *Memory) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}
