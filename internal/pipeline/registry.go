// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/log"
)

// Candidate pairs a registered backend with its descriptor and the
// shared execution limits derived from it. The semaphore and limiter are
// created once at registration so every stage manager and every asset
// shares the same per-backend ceiling.
type Candidate struct {
	Descriptor backend.Descriptor
	Impl       backend.Backend

	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// Acquire blocks until one of the backend's MaxConcurrent slots is free
// or ctx is done.
func (c *Candidate) Acquire(ctx context.Context) error {
	return c.sem.Acquire(ctx, 1)
}

// Release frees a slot taken by Acquire.
func (c *Candidate) Release() {
	c.sem.Release(1)
}

// WaitRate blocks until the backend's rate limiter admits another
// attempt. Backends without a configured rate pass immediately.
func (c *Candidate) WaitRate(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// Registry is the per-stage-kind table of registered backends.
// Registration happens at startup; afterwards the registry is
// effectively read-only and safe for concurrent resolution.
type Registry struct {
	mu    sync.RWMutex
	kinds map[backend.StageKind]map[string]*Candidate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[backend.StageKind]map[string]*Candidate),
	}
}

// Register adds a backend under its descriptor's stage kind and ID.
// The descriptor is normalized (defaults applied) and validated first.
// Registering the same ID twice for one kind is a configuration error.
func (r *Registry) Register(desc backend.Descriptor, impl backend.Backend) error {
	if impl == nil {
		return &ConfigError{Op: "register", Kind: desc.Kind, BackendID: desc.ID, Reason: "backend implementation is nil"}
	}

	desc = desc.Normalized()
	if err := desc.Validate(); err != nil {
		return &ConfigError{Op: "register", Kind: desc.Kind, BackendID: desc.ID, Reason: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byID, ok := r.kinds[desc.Kind]
	if !ok {
		byID = make(map[string]*Candidate)
		r.kinds[desc.Kind] = byID
	}
	if _, dup := byID[desc.ID]; dup {
		return &ConfigError{Op: "register", Kind: desc.Kind, BackendID: desc.ID, Reason: "already registered"}
	}

	cand := &Candidate{
		Descriptor: desc,
		Impl:       impl,
		sem:        semaphore.NewWeighted(int64(desc.MaxConcurrent)),
	}
	if desc.RatePerSec > 0 {
		cand.limiter = rate.NewLimiter(rate.Limit(desc.RatePerSec), desc.RateBurst)
	}
	byID[desc.ID] = cand

	log.WithComponent("registry").Debug().
		Str("event", "registry.register").
		Str(log.FieldStage, desc.Kind.String()).
		Str(log.FieldBackend, desc.ID).
		Int("priority", desc.Priority).
		Int("max_concurrent", desc.MaxConcurrent).
		Msg("backend registered")

	return nil
}

// Candidates resolves the ordered candidate list for one stage
// execution: the preferred backend first (when named and registered),
// then its fallback chain in declared order, then every other backend
// for the kind sorted by ascending priority, descending weight, then ID.
// Fallback entries naming unregistered backends are skipped.
// Resolving a kind with zero registered backends is a configuration error.
func (r *Registry) Candidates(kind backend.StageKind, preferredID string) ([]*Candidate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byID := r.kinds[kind]
	if len(byID) == 0 {
		return nil, &ConfigError{Op: "resolve", Kind: kind, Reason: "no backends registered"}
	}

	ordered := make([]*Candidate, 0, len(byID))
	seen := make(map[string]bool, len(byID))
	add := func(id string) {
		if c, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			ordered = append(ordered, c)
		}
	}

	if preferredID != "" {
		add(preferredID)
		if pref, ok := byID[preferredID]; ok {
			for _, fb := range pref.Descriptor.Fallbacks {
				add(fb)
			}
		}
	}

	rest := make([]*Candidate, 0, len(byID))
	for id, c := range byID {
		if !seen[id] {
			rest = append(rest, c)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		di, dj := rest[i].Descriptor, rest[j].Descriptor
		if di.Priority != dj.Priority {
			return di.Priority < dj.Priority
		}
		if di.Weight != dj.Weight {
			return di.Weight > dj.Weight
		}
		return di.ID < dj.ID
	})
	ordered = append(ordered, rest...)

	return ordered, nil
}

// Lookup returns the candidate registered under (kind, id).
func (r *Registry) Lookup(kind backend.StageKind, id string) (*Candidate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.kinds[kind][id]
	return c, ok
}

// Descriptors returns every registered descriptor sorted by stage order,
// priority, weight and ID. Used by the HTTP API to list backends.
func (r *Registry) Descriptors() []backend.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []backend.Descriptor
	for _, byID := range r.kinds {
		for _, c := range byID {
			out = append(out, c.Descriptor)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind.Order() < out[j].Kind.Order()
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].ID < out[j].ID
	})
	return out
}
