// Package registry owns live adapter instances. Instances are materialised
// lazily from catalog configurations and stay resident until explicitly
// unloaded; at most one live instance exists per id.
package registry

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ragplane/ragplane/engine/core"
)

// Factory materialises a live instance from its persisted configuration.
type Factory[T any] func(ctx context.Context, id string) (T, error)

// Releaser tears down a live instance on unload. Optional.
type Releaser[T any] func(ctx context.Context, handle T) error

// Registry is a lazy (id → live handle) cache for one kind.
type Registry[T any] struct {
	kind    string
	factory Factory[T]
	release Releaser[T]

	mu    sync.RWMutex
	items map[string]T
	group singleflight.Group
}

// New constructs a registry for one instance kind.
func New[T any](kind string, factory Factory[T]) *Registry[T] {
	return &Registry[T]{kind: kind, factory: factory, items: make(map[string]T)}
}

// WithReleaser installs a teardown hook invoked on Unload.
func (r *Registry[T]) WithReleaser(release Releaser[T]) *Registry[T] {
	r.release = release
	return r
}

// Get returns the live instance for id, constructing it from the catalog if
// absent. Concurrent calls for the same id construct at most once.
func (r *Registry[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, core.Validationf("registry: %s id is required", r.kind)
	}
	r.mu.RLock()
	handle, ok := r.items[id]
	r.mu.RUnlock()
	if ok {
		return handle, nil
	}
	result, err, _ := r.group.Do(id, func() (any, error) {
		r.mu.RLock()
		existing, ok := r.items[id]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}
		built, err := r.factory(ctx, id)
		if err != nil {
			return zero, err
		}
		r.mu.Lock()
		r.items[id] = built
		r.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

// Load explicitly materialises id. Loading an already-live id fails.
func (r *Registry[T]) Load(ctx context.Context, id string) (T, error) {
	var zero T
	if r.Loaded(id) {
		return zero, core.NewAlreadyLoaded(r.kind, id)
	}
	return r.Get(ctx, id)
}

// Unload releases the live instance for id.
func (r *Registry[T]) Unload(ctx context.Context, id string) error {
	r.mu.Lock()
	handle, ok := r.items[id]
	if ok {
		delete(r.items, id)
	}
	r.mu.Unlock()
	if !ok {
		return core.NewNotLoaded(r.kind, id)
	}
	if r.release != nil {
		return r.release(ctx, handle)
	}
	return nil
}

// Loaded reports whether id is live.
func (r *Registry[T]) Loaded(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[id]
	return ok
}

// List returns the ids of live instances, sorted.
func (r *Registry[T]) List() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
