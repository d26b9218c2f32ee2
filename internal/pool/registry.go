package pool

import (
	"fmt"
	"path/filepath"
	"sync"
)

// Registry maps database file paths to their pools, one pool per file.
//
// The registry is caller-owned: construct one with NewRegistry and pass
// it where needed. Paths are normalised to absolute form so two
// spellings of the same file share a pool.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Registry struct {
	mu    sync.Mutex
	pools map[string]*Pool
}

// NewRegistry creates an empty pool registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*Pool)}
}

// Get returns the pool for path, if one is registered.
func (r *Registry) Get(path string) (*Pool, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[abs]
	return p, ok
}

// GetOrCreate returns the pool for path, constructing it with create on
// first use. Only one create runs per path even under concurrent calls.
//
// Parameters:
//   - path: Database file path (normalised to absolute)
//   - create: Constructor invoked when no pool exists yet
//
// Returns:
//   - *Pool: The registered pool
//   - error: Path normalisation or constructor failure
func (r *Registry) GetOrCreate(path string, create func() (*Pool, error)) (*Pool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving database path: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[abs]; ok {
		return p, nil
	}

	p, err := create()
	if err != nil {
		return nil, err
	}
	r.pools[abs] = p
	return p, nil
}

// Remove unregisters the pool for path without closing it.
// Returns the removed pool so the caller can close it.
func (r *Registry) Remove(path string) (*Pool, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[abs]
	if ok {
		delete(r.pools, abs)
	}
	return p, ok
}

// Paths returns the registered database paths.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0, len(r.pools))
	for p := range r.pools {
		paths = append(paths, p)
	}
	return paths
}

// CloseAll closes every registered pool and empties the registry.
// The first close error is returned; remaining pools still close.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	pools := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.pools = make(map[string]*Pool)
	r.mu.Unlock()

	var firstErr error
	for _, p := range pools {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
