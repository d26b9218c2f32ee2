package pool

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/nerrad567/litekeeper/internal/infrastructure/logging"
	"github.com/nerrad567/litekeeper/internal/sqlite"
)

// newUnstartedPool builds a pool without initialising it.
func newUnstartedPool(t *testing.T, path string) *Pool {
	t.Helper()

	factory, err := sqlite.NewFactory(sqlite.Config{Path: path})
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}
	p, err := New(factory, testPoolConfig(), logging.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry()
	path := filepath.Join(t.TempDir(), "registry.db")

	created := 0
	create := func() (*Pool, error) {
		created++
		return newUnstartedPool(t, path), nil
	}

	first, err := r.GetOrCreate(path, create)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	second, err := r.GetOrCreate(path, create)
	if err != nil {
		t.Fatalf("second GetOrCreate failed: %v", err)
	}

	if first != second {
		t.Error("expected the same pool for the same path")
	}
	if created != 1 {
		t.Errorf("expected exactly 1 create call, got %d", created)
	}
}

func TestRegistry_NormalisesPaths(t *testing.T) {
	r := NewRegistry()
	dir := t.TempDir()
	abs := filepath.Join(dir, "same.db")
	relative := filepath.Join(dir, "sub", "..", "same.db")

	p, err := r.GetOrCreate(abs, func() (*Pool, error) {
		return newUnstartedPool(t, abs), nil
	})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	got, ok := r.Get(relative)
	if !ok {
		t.Fatal("expected relative spelling to resolve to the registered pool")
	}
	if got != p {
		t.Error("expected the same pool for both spellings")
	}
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry()
	path := filepath.Join(t.TempDir(), "concurrent.db")

	var (
		mu      sync.Mutex
		created int
	)
	var wg sync.WaitGroup
	pools := make([]*Pool, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.GetOrCreate(path, func() (*Pool, error) {
				mu.Lock()
				created++
				mu.Unlock()
				return newUnstartedPool(t, path), nil
			})
			if err != nil {
				t.Errorf("GetOrCreate failed: %v", err)
				return
			}
			pools[i] = p
		}(i)
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("expected exactly 1 create under concurrency, got %d", created)
	}
	for i := 1; i < 10; i++ {
		if pools[i] != pools[0] {
			t.Fatalf("goroutine %d got a different pool", i)
		}
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	path := filepath.Join(t.TempDir(), "remove.db")

	p, err := r.GetOrCreate(path, func() (*Pool, error) {
		return newUnstartedPool(t, path), nil
	})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	removed, ok := r.Remove(path)
	if !ok {
		t.Fatal("expected Remove to find the pool")
	}
	if removed != p {
		t.Error("expected Remove to return the registered pool")
	}
	if _, ok := r.Get(path); ok {
		t.Error("expected pool to be gone after Remove")
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry()
	dir := t.TempDir()

	for _, name := range []string{"a.db", "b.db"} {
		path := filepath.Join(dir, name)
		if _, err := r.GetOrCreate(path, func() (*Pool, error) {
			return newUnstartedPool(t, path), nil
		}); err != nil {
			t.Fatalf("GetOrCreate %s failed: %v", name, err)
		}
	}

	if err := r.CloseAll(); err != nil {
		t.Fatalf("CloseAll failed: %v", err)
	}
	if len(r.Paths()) != 0 {
		t.Errorf("expected empty registry after CloseAll, got %d entries", len(r.Paths()))
	}
}
