package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/cyyever/largedict/lib/storage"
)

// RunBackendTests runs the conformance suite for a storage.Backend
// implementation. factory must return a fresh, empty backend on every call.
func RunBackendTests(t *testing.T, name string, factory storage.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Save&Load", func(t *testing.T) {
			testSaveLoad(t, mustCreate(t, factory))
		})

		t.Run("Overwrite", func(t *testing.T) {
			testOverwrite(t, mustCreate(t, factory))
		})

		t.Run("Remove", func(t *testing.T) {
			testRemove(t, mustCreate(t, factory))
		})

		t.Run("Keys", func(t *testing.T) {
			testKeys(t, mustCreate(t, factory))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, mustCreate(t, factory))
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, mustCreate(t, factory))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, mustCreate(t, factory))
		})

		t.Run("Destroy", func(t *testing.T) {
			testDestroy(t, mustCreate(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// mustCreate creates a backend and destroys it when the test ends
func mustCreate(t *testing.T, factory storage.Factory) storage.Backend {
	t.Helper()
	b, err := factory()
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Destroy() })
	return b
}

func mustLoad(t *testing.T, b storage.Backend, key string) []byte {
	t.Helper()
	blob, err := b.Load(key)
	if err != nil {
		t.Fatalf("Load(%q) failed: %v", key, err)
	}
	return blob
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSaveLoad(t *testing.T, b storage.Backend) {
	blobs := map[string][]byte{
		"1":       []byte("one"),
		"key-2":   {0, 1, 2, 3, 255},
		"%EMPTY":  {},
		"%2Edot":  []byte("dotted"),
		"unicode": []byte("äöü ✓"),
	}
	for k, v := range blobs {
		if err := b.Save(k, v); err != nil {
			t.Fatalf("Save(%q) failed: %v", k, err)
		}
	}
	for k, v := range blobs {
		if !b.Exists(k) {
			t.Errorf("Exists(%q) = false after Save", k)
		}
		if got := mustLoad(t, b, k); !bytes.Equal(got, v) {
			t.Errorf("Load(%q) = %v, want %v", k, got, v)
		}
	}

	// the backend must not keep a reference to the caller's buffer
	buf := []byte("original")
	if err := b.Save("alias", buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	copy(buf, "mutated!")
	if got := mustLoad(t, b, "alias"); string(got) != "original" {
		t.Errorf("backend aliases the saved slice, got %q", got)
	}
}

func testOverwrite(t *testing.T, b storage.Backend) {
	for i := 0; i < 5; i++ {
		if err := b.Save("k", []byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if got := mustLoad(t, b, "k"); string(got) != "v4" {
		t.Errorf("Expected last write to win, got %q", got)
	}

	large := bytes.Repeat([]byte{7}, 1<<20)
	if err := b.Save("k", large); err != nil {
		t.Fatalf("Save large failed: %v", err)
	}
	if got := mustLoad(t, b, "k"); !bytes.Equal(got, large) {
		t.Errorf("Large blob mismatch (len %d)", len(got))
	}
}

func testRemove(t *testing.T, b storage.Backend) {
	if err := b.Save("gone", []byte("x")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := b.Remove("gone"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if b.Exists("gone") {
		t.Error("Exists should be false after Remove")
	}
	if _, err := b.Load("gone"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Load after Remove: expected ErrNotFound, got %v", err)
	}

	// removing a missing key is not an error
	if err := b.Remove("never-existed"); err != nil {
		t.Errorf("Remove of missing key failed: %v", err)
	}
}

func testKeys(t *testing.T, b storage.Backend) {
	keys, err := b.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("Expected empty backend, got %v", keys)
	}

	want := []string{"a", "b", "c", "10"}
	for _, k := range want {
		if err := b.Save(k, []byte(k)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if err := b.Remove("b"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	keys, err = b.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	sort.Strings(keys)
	if fmt.Sprint(keys) != fmt.Sprint([]string{"10", "a", "c"}) {
		t.Errorf("Keys = %v", keys)
	}

	if b.Location("") == "" || b.Location("a") == b.Location("c") {
		t.Errorf("Location should identify the backend and each key")
	}
}

func testEdgeCases(t *testing.T, b storage.Backend) {
	if _, err := b.Load("missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if b.Exists("missing") {
		t.Error("Exists should be false for a missing key")
	}

	if err := b.Save("empty", nil); err != nil {
		t.Fatalf("Save(nil) failed: %v", err)
	}
	if got := mustLoad(t, b, "empty"); len(got) != 0 {
		t.Errorf("Expected empty blob, got %v", got)
	}
}

func testConcurrent(t *testing.T, b storage.Backend) {
	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-%d", w, i)
				if err := b.Save(key, []byte(key)); err != nil {
					t.Errorf("Save(%q) failed: %v", key, err)
					return
				}
				got, err := b.Load(key)
				if err != nil || string(got) != key {
					t.Errorf("Load(%q) = %q, %v", key, got, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	keys, err := b.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != workers*perWorker {
		t.Errorf("Expected %d keys, got %d", workers*perWorker, len(keys))
	}
}

func testClosed(t *testing.T, b storage.Backend) {
	if err := b.Save("k", []byte("v")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := b.Save("k", []byte("v")); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Save after Close: expected ErrClosed, got %v", err)
	}
	if _, err := b.Load("k"); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Load after Close: expected ErrClosed, got %v", err)
	}
}

func testDestroy(t *testing.T, b storage.Backend) {
	if err := b.Save("k", []byte("v")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := b.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if b.Exists("k") {
		t.Error("Exists should be false after Destroy")
	}
}
