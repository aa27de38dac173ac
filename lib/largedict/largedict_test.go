package largedict

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cyyever/largedict/lib/largedict/internal"
	"github.com/cyyever/largedict/lib/storage"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Basic operations
// --------------------------------------------------------------------------

func TestSetGetStaysInMemory(t *testing.T) {
	d, backend := newTestDict(t, Options[int, string]{SweepInterval: time.Hour})

	for i := 0; i < 10; i++ {
		require.NoError(t, d.Set(i, fmt.Sprintf("v%d", i)))
	}
	for i := 0; i < 10; i++ {
		v, err := d.Get(i)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("v%d", i), v)
	}

	require.Equal(t, 10, d.Len())
	require.Equal(t, int64(0), backend.saves.Load())
	require.Equal(t, int64(0), backend.loads.Load())

	stats := d.Stats()
	require.Equal(t, uint64(10), stats.Sets)
	require.Equal(t, uint64(10), stats.MemoryHits)
	require.Equal(t, 10, stats.States["IN_MEMORY"])
}

func TestGetMissingKey(t *testing.T) {
	d, _ := newTestDict(t, Options[int, string]{})

	_, err := d.Get(42)
	require.True(t, errors.Is(err, ErrKeyNotFound))
	require.False(t, d.Contains(42))
}

func TestSetOverwrites(t *testing.T) {
	d, _ := newTestDict(t, Options[int, string]{})

	require.NoError(t, d.Set(1, "a"))
	require.NoError(t, d.Set(1, "b"))

	v, err := d.Get(1)
	require.NoError(t, err)
	require.Equal(t, "b", v)
	require.Equal(t, 1, d.Len())
}

// --------------------------------------------------------------------------
// Eviction
// --------------------------------------------------------------------------

func TestEvictionRespectsWatermark(t *testing.T) {
	d, backend := newTestDict(t, Options[int, string]{Watermark: 4, SweepInterval: 5 * time.Millisecond})

	for i := 0; i < 20; i++ {
		require.NoError(t, d.Set(i, fmt.Sprintf("v%d", i)))
	}

	require.Eventually(t, func() bool {
		return len(d.ResidentKeys()) <= 4 && d.unflushed() <= 4
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		return d.table.Count(InDisk) == 16
	}, waitFor, tick)

	// the most recent keys stayed resident
	require.Equal(t, []int{16, 17, 18, 19}, sortedInts(d.ResidentKeys()))
	require.Equal(t, 20, d.Len())

	for i := 0; i < 20; i++ {
		v, err := d.Get(i)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("v%d", i), v)
	}
	require.GreaterOrEqual(t, backend.loads.Load(), int64(16))
}

func TestExampleScenario(t *testing.T) {
	d, backend := newTestDict(t, Options[int, string]{Watermark: 2, SweepInterval: 5 * time.Millisecond})

	require.NoError(t, d.Set(1, "a"))
	require.NoError(t, d.Set(2, "b"))
	require.NoError(t, d.Set(3, "c"))

	require.Eventually(t, func() bool { return stateOf(d, 1) == InDisk }, waitFor, tick)
	require.Equal(t, []int{2, 3}, sortedInts(d.ResidentKeys()))
	require.True(t, backend.Exists("1"))

	loadsBefore := backend.loads.Load()
	v, err := d.Get(1)
	require.NoError(t, err)
	require.Equal(t, "a", v)
	require.Equal(t, loadsBefore+1, backend.loads.Load())
}

func TestSetWatermark(t *testing.T) {
	d, _ := newTestDict(t, Options[int, string]{Watermark: 100, SweepInterval: 5 * time.Millisecond})

	for i := 0; i < 10; i++ {
		require.NoError(t, d.Set(i, "x"))
	}
	time.Sleep(20 * time.Millisecond)
	require.Len(t, d.ResidentKeys(), 10)

	require.NoError(t, d.SetWatermark(3))
	require.Eventually(t, func() bool { return d.table.Count(InDisk) == 7 }, waitFor, tick)

	err := d.SetWatermark(-1)
	require.True(t, errors.Is(err, ErrInvalidOptions))
}

// --------------------------------------------------------------------------
// Delete
// --------------------------------------------------------------------------

func TestDeleteIdempotence(t *testing.T) {
	d, backend := newTestDict(t, Options[int, string]{Watermark: 1, SweepInterval: 5 * time.Millisecond})

	require.True(t, errors.Is(d.Delete(7), ErrKeyNotFound))

	require.NoError(t, d.Set(1, "a"))
	require.NoError(t, d.Set(2, "b"))
	require.Eventually(t, func() bool { return stateOf(d, 1) == InDisk }, waitFor, tick)

	require.NoError(t, d.Delete(1))
	require.True(t, errors.Is(d.Delete(1), ErrKeyNotFound))

	_, err := d.Get(1)
	require.True(t, errors.Is(err, ErrKeyNotFound))
	require.False(t, d.Contains(1))
	require.Equal(t, []int{2}, d.Keys())

	require.Eventually(t, func() bool {
		_, tracked := d.State(1)
		return !tracked && !backend.Exists("1")
	}, waitFor, tick)
	require.True(t, errors.Is(d.Delete(1), ErrKeyNotFound))
}

func TestConcurrentDeleteRemovesOnce(t *testing.T) {
	d, _ := newTestDict(t, Options[int, string]{})
	require.NoError(t, d.Set(5, "x"))

	var ok, notFound atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := d.Delete(5); {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrKeyNotFound):
				notFound.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), ok.Load())
	require.Equal(t, int64(15), notFound.Load())
	require.Eventually(t, func() bool { return d.Stats().Deletes == 1 }, waitFor, tick)
}

func TestSetAfterDeleteWins(t *testing.T) {
	d, _ := newTestDict(t, Options[int, string]{SweepInterval: time.Hour, DeleteWorkers: 1})

	require.NoError(t, d.Set(1, "old"))
	require.NoError(t, d.Delete(1))
	require.NoError(t, d.Set(1, "new"))

	// let the delete task run, it must not remove the new value
	require.Eventually(t, func() bool { return d.deleteQ.Pending() == 0 }, waitFor, tick)
	v, err := d.Get(1)
	require.NoError(t, err)
	require.Equal(t, "new", v)
}

// --------------------------------------------------------------------------
// Supersession
// --------------------------------------------------------------------------

func TestSetDuringSaveWins(t *testing.T) {
	d, backend := newTestDict(t, Options[int, string]{Watermark: 1, SweepInterval: 5 * time.Millisecond})

	backend.block()
	require.NoError(t, d.Set(1, "v1"))
	require.NoError(t, d.Set(2, "filler"))
	backend.waitSaving(t, "1")
	require.Equal(t, Saving, stateOf(d, 1))

	require.NoError(t, d.Set(1, "v2"))
	require.Equal(t, InMemory, stateOf(d, 1))
	backend.release()

	v, err := d.Get(1)
	require.NoError(t, err)
	require.Equal(t, "v2", v)

	// whatever reached the disk later must be v2 as well
	require.NoError(t, d.FlushAll())
	v, err = d.Get(1)
	require.NoError(t, err)
	require.Equal(t, "v2", v)
	require.GreaterOrEqual(t, d.Stats().Superseded, uint64(1))
}

func TestGetDuringSaveServesMemory(t *testing.T) {
	d, backend := newTestDict(t, Options[int, string]{Watermark: 1, SweepInterval: 5 * time.Millisecond})

	backend.block()
	require.NoError(t, d.Set(1, "a"))
	require.NoError(t, d.Set(2, "b"))
	backend.waitSaving(t, "1")

	loads := backend.loads.Load()
	v, err := d.Get(1)
	require.NoError(t, err)
	require.Equal(t, "a", v)
	require.Equal(t, loads, backend.loads.Load())

	backend.release()
}

func TestDeleteDuringSaveRemovesBlob(t *testing.T) {
	d, backend := newTestDict(t, Options[int, string]{Watermark: 1, SweepInterval: 5 * time.Millisecond})

	backend.block()
	require.NoError(t, d.Set(1, "a"))
	require.NoError(t, d.Set(2, "b"))
	backend.waitSaving(t, "1")

	require.NoError(t, d.Delete(1))
	backend.release()

	require.Eventually(t, func() bool {
		_, tracked := d.State(1)
		return !tracked && !backend.Exists("1")
	}, waitFor, tick)
	require.Equal(t, 1, d.Len())
}

// --------------------------------------------------------------------------
// Loading
// --------------------------------------------------------------------------

func TestConcurrentGetsShareOneLoad(t *testing.T) {
	d, backend := newTestDict(t, Options[int, string]{Watermark: 100, SweepInterval: 5 * time.Millisecond})

	require.NoError(t, d.Set(9, "nine"))
	require.NoError(t, d.FlushAll())
	require.Equal(t, InDisk, stateOf(d, 9))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := d.Get(9)
			if err != nil || v != "nine" {
				t.Errorf("Get = %q, %v", v, err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), backend.loads.Load())
	require.Equal(t, InMemory, stateOf(d, 9))
}

func TestLoadFailureIsRetried(t *testing.T) {
	d, backend := newTestDict(t, Options[int, string]{Watermark: 100})

	require.NoError(t, d.Set(1, "a"))
	require.NoError(t, d.FlushAll())

	backend.failLoad.Store(true)
	_, err := d.Get(1)
	require.True(t, errors.Is(err, ErrStorage))
	require.True(t, errors.Is(err, errInjected))
	require.Equal(t, InDisk, stateOf(d, 1))

	backend.failLoad.Store(false)
	v, err := d.Get(1)
	require.NoError(t, err)
	require.Equal(t, "a", v)
}

func TestDeleteDuringLoadReturnsNotFound(t *testing.T) {
	d, backend := newTestDict(t, Options[int, string]{Watermark: 100})

	require.NoError(t, d.Set(1, "a"))
	require.NoError(t, d.FlushAll())
	require.Equal(t, InDisk, stateOf(d, 1))

	backend.blockLoads()
	result := make(chan error, 1)
	go func() {
		_, err := d.Get(1)
		result <- err
	}()
	backend.waitLoading(t, "1")
	require.Equal(t, Loading, stateOf(d, 1))

	require.NoError(t, d.Delete(1))
	backend.release()

	select {
	case err := <-result:
		require.True(t, errors.Is(err, ErrKeyNotFound), "got %v", err)
	case <-time.After(waitFor):
		t.Fatal("Get did not return after the load was released")
	}

	require.Eventually(t, func() bool {
		_, tracked := d.State(1)
		return !tracked && !backend.Exists("1")
	}, waitFor, tick)
}

func TestSaveTaskRepairsDetachedKey(t *testing.T) {
	d, backend := newTestDict(t, Options[int, string]{SweepInterval: time.Hour})

	// key 1 still has a blob, key 2 has nothing to fall back to
	require.NoError(t, backend.Save("1", []byte("blob")))
	d.table.Do(func(v *internal.View[int, string]) {
		v.Mark(1, PreSaving)
		v.Mark(2, PreSaving)
	})

	d.saveTask(1)
	d.saveTask(2)

	require.Equal(t, InDisk, stateOf(d, 1))
	_, tracked := d.State(2)
	require.False(t, tracked)
	require.Empty(t, d.ResidentKeys())

	_, err := d.Get(2)
	require.True(t, errors.Is(err, ErrKeyNotFound))
}

func TestSaveFailureKeepsValue(t *testing.T) {
	d, backend := newTestDict(t, Options[int, string]{Watermark: 100, SweepInterval: 5 * time.Millisecond})

	backend.failSave.Store(true)
	require.NoError(t, d.Set(1, "a"))

	err := d.FlushAll()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrStorage))

	v, err := d.Get(1)
	require.NoError(t, err)
	require.Equal(t, "a", v)
	require.Greater(t, d.Stats().StorageErrors, uint64(0))

	backend.failSave.Store(false)
	require.NoError(t, d.FlushAll())
	require.Equal(t, InDisk, stateOf(d, 1))
}

func TestFlushAllContextCancel(t *testing.T) {
	d, backend := newTestDict(t, Options[int, string]{SweepInterval: 5 * time.Millisecond})

	backend.block()
	require.NoError(t, d.Set(1, "a"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := d.FlushAllContext(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	backend.release()
	require.NoError(t, d.FlushAll())
}

// --------------------------------------------------------------------------
// Concurrency
// --------------------------------------------------------------------------

func TestConcurrentWorkload(t *testing.T) {
	d, _ := newTestDict(t, Options[int, string]{Watermark: 5, SweepInterval: 2 * time.Millisecond, WriteWorkers: 4})

	const keys = 40
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 300; i++ {
				key := rng.Intn(keys)
				switch op := rng.Intn(10); {
				case op < 5:
					if err := d.Set(key, fmt.Sprintf("v-%d-%d", key, i)); err != nil {
						t.Errorf("Set: %v", err)
					}
				case op < 9:
					v, err := d.Get(key)
					if err != nil && !errors.Is(err, ErrKeyNotFound) {
						t.Errorf("Get(%d): %v", key, err)
					}
					if err == nil && !strings.HasPrefix(v, fmt.Sprintf("v-%d-", key)) {
						t.Errorf("Get(%d) returned foreign value %q", key, v)
					}
				default:
					if err := d.Delete(key); err != nil && !errors.Is(err, ErrKeyNotFound) {
						t.Errorf("Delete(%d): %v", key, err)
					}
				}
			}
		}(int64(w))
	}
	wg.Wait()

	require.NoError(t, d.FlushAll())

	present := d.Keys()
	require.Equal(t, len(present), d.Len())
	require.LessOrEqual(t, d.Len(), keys)
	for _, key := range present {
		v, err := d.Get(key)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(v, fmt.Sprintf("v-%d-", key)), v)
	}
}

// --------------------------------------------------------------------------
// Shutdown and durability
// --------------------------------------------------------------------------

func TestDurableShutdownAndReopen(t *testing.T) {
	dir := t.TempDir()

	d, err := New(Options[int, string]{StorageDir: dir, Watermark: 100})
	require.NoError(t, err)
	require.True(t, d.Durable())
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Set(i, fmt.Sprintf("v%d", i)))
	}
	require.NoError(t, d.Shutdown())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var blobs []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			blobs = append(blobs, e.Name())
		}
	}
	if diff := cmp.Diff([]string{"0", "1", "2", "3", "4"}, blobs); diff != "" {
		t.Errorf("blob files mismatch (-want +got):\n%s", diff)
	}

	// a stray file that is not a key is ignored on reopen
	require.NoError(t, os.WriteFile(filepath.Join(dir, "not-a-key"), []byte("x"), 0o644))

	reopened, err := New(Options[int, string]{StorageDir: dir})
	require.NoError(t, err)
	defer reopened.Shutdown()

	require.Equal(t, 5, reopened.Len())
	require.Empty(t, reopened.ResidentKeys())
	for i := 0; i < 5; i++ {
		v, err := reopened.Get(i)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("v%d", i), v)
	}
}

func TestEphemeralShutdownRemovesDir(t *testing.T) {
	d, err := New(Options[int, string]{Watermark: 1, SweepInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	require.False(t, d.Durable())

	dir := d.Dir()
	require.DirExists(t, dir)
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Set(i, "x"))
	}
	require.Eventually(t, func() bool { return d.table.Count(InDisk) > 0 }, waitFor, tick)

	require.NoError(t, d.Shutdown())
	require.NoDirExists(t, dir)
}

func TestFlushAllKeepsEphemeralDict(t *testing.T) {
	d, err := New(Options[int, string]{})
	require.NoError(t, err)

	require.NoError(t, d.Set(1, "a"))
	require.NoError(t, d.FlushAll())
	require.False(t, d.Durable())
	require.Empty(t, d.ResidentKeys())

	dir := d.Dir()
	require.FileExists(t, filepath.Join(dir, "1"))
	require.NoError(t, d.Shutdown())
	require.NoDirExists(t, dir)
}

func TestShutdownRejectsConcurrentWriters(t *testing.T) {
	dir := t.TempDir()
	d, err := New(Options[int, string]{StorageDir: dir, Watermark: 4, SweepInterval: 5 * time.Millisecond})
	require.NoError(t, err)

	const writers, keysPerWriter = 2, 64
	acked := make([]map[int]string, writers)
	errs := make([]error, writers)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		acked[w] = make(map[int]string)
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for n := 0; ; n++ {
				key := w*keysPerWriter + n%keysPerWriter
				value := fmt.Sprintf("w%d-%d", w, n)
				if err := d.Set(key, value); err != nil {
					errs[w] = err
					return
				}
				acked[w][key] = value
			}
		}(w)
	}
	require.Eventually(t, func() bool { return d.Len() == writers*keysPerWriter }, waitFor, tick)

	done := make(chan error, 1)
	go func() { done <- d.Shutdown() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatalf("Shutdown blocked with writers running (unflushed %d)", d.unflushed())
	}
	wg.Wait()

	for w := 0; w < writers; w++ {
		require.True(t, errors.Is(errs[w], ErrQueueClosed), "writer %d stopped with %v", w, errs[w])
	}

	// every acknowledged write reached the disk
	reopened, err := New(Options[int, string]{StorageDir: dir})
	require.NoError(t, err)
	defer reopened.Shutdown()
	require.Equal(t, writers*keysPerWriter, reopened.Len())
	for w := 0; w < writers; w++ {
		for key, want := range acked[w] {
			got, err := reopened.Get(key)
			require.NoError(t, err)
			require.Equal(t, want, got, "key %d", key)
		}
	}
}

func TestOperationsAfterShutdown(t *testing.T) {
	d, _ := newTestDict(t, Options[int, string]{})
	require.NoError(t, d.Set(1, "a"))
	require.NoError(t, d.Shutdown())

	require.True(t, errors.Is(d.Set(2, "b"), ErrQueueClosed))
	require.True(t, errors.Is(d.Delete(1), ErrQueueClosed))
	require.True(t, errors.Is(d.FlushAll(), ErrQueueClosed))
	_, err := d.Get(1)
	require.True(t, errors.Is(err, ErrClosed))

	require.NoError(t, d.Shutdown())
}

func TestStorageDirLocked(t *testing.T) {
	dir := t.TempDir()

	first, err := New(Options[int, string]{StorageDir: dir})
	require.NoError(t, err)
	defer first.Shutdown()

	_, err = New(Options[int, string]{StorageDir: dir})
	require.True(t, errors.Is(err, ErrDirLocked))
}

// --------------------------------------------------------------------------
// Options, codecs and metrics
// --------------------------------------------------------------------------

func TestZeroWatermarkUsesDefault(t *testing.T) {
	d, _ := newTestDict(t, Options[int, string]{SweepInterval: 5 * time.Millisecond})
	require.Equal(t, DefaultWatermark, d.Stats().Watermark)

	// nothing stays resident once the watermark is set to zero at run time
	require.NoError(t, d.SetWatermark(0))
	require.NoError(t, d.Set(1, "a"))
	require.Eventually(t, func() bool { return stateOf(d, 1) == InDisk }, waitFor, tick)
	require.Equal(t, 0, d.Stats().Watermark)

	require.Error(t, d.SetWatermark(-1))
}

func TestInvalidOptions(t *testing.T) {
	for _, opts := range []Options[int, string]{
		{Watermark: -1},
		{SweepInterval: -time.Second},
		{WriteWorkers: -2},
		{ReadWorkers: -1},
	} {
		_, err := New(opts)
		require.True(t, errors.Is(err, ErrInvalidOptions), "%+v", opts)
	}

	type point struct{ X, Y int }
	_, err := New(Options[point, string]{Backend: newTestBackend()})
	require.True(t, errors.Is(err, ErrInvalidOptions))

	def := DefaultOptions[int, string]()
	require.Equal(t, DefaultWatermark, def.Watermark)
	require.Equal(t, DefaultSweepInterval, def.SweepInterval)
	require.Equal(t, 8, def.WriteWorkers)
	require.NoError(t, def.Validate())
}

type snapshot struct {
	Layer   string    `json:"layer"`
	Weights []float64 `json:"weights"`
}

func TestStringKeysWithJSONCodec(t *testing.T) {
	d, err := New(Options[string, snapshot]{
		Backend:    newTestBackend(),
		Watermark:  1,
		ValueCodec: storage.JSONCodec[snapshot]{},
	})
	require.NoError(t, err)
	defer d.Shutdown()

	want := map[string]snapshot{
		"conv/1":  {Layer: "conv", Weights: []float64{1, 2}},
		".hidden": {Layer: "fc", Weights: []float64{-0.5}},
		"":        {Layer: "empty"},
	}
	for k, v := range want {
		require.NoError(t, d.Set(k, v))
	}
	require.NoError(t, d.FlushAll())

	for k, v := range want {
		got, err := d.Get(k)
		require.NoError(t, err)
		if diff := cmp.Diff(v, got); diff != "" {
			t.Errorf("value of %q mismatch (-want +got):\n%s", k, diff)
		}
	}
}

func TestStatsAndPrometheus(t *testing.T) {
	d, _ := newTestDict(t, Options[int, string]{Name: "metrics", Watermark: 1, SweepInterval: 5 * time.Millisecond})

	require.NoError(t, d.Set(1, "a"))
	require.NoError(t, d.Set(2, "b"))
	require.NoError(t, d.FlushAll())

	stats := d.Stats()
	require.Equal(t, "metrics", stats.Name)
	require.Equal(t, 2, stats.Keys)
	require.Equal(t, 2, stats.States["IN_DISK"])
	require.GreaterOrEqual(t, stats.Saves, uint64(2))
	require.GreaterOrEqual(t, stats.SavedBlobs, int64(2))
	require.Positive(t, stats.AvgBlobSize)

	var buf bytes.Buffer
	d.WritePrometheus(&buf)
	out := buf.String()
	require.Contains(t, out, `largedict_sets_total{dict="metrics"} 2`)
	require.Contains(t, out, `largedict_keys{dict="metrics"} 2`)
}
