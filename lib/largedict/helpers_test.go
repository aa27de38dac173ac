package largedict

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cyyever/largedict/lib/storage"
	"github.com/cyyever/largedict/lib/storage/memstore"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

// testBackend wraps a memstore backend with call counters, failure
// injection and a gate that holds saves until released
type testBackend struct {
	storage.Backend

	saves   atomic.Int64
	loads   atomic.Int64
	removes atomic.Int64

	failSave atomic.Bool
	failLoad atomic.Bool

	mu       sync.Mutex
	gate     chan struct{}
	saving   chan string
	loadGate chan struct{}
	loading  chan string
}

func newTestBackend() *testBackend {
	return &testBackend{
		Backend: memstore.New(nil),
		saving:  make(chan string, 1024),
		loading: make(chan string, 1024),
	}
}

// block makes every following Save wait until release is called
func (b *testBackend) block() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = make(chan struct{})
}

func (b *testBackend) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate != nil {
		close(b.gate)
		b.gate = nil
	}
	if b.loadGate != nil {
		close(b.loadGate)
		b.loadGate = nil
	}
}

// blockLoads makes every following Load wait until release is called
func (b *testBackend) blockLoads() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loadGate = make(chan struct{})
}

func (b *testBackend) Save(key string, blob []byte) error {
	b.saves.Add(1)
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()

	select {
	case b.saving <- key:
	default:
	}
	if gate != nil {
		<-gate
	}
	if b.failSave.Load() {
		return errInjected
	}
	return b.Backend.Save(key, blob)
}

func (b *testBackend) Load(key string) ([]byte, error) {
	b.loads.Add(1)
	b.mu.Lock()
	gate := b.loadGate
	b.mu.Unlock()

	select {
	case b.loading <- key:
	default:
	}
	if gate != nil {
		<-gate
	}
	if b.failLoad.Load() {
		return nil, errInjected
	}
	return b.Backend.Load(key)
}

func (b *testBackend) Remove(key string) error {
	b.removes.Add(1)
	return b.Backend.Remove(key)
}

// waitSaving blocks until a save of key started
func (b *testBackend) waitSaving(t *testing.T, key string) {
	t.Helper()
	waitStarted(t, b.saving, "save", key)
}

// waitLoading blocks until a load of key started
func (b *testBackend) waitLoading(t *testing.T, key string) {
	t.Helper()
	waitStarted(t, b.loading, "load", key)
}

func waitStarted(t *testing.T, started <-chan string, op, key string) {
	t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case k := <-started:
			if k == key {
				return
			}
		case <-timeout:
			t.Fatalf("%s of %q did not start", op, key)
		}
	}
}

// newTestDict creates a dict on a testBackend and shuts it down at the end
func newTestDict(t *testing.T, opts Options[int, string]) (*LargeDict[int, string], *testBackend) {
	t.Helper()
	backend := newTestBackend()
	opts.Backend = backend
	if opts.Name == "" {
		opts.Name = "test"
	}

	d, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		backend.release()
		backend.failSave.Store(false)
		_ = d.Shutdown()
	})
	return d, backend
}

func sortedInts(keys []int) []int {
	sort.Ints(keys)
	return keys
}

func stateOf(d *LargeDict[int, string], key int) State {
	s, ok := d.State(key)
	if !ok {
		return State(255)
	}
	return s
}

const (
	waitFor = 5 * time.Second
	tick    = time.Millisecond
)
