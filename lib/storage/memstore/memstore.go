package memstore

import (
	"runtime"
	"sync/atomic"

	"github.com/cyyever/largedict/lib/storage"
	"github.com/cyyever/largedict/lib/util"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// memStore keeps blobs in a fixed number of xsync.MapOf shards
type memStore struct {
	id     string
	seed   uint64
	shards []*xsync.MapOf[string, []byte]
	closed atomic.Bool
}

// Options configures a memory backend
type Options struct {
	NumShards int // Number of shards (0 = number of CPUs)
}

// DefaultOptions returns the default memory backend options
func DefaultOptions() *Options {
	return &Options{
		NumShards: runtime.NumCPU(),
	}
}

// New creates an in-process backend. Blobs are lost when the process exits.
//
// Thread-safety: the returned backend is safe for concurrent use.
func New(opts *Options) storage.Backend {
	if opts == nil {
		opts = DefaultOptions()
	}
	numShards := opts.NumShards
	if numShards < 1 {
		numShards = runtime.NumCPU()
	}

	shards := make([]*xsync.MapOf[string, []byte], numShards)
	for i := range shards {
		shards[i] = xsync.NewMapOf[string, []byte]()
	}

	return &memStore{
		id:     uuid.NewString(),
		seed:   util.GenerateSeed(),
		shards: shards,
	}
}

// shard returns the shard responsible for key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *memStore) shard(key string) *xsync.MapOf[string, []byte] {
	return m.shards[util.Stripe(util.HashString(key, m.seed), len(m.shards))]
}

// --------------------------------------------------------------------------
// Interface Methods (docu see storage.Backend)
// --------------------------------------------------------------------------

func (m *memStore) Save(key string, blob []byte) error {
	if m.closed.Load() {
		return storage.ErrClosed
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	m.shard(key).Store(key, cp)
	return nil
}

func (m *memStore) Load(key string) ([]byte, error) {
	if m.closed.Load() {
		return nil, storage.ErrClosed
	}
	blob, ok := m.shard(key).Load(key)
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}

func (m *memStore) Remove(key string) error {
	if m.closed.Load() {
		return storage.ErrClosed
	}
	m.shard(key).Delete(key)
	return nil
}

func (m *memStore) Exists(key string) bool {
	if m.closed.Load() {
		return false
	}
	_, ok := m.shard(key).Load(key)
	return ok
}

func (m *memStore) Keys() ([]string, error) {
	if m.closed.Load() {
		return nil, storage.ErrClosed
	}
	var keys []string
	for _, shard := range m.shards {
		shard.Range(func(key string, _ []byte) bool {
			keys = append(keys, key)
			return true
		})
	}
	return keys, nil
}

func (m *memStore) Location(key string) string {
	if key == "" {
		return "mem://" + m.id
	}
	return "mem://" + m.id + "/" + key
}

func (m *memStore) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *memStore) Destroy() error {
	m.closed.Store(true)
	for _, shard := range m.shards {
		shard.Clear()
	}
	return nil
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// ShardDistribution reports how evenly the stored keys spread over the shards
// of a backend created by New. ok is false for other backends.
func ShardDistribution(backend storage.Backend) (stats util.DistributionStats, ok bool) {
	m, ok := backend.(*memStore)
	if !ok {
		return util.DistributionStats{}, false
	}
	sizes := make([]float64, len(m.shards))
	for i, shard := range m.shards {
		sizes[i] = float64(shard.Size())
	}
	return util.NewDistributionStats(sizes), true
}
