package largedict

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyyever/largedict/lib/common"
	"github.com/cyyever/largedict/lib/largedict/internal"
	"github.com/cyyever/largedict/lib/scheduler"
	"github.com/cyyever/largedict/lib/storage"
	"github.com/cyyever/largedict/lib/storage/diskstore"
	"github.com/cyyever/largedict/lib/taskqueue"
	"github.com/cyyever/largedict/lib/util"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger(common.LoggerLargeDict)

// State is the lifecycle state of a key
type State = internal.State

// Key states, see the package documentation for the transitions
const (
	InMemory  = internal.InMemory
	PreSaving = internal.PreSaving
	Saving    = internal.Saving
	InDisk    = internal.InDisk
	PreLoad   = internal.PreLoad
	Loading   = internal.Loading
	PreDelete = internal.PreDelete
)

const (
	ioStripes         = 64                    // per-key blob I/O lock stripes
	flushPollInterval = 10 * time.Millisecond // FlushAll progress check
)

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// LargeDict is a mapping that keeps at most a watermark of values in memory
// and pages the rest to a storage backend.
//
// Thread-safety: All methods are safe for concurrent use.
type LargeDict[K comparable, V any] struct {
	name    string
	table   *internal.Table[K, V]
	store   *storage.Store[K, V]
	backend storage.Backend

	writeQ  *taskqueue.TaskQueue[K]
	deleteQ *taskqueue.TaskQueue[K]
	readQ   *taskqueue.TaskQueue[K]
	sweeper *scheduler.Scheduler

	watermark atomic.Int64
	durable   bool         // fixed at construction: blobs outlive Shutdown
	flushers  atomic.Int32 // running FlushAll calls, sweeps ignore the watermark while > 0
	closed    atomic.Bool  // set under the table lock, intake checks it under the same lock

	// saveFailures and lastSaveErr let FlushAll notice failing saves
	saveFailures atomic.Uint64
	errMu        sync.Mutex
	lastSaveErr  error

	// ioLocks serialize blob I/O on the same key across the queues
	seed    uint64
	ioLocks [ioStripes]sync.Mutex

	shutdownOnce sync.Once
	shutdownErr  error

	metrics *dictMetrics
}

// New creates a LargeDict and starts its workers and eviction sweep.
//
// If the storage location already holds blobs, their keys are registered as
// IN_DISK so a dict can be reopened after a durable Shutdown.
func New[K comparable, V any](opts Options[K, V]) (*LargeDict[K, V], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	backend, durable, err := openBackend(opts)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(backend, opts.KeyCodec, opts.ValueCodec)
	if err != nil {
		closeBackend(backend, durable)
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	d := &LargeDict[K, V]{
		name:    opts.Name,
		table:   internal.NewTable[K, V](),
		store:   store,
		backend: backend,
		seed:    util.GenerateSeed(),
		sweeper: scheduler.New(opts.Name + "-sweep"),
		durable: durable,
	}
	d.watermark.Store(int64(opts.Watermark))

	if err := d.registerStoredKeys(); err != nil {
		closeBackend(backend, durable)
		return nil, err
	}

	d.writeQ = taskqueue.New(d.saveTask, opts.WriteWorkers, opts.Name+"-write")
	d.deleteQ = taskqueue.New(d.deleteTask, opts.DeleteWorkers, opts.Name+"-delete")
	d.readQ = taskqueue.New(d.loadTask, opts.ReadWorkers, opts.Name+"-read")
	d.metrics = newDictMetrics(d)

	if err := d.sweeper.Start(opts.SweepInterval, d.sweep); err != nil {
		d.stopQueues(true)
		closeBackend(backend, durable)
		return nil, err
	}

	log.Infof("%s: opened at %s (watermark %d, durable %v, %d keys on disk)",
		d.name, backend.Location(""), opts.Watermark, durable, d.table.Count(InDisk))
	return d, nil
}

// openBackend picks the backend from the options, the bool reports whether
// the stored blobs outlive the dict
func openBackend[K comparable, V any](opts Options[K, V]) (storage.Backend, bool, error) {
	switch {
	case opts.Backend != nil:
		return opts.Backend, true, nil
	case opts.StorageDir != "":
		backend, err := diskstore.Open(opts.StorageDir)
		return backend, true, err
	default:
		backend, err := diskstore.OpenTemp()
		return backend, false, err
	}
}

func closeBackend(backend storage.Backend, durable bool) {
	var err error
	if durable {
		err = backend.Close()
	} else {
		err = backend.Destroy()
	}
	if err != nil {
		log.Warningf("releasing %s failed: %v", backend.Location(""), err)
	}
}

// registerStoredKeys marks every blob already in the backend as IN_DISK
func (d *LargeDict[K, V]) registerStoredKeys() error {
	keys, invalid, err := d.store.Keys()
	if err != nil {
		return err
	}
	for _, name := range invalid {
		log.Warningf("%s: skipping blob %q, not a valid key", d.name, name)
	}
	if len(keys) == 0 {
		return nil
	}
	d.table.Do(func(v *internal.View[K, V]) {
		for _, key := range keys {
			v.Mark(key, InDisk)
		}
	})
	return nil
}

// ioLock returns the lock stripe guarding blob I/O of key
func (d *LargeDict[K, V]) ioLock(key K) *sync.Mutex {
	return &d.ioLocks[util.Stripe(util.HashString(d.store.Name(key), d.seed), ioStripes)]
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the value of key. Resident values are returned right away,
// values on disk are loaded through the read queue and Get blocks until the
// load finished.
//
// Returns ErrKeyNotFound for unknown keys and keys being deleted, an error
// matching ErrStorage if the load failed.
func (d *LargeDict[K, V]) Get(key K) (V, error) {
	var zero V
	if d.closed.Load() {
		return zero, ErrClosed
	}
	d.metrics.gets.Inc()

	for {
		var (
			value  V
			hit    bool
			found  bool
			load   *internal.Load
			submit bool
		)

		d.table.Do(func(v *internal.View[K, V]) {
			s, ok := v.State(key)
			if !ok || s == PreDelete {
				return
			}
			found = true

			switch s {
			case InMemory, PreSaving, Saving:
				// serving from memory cancels a pending save
				if value, hit = v.Value(key); hit {
					v.Mark(key, InMemory)
					v.Touch(key)
				}
			case InDisk:
				v.Mark(key, PreLoad)
				load, submit = v.StartLoad(key)
			case PreLoad, Loading:
				load, submit = v.StartLoad(key)
			}

			if submit {
				if err := d.readQ.Submit(key); err != nil {
					v.Transition(key, PreLoad, InDisk)
					v.FinishLoad(key, err)
				}
			}
		})

		switch {
		case !found:
			return zero, fmt.Errorf("get %v: %w", key, ErrKeyNotFound)
		case hit:
			d.metrics.hits.Inc()
			return value, nil
		case load == nil:
			log.Errorf("%s: key %v is %v without a value", d.name, key, InMemory)
			return zero, fmt.Errorf("get %v: %w", key, ErrKeyNotFound)
		}

		<-load.Done()
		if err := load.Err(); err != nil {
			return zero, fmt.Errorf("get %v: %w", key, err)
		}
		// the load finished or was superseded, look at the new state
	}
}

// Contains reports whether key is present and not being deleted
func (d *LargeDict[K, V]) Contains(key K) bool {
	s, ok := d.table.State(key)
	return ok && s != PreDelete
}

// State returns the lifecycle state of key
func (d *LargeDict[K, V]) State(key K) (State, bool) {
	return d.table.State(key)
}

// Len returns the number of keys, excluding keys being deleted
func (d *LargeDict[K, V]) Len() (n int) {
	d.table.Do(func(v *internal.View[K, V]) {
		n = v.Len() - v.Count(PreDelete)
	})
	return
}

// Keys returns all keys in no particular order, excluding keys being deleted
func (d *LargeDict[K, V]) Keys() []K {
	return d.table.Keys(func(_ K, s State) bool { return s != PreDelete })
}

// ResidentKeys returns the keys whose value is in memory (IN_MEMORY)
func (d *LargeDict[K, V]) ResidentKeys() []K {
	return d.table.Keys(func(_ K, s State) bool { return s == InMemory })
}

// Dir returns the root location of the storage backend
func (d *LargeDict[K, V]) Dir() string {
	return d.backend.Location("")
}

// Durable reports whether the stored blobs are kept on Shutdown. A dict is
// durable if it was created with a storage directory or a backend.
func (d *LargeDict[K, V]) Durable() bool {
	return d.durable
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Set stores value in memory. It wins over any save or load of the same key
// still in flight. Set never blocks on I/O.
//
// Returns ErrQueueClosed once Shutdown has begun.
func (d *LargeDict[K, V]) Set(key K, value V) error {
	var closed bool
	d.table.Do(func(v *internal.View[K, V]) {
		if closed = d.closed.Load(); closed {
			return
		}
		v.SetValue(key, value)
		v.Mark(key, InMemory)
		v.Touch(key)
	})
	if closed {
		return fmt.Errorf("set %v: %w", key, ErrQueueClosed)
	}
	d.metrics.sets.Inc()
	return nil
}

// Delete removes key. The key disappears from the dict immediately, its blob
// is removed in the background.
//
// Returns ErrKeyNotFound if the key is absent or already being deleted,
// ErrQueueClosed once Shutdown has begun.
func (d *LargeDict[K, V]) Delete(key K) error {
	var err error
	d.table.Do(func(v *internal.View[K, V]) {
		if d.closed.Load() {
			err = fmt.Errorf("delete %v: %w", key, ErrQueueClosed)
			return
		}
		s, ok := v.State(key)
		if !ok || s == PreDelete {
			err = fmt.Errorf("delete %v: %w", key, ErrKeyNotFound)
			return
		}
		if err = d.deleteQ.Submit(key); err != nil {
			return
		}
		v.Mark(key, PreDelete)
		v.Unlink(key)
		v.DropValue(key)
	})
	return err
}

// SetWatermark changes the number of resident keys kept by the sweep
func (d *LargeDict[K, V]) SetWatermark(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: watermark %d < 0", ErrInvalidOptions, n)
	}
	d.watermark.Store(int64(n))
	d.sweeper.TriggerNow()
	return nil
}

// --------------------------------------------------------------------------
// Eviction
// --------------------------------------------------------------------------

// sweep queues saves for the least recently used keys above the watermark
//
// Thread-safety: runs on the scheduler goroutine only
func (d *LargeDict[K, V]) sweep() {
	watermark := int(d.watermark.Load())
	if d.flushers.Load() > 0 {
		watermark = 0
	}

	var queued int
	d.table.Do(func(v *internal.View[K, V]) {
		for _, key := range v.OldestExcess(watermark) {
			if err := d.writeQ.Submit(key); err != nil {
				log.Debugf("%s: sweep stopped: %v", d.name, err)
				return
			}
			v.Mark(key, PreSaving)
			v.Unlink(key)
			queued++
		}
	})

	if queued > 0 {
		d.metrics.evictions.Add(queued)
		log.Debugf("%s: sweep queued %d saves", d.name, queued)
	}
}

// unflushed counts the keys whose value has not reached the backend yet
func (d *LargeDict[K, V]) unflushed() (n int) {
	d.table.Do(func(v *internal.View[K, V]) {
		n = v.Count(InMemory) + v.Count(PreSaving) + v.Count(Saving)
	})
	return
}

// FlushAll saves every resident value and blocks until none is left in
// memory. It does not change durability: an ephemeral dict still removes its
// directory on Shutdown.
func (d *LargeDict[K, V]) FlushAll() error {
	return d.FlushAllContext(context.Background())
}

// FlushAllContext is FlushAll with a context to abort the wait.
// A save that fails during the flush aborts it with an error matching ErrStorage.
func (d *LargeDict[K, V]) FlushAllContext(ctx context.Context) error {
	if d.closed.Load() {
		return fmt.Errorf("flush: %w", ErrQueueClosed)
	}
	return d.flush(ctx)
}

func (d *LargeDict[K, V]) flush(ctx context.Context) error {
	d.flushers.Add(1)
	defer d.flushers.Add(-1)

	failures := d.saveFailures.Load()
	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()

	for {
		d.sweeper.TriggerNow()
		if d.unflushed() == 0 {
			return nil
		}
		if d.saveFailures.Load() != failures {
			d.errMu.Lock()
			err := d.lastSaveErr
			d.errMu.Unlock()
			return fmt.Errorf("flush: %w", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("flush: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// --------------------------------------------------------------------------
// Shutdown
// --------------------------------------------------------------------------

// Shutdown stops the dict. Intake closes first: Set, Delete and FlushAll
// return ErrQueueClosed and Get returns ErrClosed from then on. A durable dict
// (storage directory or backend given) then saves every resident value and
// keeps its blobs, an ephemeral dict removes its directory.
//
// Later calls return the result of the first one.
func (d *LargeDict[K, V]) Shutdown() error {
	d.shutdownOnce.Do(func() {
		d.shutdownErr = d.shutdown()
	})
	return d.shutdownErr
}

func (d *LargeDict[K, V]) shutdown() error {
	var errs []error

	// no Set or Delete can pass the closed check after this
	d.table.Do(func(*internal.View[K, V]) {
		d.closed.Store(true)
	})

	durable := d.durable
	if durable {
		if err := d.flush(context.Background()); err != nil {
			log.Errorf("%s: flush on shutdown failed: %v", d.name, err)
			errs = append(errs, err)
		}
	}

	d.stopQueues(!durable)
	d.sweeper.Stop()

	if durable {
		if err := d.backend.Close(); err != nil {
			errs = append(errs, storage.NewError("close", "", err))
		}
	} else if err := d.backend.Destroy(); err != nil {
		errs = append(errs, storage.NewError("destroy", "", err))
	}

	d.table.Clear(ErrClosed)
	log.Infof("%s: shut down (durable %v)", d.name, durable)
	return errors.Join(errs...)
}

// stopQueues stops intake on all queues. Saves of an ephemeral dict are
// pointless, discard drops them.
func (d *LargeDict[K, V]) stopQueues(discard bool) {
	d.readQ.StopGracefully()
	d.deleteQ.StopGracefully()
	if discard {
		d.writeQ.StopForced()
	} else {
		d.writeQ.StopGracefully()
	}
}
