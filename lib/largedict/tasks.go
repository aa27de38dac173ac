package largedict

import (
	"github.com/cyyever/largedict/lib/largedict/internal"
)

// --------------------------------------------------------------------------
// Background tasks
//
// Every task holds the I/O lock stripe of its key while it touches the
// backend, and re-checks the state it expects under the table lock before
// and after the I/O. A mismatch means a later operation superseded the task,
// which then only undoes its own effect on the backend.
// --------------------------------------------------------------------------

// saveTask writes the value of a PRE_SAVING key and moves it to IN_DISK
func (d *LargeDict[K, V]) saveTask(key K) {
	mu := d.ioLock(key)
	mu.Lock()
	defer mu.Unlock()

	var (
		value    V
		ok       bool
		detached bool
	)
	d.table.Do(func(v *internal.View[K, V]) {
		if s, exists := v.State(key); !exists || s != PreSaving {
			return
		}
		if value, ok = v.Value(key); !ok {
			detached = true
			return
		}
		v.Transition(key, PreSaving, Saving)
	})
	if detached {
		d.repairDetached(key)
		return
	}
	if !ok {
		d.metrics.superseded.Inc()
		log.Debugf("%s: save of %v superseded before start", d.name, key)
		return
	}

	size, err := d.store.Save(key, value)

	var orphan, superseded bool
	d.table.Do(func(v *internal.View[K, V]) {
		s, exists := v.State(key)
		switch {
		case !exists:
			orphan = err == nil
		case err != nil:
			if s == Saving {
				v.Mark(key, InMemory)
				v.Touch(key)
			}
		case s != Saving:
			superseded = true
		default:
			v.DropValue(key)
			v.Mark(key, InDisk)
			v.Unlink(key)
		}
	})

	switch {
	case err != nil:
		d.recordSaveError(err)
		log.Errorf("%s: save of %v failed: %v", d.name, key, err)
	case orphan:
		if rmErr := d.store.Remove(key); rmErr != nil {
			d.metrics.storageErrors.Inc()
			log.Warningf("%s: removing orphan blob of %v failed: %v", d.name, key, rmErr)
		}
		d.metrics.superseded.Inc()
	case superseded:
		// the blob stays, the next save or delete of the key replaces it
		d.metrics.superseded.Inc()
		log.Debugf("%s: save of %v superseded", d.name, key)
	default:
		d.metrics.saves.Inc()
		d.metrics.blobSizes.AddSample(size)
	}
}

// repairDetached handles a PRE_SAVING key without a value, which no
// operation should produce. The key falls back to its blob if there is one
// and is dropped otherwise. Caller holds the I/O lock of key.
func (d *LargeDict[K, V]) repairDetached(key K) {
	onDisk := d.store.Exists(key)

	d.table.Do(func(v *internal.View[K, V]) {
		if s, ok := v.State(key); !ok || s != PreSaving {
			return
		}
		if _, ok := v.Value(key); ok {
			return
		}
		if onDisk {
			v.Mark(key, InDisk)
			v.Unlink(key)
		} else {
			v.Untrack(key)
		}
	})
	log.Errorf("%s: key %v was %v without a value (blob present %v)", d.name, key, PreSaving, onDisk)
}

func (d *LargeDict[K, V]) recordSaveError(err error) {
	d.errMu.Lock()
	d.lastSaveErr = err
	d.errMu.Unlock()
	d.saveFailures.Add(1)
	d.metrics.storageErrors.Inc()
}

// loadTask reads the blob of a PRE_LOAD key and makes it resident.
// Waiting Get calls are released in every case.
func (d *LargeDict[K, V]) loadTask(key K) {
	mu := d.ioLock(key)
	mu.Lock()
	defer mu.Unlock()

	var proceed bool
	d.table.Do(func(v *internal.View[K, V]) {
		if proceed = v.Transition(key, PreLoad, Loading); !proceed {
			v.FinishLoad(key, nil)
		}
	})
	if !proceed {
		d.metrics.superseded.Inc()
		return
	}

	value, err := d.store.Load(key)

	var discarded bool
	d.table.Do(func(v *internal.View[K, V]) {
		if s, ok := v.State(key); !ok || s != Loading {
			discarded = true
			v.FinishLoad(key, nil)
			return
		}
		if err != nil {
			v.Mark(key, InDisk)
			v.FinishLoad(key, err)
			return
		}
		v.SetValue(key, value)
		v.Mark(key, InMemory)
		v.Touch(key)
		v.FinishLoad(key, nil)
	})

	switch {
	case discarded:
		d.metrics.superseded.Inc()
		log.Debugf("%s: load of %v superseded", d.name, key)
	case err != nil:
		d.metrics.storageErrors.Inc()
		log.Errorf("%s: load of %v failed: %v", d.name, key, err)
	default:
		d.metrics.loads.Inc()
	}
}

// deleteTask drops a PRE_DELETE key from the table and removes its blob
func (d *LargeDict[K, V]) deleteTask(key K) {
	mu := d.ioLock(key)
	mu.Lock()
	defer mu.Unlock()

	var proceed bool
	d.table.Do(func(v *internal.View[K, V]) {
		if s, ok := v.State(key); ok && s == PreDelete {
			v.Untrack(key)
			proceed = true
		}
	})
	if !proceed {
		d.metrics.superseded.Inc()
		log.Debugf("%s: delete of %v superseded", d.name, key)
		return
	}

	if err := d.store.Remove(key); err != nil {
		d.metrics.storageErrors.Inc()
		log.Warningf("%s: removing blob of %v failed: %v", d.name, key, err)
	}
	d.metrics.deletes.Inc()
}
