// Package largedict implements LargeDict, a concurrent key/value mapping for
// many large values that keeps only the most recently used ones in memory and
// pages the rest to a storage backend.
//
// # States
//
// Every key is in exactly one state:
//
//	IN_MEMORY   value resident, eligible for eviction
//	PRE_SAVING  picked by the sweep, save queued
//	SAVING      save in flight
//	IN_DISK     only the blob exists
//	PRE_LOAD    load queued by a Get
//	LOADING     load in flight
//	PRE_DELETE  delete queued, invisible to Get, Len and Keys
//
// Foreground calls change states synchronously under one table lock:
//
//   - Set stores the value, the key becomes IN_MEMORY. A save or load in
//     flight for the key is superseded.
//   - Get returns resident values right away (a pending save of the key is
//     cancelled). For IN_DISK keys it queues a load on the read queue and waits.
//   - Delete marks the key PRE_DELETE and queues the blob removal.
//
// # Background work
//
// A scheduler runs the eviction sweep every SweepInterval: the least recently
// used IN_MEMORY keys above the watermark become PRE_SAVING and are queued on
// the write queue. Three task queues (write, delete, read) run the I/O outside
// the table lock. A task re-checks the state it expects before and after its
// I/O and turns into a no-op if a later call superseded it.
//
// # Durability
//
// A dict opened on a storage directory (or with an explicit backend) is
// durable: Shutdown saves every resident value and keeps the blobs, and a
// new dict on the same directory sees all keys again. Without a directory the
// dict uses a temporary directory that Shutdown removes. FlushAll only drains
// memory, it does not make an ephemeral dict durable.
//
// Example:
//
//	d, err := largedict.New(largedict.Options[int, []float64]{StorageDir: "snapshots"})
//	if err != nil {
//		return err
//	}
//	defer d.Shutdown()
//
//	_ = d.Set(1, weights)
//	w, err := d.Get(1)
package largedict
