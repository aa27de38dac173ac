package largedict

import (
	"fmt"
	"time"

	"github.com/cyyever/largedict/lib/storage"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	DefaultWatermark     = 128                   // resident keys kept in memory
	DefaultSweepInterval = 50 * time.Millisecond // time between eviction sweeps
	DefaultWriteWorkers  = 8
	DefaultDeleteWorkers = 1
	DefaultReadWorkers   = 1
	defaultName          = "largedict"
)

// Options configures a LargeDict during initialization.
// Zero values fall back to the defaults, negative values are rejected.
type Options[K comparable, V any] struct {
	// StorageDir is the blob directory. An empty dir (and no Backend) creates
	// an ephemeral directory that is removed on Shutdown.
	StorageDir string
	// Backend overrides StorageDir with a ready backend. The dict takes
	// ownership and closes it on Shutdown.
	Backend storage.Backend

	// Watermark is the max number of resident keys after a sweep. Zero selects
	// DefaultWatermark; a dict that keeps nothing resident is set up with
	// SetWatermark(0) after New.
	Watermark     int
	SweepInterval time.Duration // time between sweeps (0 = 50ms)
	WriteWorkers  int           // save workers (0 = 8)
	DeleteWorkers int           // delete workers (0 = 1)
	ReadWorkers   int           // load workers (0 = 1)

	KeyCodec   storage.KeyCodec[K]   // nil = storage.DefaultKeyCodec
	ValueCodec storage.ValueCodec[V] // nil = storage.GobCodec

	// Name labels metrics and log lines of this instance
	Name string
}

// DefaultOptions returns the default LargeDict options (ephemeral storage)
func DefaultOptions[K comparable, V any]() Options[K, V] {
	return Options[K, V]{
		Watermark:     DefaultWatermark,
		SweepInterval: DefaultSweepInterval,
		WriteWorkers:  DefaultWriteWorkers,
		DeleteWorkers: DefaultDeleteWorkers,
		ReadWorkers:   DefaultReadWorkers,
		Name:          defaultName,
	}
}

// Validate rejects negative counts and intervals
func (o Options[K, V]) Validate() error {
	switch {
	case o.Watermark < 0:
		return fmt.Errorf("%w: watermark %d < 0", ErrInvalidOptions, o.Watermark)
	case o.SweepInterval < 0:
		return fmt.Errorf("%w: sweep interval %s < 0", ErrInvalidOptions, o.SweepInterval)
	case o.WriteWorkers < 0 || o.DeleteWorkers < 0 || o.ReadWorkers < 0:
		return fmt.Errorf("%w: negative worker count (write %d, delete %d, read %d)",
			ErrInvalidOptions, o.WriteWorkers, o.DeleteWorkers, o.ReadWorkers)
	}
	return nil
}

// withDefaults returns a copy with zero fields replaced by defaults
func (o Options[K, V]) withDefaults() Options[K, V] {
	def := DefaultOptions[K, V]()
	if o.Watermark == 0 {
		o.Watermark = def.Watermark
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = def.SweepInterval
	}
	if o.WriteWorkers == 0 {
		o.WriteWorkers = def.WriteWorkers
	}
	if o.DeleteWorkers == 0 {
		o.DeleteWorkers = def.DeleteWorkers
	}
	if o.ReadWorkers == 0 {
		o.ReadWorkers = def.ReadWorkers
	}
	if o.Name == "" {
		o.Name = def.Name
	}
	return o
}
