package largedict

import (
	"errors"

	"github.com/cyyever/largedict/lib/scheduler"
	"github.com/cyyever/largedict/lib/storage"
	"github.com/cyyever/largedict/lib/taskqueue"
)

// Errors returned by a LargeDict. Check them with errors.Is.
var (
	// ErrKeyNotFound is returned for keys that were never set or are being deleted
	ErrKeyNotFound = errors.New("key not found")
	// ErrClosed is returned by reads after Shutdown
	ErrClosed = errors.New("large dict closed")
	// ErrInvalidOptions is returned by New and SetWatermark for bad settings
	ErrInvalidOptions = errors.New("invalid options")

	// ErrStorage is matched by backend I/O and (de)serialization failures
	ErrStorage = storage.ErrStorage
	// ErrQueueClosed is returned by writes after Shutdown
	ErrQueueClosed = taskqueue.ErrQueueClosed
	// ErrDirLocked is returned by New if the storage directory is in use
	ErrDirLocked = storage.ErrDirLocked
	// ErrAlreadyRunning is returned if the sweep could not be started
	ErrAlreadyRunning = scheduler.ErrAlreadyRunning
)
