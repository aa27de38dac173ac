package storage

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Backend stores opaque blobs under string keys.
// Keys reaching a backend are already in canonical form (see KeyCodec) and
// safe to use as file or row names.
//
// Implementations must be safe for concurrent use on distinct keys. Callers
// serialize operations on the same key.
type Backend interface {
	// Save writes blob under key, replacing an existing blob.
	// A reader never observes a partially written blob.
	Save(key string, blob []byte) error
	// Load returns the blob stored under key, ErrNotFound if there is none.
	Load(key string) ([]byte, error)
	// Remove deletes the blob of key. Removing a missing key is not an error.
	Remove(key string) error
	// Exists reports whether a blob is stored under key.
	Exists(key string) bool
	// Keys lists all stored keys in no particular order.
	Keys() ([]string, error)
	// Location returns where the blob of key lives (path, URI, ...).
	// An empty key returns the root location of the backend.
	Location(key string) string
	// Close releases the backend and keeps the stored blobs.
	Close() error
	// Destroy releases the backend and deletes every stored blob.
	Destroy() error
}

// Factory creates a backend, used by conformance tests and the CLI
type Factory func() (Backend, error)
