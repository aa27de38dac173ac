package diskstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cyyever/largedict/lib/common"
	"github.com/cyyever/largedict/lib/storage"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/natefinch/atomic"
)

var log = logger.GetLogger(common.LoggerStorage)

const (
	lockFileName = ".lock" // owner lock of the directory
	tmpPrefix    = ".tmp-" // blobs being written
	dirPerm      = 0o755
	filePerm     = 0o644
)

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// diskStore keeps one file per key in a single directory
type diskStore struct {
	dir  string
	lock *os.File

	mu     sync.RWMutex // guards closed against Close/Destroy
	closed bool
}

// Open opens (and creates) dir as a blob directory. The directory is locked
// for the lifetime of the backend, a second Open of the same directory fails
// with storage.ErrDirLocked.
func Open(dir string) (storage.Backend, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, storage.NewError("open", "", err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, storage.NewError("open", "", err)
	}

	lock, err := os.OpenFile(filepath.Join(abs, lockFileName), os.O_CREATE|os.O_RDWR, filePerm)
	if err != nil {
		return nil, storage.NewError("open", "", err)
	}
	if err := lockFile(lock); err != nil {
		_ = lock.Close()
		return nil, storage.NewError("open", "", fmt.Errorf("%s: %w", abs, err))
	}

	d := &diskStore{dir: abs, lock: lock}
	d.removeStaleTemps()
	log.Debugf("opened blob directory %s", abs)
	return d, nil
}

// OpenTemp creates a fresh uniquely named directory below the system temp dir
func OpenTemp() (storage.Backend, error) {
	return Open(filepath.Join(os.TempDir(), "largedict-"+uuid.NewString()))
}

// removeStaleTemps deletes leftovers of writes interrupted by a crash
func (d *diskStore) removeStaleTemps() {
	matches, _ := filepath.Glob(filepath.Join(d.dir, tmpPrefix+"*"))
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			log.Infof("removed stale temp file %s", m)
		}
	}
}

func (d *diskStore) path(key string) string {
	return filepath.Join(d.dir, key)
}

// acquire read-locks the closed flag for the duration of one operation
func (d *diskStore) acquire() error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return storage.ErrClosed
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see storage.Backend)
// --------------------------------------------------------------------------

func (d *diskStore) Save(key string, blob []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.mu.RUnlock()

	tmp, err := os.CreateTemp(d.dir, tmpPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		cleanup()
		return err
	}
	if err := atomic.ReplaceFile(tmpName, d.path(key)); err != nil {
		cleanup()
		return err
	}
	return nil
}

func (d *diskStore) Load(key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.mu.RUnlock()

	blob, err := os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	return blob, err
}

func (d *diskStore) Remove(key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := d.acquire(); err != nil {
		return err
	}
	defer d.mu.RUnlock()

	// RemoveAll also clears directories some other writer left under the name
	return os.RemoveAll(d.path(key))
}

func (d *diskStore) Exists(key string) bool {
	if validKey(key) != nil {
		return false
	}
	if d.acquire() != nil {
		return false
	}
	defer d.mu.RUnlock()

	info, err := os.Stat(d.path(key))
	return err == nil && info.Mode().IsRegular()
}

func (d *diskStore) Keys() ([]string, error) {
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.mu.RUnlock()

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		keys = append(keys, e.Name())
	}
	return keys, nil
}

func (d *diskStore) Location(key string) string {
	if key == "" {
		return d.dir
	}
	return d.path(key)
}

func (d *diskStore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.release()
}

func (d *diskStore) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if !d.closed {
		d.closed = true
		err = d.release()
	}
	if rmErr := os.RemoveAll(d.dir); rmErr != nil {
		return rmErr
	}
	log.Debugf("removed blob directory %s", d.dir)
	return err
}

// release drops the directory lock, caller holds mu
func (d *diskStore) release() error {
	unlockErr := unlockFile(d.lock)
	closeErr := d.lock.Close()
	return errors.Join(unlockErr, closeErr)
}

// validKey rejects names that would escape the directory or hide as a
// control file
func validKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid blob name %q", key)
	}
	return nil
}
