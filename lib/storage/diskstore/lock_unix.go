//go:build unix

package diskstore

import (
	"errors"
	"os"

	"github.com/cyyever/largedict/lib/storage"
	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive, non-blocking advisory lock on f
func lockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return storage.ErrDirLocked
	}
	return err
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
