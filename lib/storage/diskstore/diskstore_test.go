package diskstore

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/cyyever/largedict/lib/storage"
	storagetesting "github.com/cyyever/largedict/lib/storage/testing"
	"github.com/stretchr/testify/require"
)

func Test(t *testing.T) {
	storagetesting.RunBackendTests(t, "DiskStore", func() (storage.Backend, error) {
		return Open(t.TempDir())
	})
}

func TestDirectoryLock(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("directory locks are unix only")
	}
	dir := t.TempDir()

	first, err := Open(dir)
	require.NoError(t, err)

	_, err = Open(dir)
	require.Error(t, err)
	require.True(t, errors.Is(err, storage.ErrDirLocked))
	require.True(t, errors.Is(err, storage.ErrStorage))

	require.NoError(t, first.Close())

	// released on Close
	second, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestReopenKeepsBlobs(t *testing.T) {
	dir := t.TempDir()

	b, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, b.Save("42", []byte("answer")))
	require.NoError(t, b.Close())

	// leftovers of an interrupted write are cleaned up and never listed
	require.NoError(t, os.WriteFile(filepath.Join(dir, tmpPrefix+"123"), []byte("partial"), 0o644))

	b, err = Open(dir)
	require.NoError(t, err)
	defer b.Close()

	keys, err := b.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"42"}, keys)

	blob, err := b.Load("42")
	require.NoError(t, err)
	require.Equal(t, "answer", string(blob))

	_, err = os.Stat(filepath.Join(dir, tmpPrefix+"123"))
	require.True(t, os.IsNotExist(err))
}

func TestOpenTempAndDestroy(t *testing.T) {
	b, err := OpenTemp()
	require.NoError(t, err)

	dir := b.Location("")
	require.DirExists(t, dir)
	require.Contains(t, filepath.Base(dir), "largedict-")

	require.NoError(t, b.Save("x", []byte("1")))
	require.Equal(t, filepath.Join(dir, "x"), b.Location("x"))

	require.NoError(t, b.Destroy())
	require.NoDirExists(t, dir)
}

func TestRejectsUnsafeNames(t *testing.T) {
	b, err := Open(t.TempDir())
	require.NoError(t, err)
	defer b.Destroy()

	for _, name := range []string{"", ".", "..", "../escape", "a/b", ".lock", ".hidden"} {
		require.Error(t, b.Save(name, []byte("x")), name)
		require.False(t, b.Exists(name), name)
	}
}
