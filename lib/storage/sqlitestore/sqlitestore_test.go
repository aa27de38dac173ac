package sqlitestore

import (
	"path/filepath"
	"testing"

	"github.com/cyyever/largedict/lib/storage"
	storagetesting "github.com/cyyever/largedict/lib/storage/testing"
	"github.com/stretchr/testify/require"
)

func Test(t *testing.T) {
	storagetesting.RunBackendTests(t, "SQLiteStore", func() (storage.Backend, error) {
		return Open(filepath.Join(t.TempDir(), "blobs.db"))
	})
}

func TestReopenKeepsBlobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "blobs.db")

	b, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, b.Save("k", []byte("v")))
	require.NoError(t, b.Close())

	b, err = Open(path)
	require.NoError(t, err)
	defer b.Destroy()

	blob, err := b.Load("k")
	require.NoError(t, err)
	require.Equal(t, "v", string(blob))
	require.Equal(t, path+"#k", b.Location("k"))
}
