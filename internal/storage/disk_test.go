package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskBlobStore_SaveOpen(t *testing.T) {
	root := filepath.Join(t.TempDir(), "files_manager")
	ds, err := NewDiskBlobStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	path, err := ds.Save(ctx, []byte("Hello Webstack!"))
	require.NoError(t, err)
	assert.Equal(t, root, filepath.Dir(path))

	other, err := ds.Save(ctx, []byte("Hello Webstack!"))
	require.NoError(t, err)
	assert.NotEqual(t, path, other)

	r, err := ds.Open(ctx, path)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Hello Webstack!", string(data))
}

func TestDiskBlobStore_PutDerivative(t *testing.T) {
	ds, err := NewDiskBlobStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	path, err := ds.Save(ctx, []byte("original"))
	require.NoError(t, err)
	require.NoError(t, ds.Put(ctx, path+"_100", []byte("thumb")))

	data, err := os.ReadFile(path + "_100")
	require.NoError(t, err)
	assert.Equal(t, "thumb", string(data))
}

func TestDiskBlobStore_Missing(t *testing.T) {
	ds, err := NewDiskBlobStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ds.Open(ctx, filepath.Join(ds.Root(), "nope"))
	assert.True(t, errors.Is(err, apperr.ErrNoRecord))

	assert.NoError(t, ds.Remove(ctx, filepath.Join(ds.Root(), "nope")))
}

func TestDiskBlobStore_Remove(t *testing.T) {
	ds, err := NewDiskBlobStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	path, err := ds.Save(ctx, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, ds.Remove(ctx, path))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestNewDiskBlobStore_EmptyRoot(t *testing.T) {
	_, err := NewDiskBlobStore("")
	assert.Error(t, err)
}
