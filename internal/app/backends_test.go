package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/maneesh/filesmanager/internal/config"
	"github.com/maneesh/filesmanager/internal/logging"
	"github.com/maneesh/filesmanager/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMetadataStore_Memory(t *testing.T) {
	cfg := &config.Config{MetadataBackend: "memory"}

	store, err := OpenMetadataStore(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &storage.MemoryStore{}, store)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpenMetadataStore_Unknown(t *testing.T) {
	_, err := OpenMetadataStore(context.Background(), &config.Config{MetadataBackend: "sqlite"}, logging.Discard())
	assert.Error(t, err)
}

func TestOpenBlobStore_Disk(t *testing.T) {
	root := filepath.Join(t.TempDir(), "files_manager")
	cfg := &config.Config{BlobBackend: "disk", FolderPath: root}

	blobs, err := OpenBlobStore(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)

	path, err := blobs.Save(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, root, filepath.Dir(path))
}

func TestOpenBlobStore_Errors(t *testing.T) {
	_, err := OpenBlobStore(context.Background(), &config.Config{BlobBackend: "disk"}, logging.Discard())
	assert.Error(t, err)

	_, err = OpenBlobStore(context.Background(), &config.Config{BlobBackend: "s3"}, logging.Discard())
	assert.Error(t, err)
}
