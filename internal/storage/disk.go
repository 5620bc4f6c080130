package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/maneesh/filesmanager/internal/apperr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DiskBlobStore keeps blobs as flat files under a root directory.
//
// Blob names are random UUIDs, unrelated to the display name of the entry.
// Concurrent writers never share a path since every Save picks a new name.
type DiskBlobStore struct {
	root string
}

// NewDiskBlobStore creates root if needed
func NewDiskBlobStore(root string) (*DiskBlobStore, error) {
	if root == "" {
		return nil, fmt.Errorf("blob root directory is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root %s: %w", root, err)
	}
	return &DiskBlobStore{root: root}, nil
}

// Root returns the storage directory
func (ds *DiskBlobStore) Root() string {
	return ds.root
}

// Save writes data under a freshly generated name and returns its path
func (ds *DiskBlobStore) Save(ctx context.Context, data []byte) (string, error) {
	path := filepath.Join(ds.root, uuid.New().String())
	if err := ds.Put(ctx, path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Put writes data at path, replacing any previous content
func (ds *DiskBlobStore) Put(ctx context.Context, path string, data []byte) error {
	_, span := tracer.Start(ctx, "disk.put_blob",
		trace.WithAttributes(
			attribute.String("path", path),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

// Open returns a reader over the blob at path
func (ds *DiskBlobStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	_, span := tracer.Start(ctx, "disk.open_blob",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, apperr.ErrNoRecord
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Remove deletes the blob at path; a missing blob is not an error
func (ds *DiskBlobStore) Remove(ctx context.Context, path string) error {
	_, span := tracer.Start(ctx, "disk.remove_blob",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		span.RecordError(err)
		return fmt.Errorf("failed to remove blob: %w", err)
	}
	return nil
}
