// Package app builds the storage backends selected by the configuration.
// Both binaries share it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/maneesh/filesmanager/internal/config"
	"github.com/maneesh/filesmanager/internal/models"
	"github.com/maneesh/filesmanager/internal/storage"
)

// MetadataStore is the contract every metadata backend fulfils
type MetadataStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByCredentials(ctx context.Context, email, passwordHash string) (*models.User, error)

	CreateFile(ctx context.Context, entry *models.FileEntry) error
	GetFile(ctx context.Context, id string) (*models.FileEntry, error)
	GetUserFile(ctx context.Context, id, userID string) (*models.FileEntry, error)
	ListFiles(ctx context.Context, userID string, parent models.ParentRef, skip, limit int) ([]*models.FileEntry, error)
	SetFilePublic(ctx context.Context, id, userID string, isPublic bool) (*models.FileEntry, error)

	CountUsers(ctx context.Context) (int64, error)
	CountFiles(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// BlobStore is the contract every blob backend fulfils
type BlobStore interface {
	Save(ctx context.Context, data []byte) (string, error)
	Put(ctx context.Context, path string, data []byte) error
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Remove(ctx context.Context, path string) error
}

var (
	_ MetadataStore = (*storage.MongoClient)(nil)
	_ MetadataStore = (*storage.TiDBClient)(nil)
	_ MetadataStore = (*storage.MemoryStore)(nil)

	_ BlobStore = (*storage.DiskBlobStore)(nil)
	_ BlobStore = (*storage.MinioClient)(nil)
)

const connectTimeout = 10 * time.Second

// OpenMetadataStore connects the backend named by cfg.MetadataBackend
func OpenMetadataStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (MetadataStore, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.MetadataBackend {
	case "mongo":
		logger.Info("connecting to MongoDB", "uri", cfg.GetMongoURI(), "database", cfg.DBDatabase)
		client, err := storage.NewMongoClient(ctx, cfg.GetMongoURI(), cfg.DBDatabase)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "tidb":
		logger.Info("connecting to TiDB", "host", cfg.TiDBHost, "database", cfg.TiDBDatabase)
		client, err := storage.NewTiDBClient(ctx, cfg.GetDSN())
		if err != nil {
			return nil, err
		}
		if err := client.EnsureSchema(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return client, nil
	case "memory":
		logger.Warn("using in-memory metadata store, data is lost on exit")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", cfg.MetadataBackend)
	}
}

// OpenBlobStore creates the backend named by cfg.BlobBackend
func OpenBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (BlobStore, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.BlobBackend {
	case "disk":
		logger.Info("using disk blob store", "root", cfg.FolderPath)
		store, err := storage.NewDiskBlobStore(cfg.FolderPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "minio":
		logger.Info("connecting to MinIO", "endpoint", cfg.MinIOEndpoint, "bucket", cfg.MinIOBucketName)
		client, err := storage.NewMinioClient(ctx,
			cfg.MinIOEndpoint,
			cfg.MinIOAccessKey,
			cfg.MinIOSecretKey,
			cfg.MinIOBucketName,
			cfg.MinIOUseSSL,
			logger,
		)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}
