package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MinioClient stores blobs as objects in a MinIO bucket. The "path" of a
// blob is its object key.
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

// NewMinioClient initializes a new MinIO client and ensures the bucket exists
func NewMinioClient(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, useSSL bool, logger *slog.Logger) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		logger.Info("creating bucket", "bucket", bucketName)
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioClient{client: client, bucketName: bucketName}, nil
}

// Save uploads data under a freshly generated key and returns the key
func (mc *MinioClient) Save(ctx context.Context, data []byte) (string, error) {
	key := uuid.New().String()
	if err := mc.Put(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}

// Put uploads data under key
func (mc *MinioClient) Put(ctx context.Context, key string, data []byte) error {
	ctx, span := tracer.Start(ctx, "minio.put_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	_, err := mc.client.PutObject(ctx, mc.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Open returns a reader over the object at key
func (mc *MinioClient) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "minio.get_object",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	object, err := mc.client.GetObject(ctx, mc.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := object.Stat(); err != nil {
		object.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			span.SetAttributes(attribute.Bool("found", false))
			return nil, apperr.ErrNoRecord
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return object, nil
}

// Remove deletes the object at key
func (mc *MinioClient) Remove(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "minio.remove_object",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	if err := mc.client.RemoveObject(ctx, mc.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to remove object: %w", err)
	}
	return nil
}

// Ping checks that the bucket is reachable
func (mc *MinioClient) Ping(ctx context.Context) error {
	_, err := mc.client.BucketExists(ctx, mc.bucketName)
	return err
}
