// Package storage holds the adapters over the external services: Redis for
// sessions and the job queue, MongoDB or TiDB for metadata, the local disk
// or MinIO for blobs. Every adapter call is traced.
package storage

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("files-manager-storage")

const (
	usersCollection = "users"
	filesCollection = "files"
)
