// Package files manages file and folder metadata, their blobs and the
// thumbnail job handoff.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"

	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/metrics"
	"github.com/maneesh/filesmanager/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("files-manager-files")

const defaultContentType = "application/octet-stream"

// MetadataStore persists file entries
type MetadataStore interface {
	CreateFile(ctx context.Context, entry *models.FileEntry) error
	GetFile(ctx context.Context, id string) (*models.FileEntry, error)
	GetUserFile(ctx context.Context, id, userID string) (*models.FileEntry, error)
	ListFiles(ctx context.Context, userID string, parent models.ParentRef, skip, limit int) ([]*models.FileEntry, error)
	SetFilePublic(ctx context.Context, id, userID string, isPublic bool) (*models.FileEntry, error)
}

// BlobStore holds raw file bytes
type BlobStore interface {
	Save(ctx context.Context, data []byte) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Remove(ctx context.Context, path string) error
}

// JobQueue receives thumbnail jobs for uploaded images
type JobQueue interface {
	Enqueue(ctx context.Context, job models.ThumbnailJob) error
}

// SessionResolver maps a session token to a user id
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (string, error)
}

// Content is the readable body of a stored file
type Content struct {
	Body        io.ReadCloser
	ContentType string
	Name        string
}

// Manager implements the file operations. Every operation resolves the
// session first.
//
// The parent check and the insert of an upload are not transactional: a
// parent removed in between is not detected.
type Manager struct {
	sessions SessionResolver
	store    MetadataStore
	blobs    BlobStore
	jobs     JobQueue
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewManager creates a Manager; m may be nil
func NewManager(sessions SessionResolver, store MetadataStore, blobs BlobStore, jobs JobQueue, logger *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		sessions: sessions,
		store:    store,
		blobs:    blobs,
		jobs:     jobs,
		logger:   logger,
		metrics:  m,
	}
}

// Authenticate resolves token to a user id
func (m *Manager) Authenticate(ctx context.Context, token string) (string, error) {
	return m.sessions.ResolveSession(ctx, token)
}

// Upload validates in, stores its blob when it has content and persists the entry.
// Images are handed to the thumbnail queue.
func (m *Manager) Upload(ctx context.Context, token string, in UploadInput) (*models.FileEntry, error) {
	ctx, span := tracer.Start(ctx, "files.upload",
		trace.WithAttributes(
			attribute.String("file_name", in.Name),
			attribute.String("file_type", string(in.Type)),
		),
	)
	defer span.End()

	userID, err := m.sessions.ResolveSession(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := in.Validate(); err != nil {
		return nil, err
	}

	if err := m.checkParent(ctx, in.ParentID); err != nil {
		return nil, err
	}

	entry := &models.FileEntry{
		UserID:   userID,
		Name:     in.Name,
		Type:     in.Type,
		IsPublic: in.IsPublic,
		ParentID: in.ParentID,
	}

	var data []byte
	if in.Type.HasContent() {
		if data, err = in.content(); err != nil {
			return nil, err
		}
		path, err := m.blobs.Save(ctx, data)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to store blob: %w", err)
		}
		entry.LocalPath = path
	}

	if err := m.store.CreateFile(ctx, entry); err != nil {
		span.RecordError(err)
		if entry.LocalPath != "" {
			if rmErr := m.blobs.Remove(ctx, entry.LocalPath); rmErr != nil {
				m.logger.WarnContext(ctx, "failed to remove orphan blob", "path", entry.LocalPath, "error", rmErr)
			}
		}
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	span.SetAttributes(attribute.String("file_id", entry.ID))
	m.metrics.UploadStored(string(entry.Type), len(data))
	m.logger.InfoContext(ctx, "entry stored",
		"file_id", entry.ID,
		"user_id", userID,
		"type", entry.Type,
		"size_bytes", len(data),
	)

	if entry.Type == models.FileTypeImage {
		job := models.ThumbnailJob{FileID: entry.ID, UserID: userID}
		if err := m.jobs.Enqueue(ctx, job); err != nil {
			// The entry is stored; thumbnails are best effort.
			m.logger.WarnContext(ctx, "failed to enqueue thumbnail job", "file_id", entry.ID, "error", err)
		}
	}

	return entry, nil
}

func (m *Manager) checkParent(ctx context.Context, parent models.ParentRef) error {
	if parent.IsRoot() {
		return nil
	}

	entry, err := m.store.GetFile(ctx, parent.ID())
	if errors.Is(err, apperr.ErrNoRecord) {
		return apperr.ErrParentNotFound
	} else if err != nil {
		return fmt.Errorf("failed to get parent: %w", err)
	}
	if !entry.IsFolder() {
		return apperr.ErrParentNotFolder
	}
	return nil
}

// GetByID returns the entry id owned by the session user
func (m *Manager) GetByID(ctx context.Context, token, id string) (*models.FileEntry, error) {
	ctx, span := tracer.Start(ctx, "files.get",
		trace.WithAttributes(attribute.String("file_id", id)),
	)
	defer span.End()

	userID, err := m.sessions.ResolveSession(ctx, token)
	if err != nil {
		return nil, err
	}
	return m.ownedEntry(ctx, id, userID)
}

func (m *Manager) ownedEntry(ctx context.Context, id, userID string) (*models.FileEntry, error) {
	entry, err := m.store.GetUserFile(ctx, id, userID)
	if errors.Is(err, apperr.ErrNoRecord) {
		return nil, apperr.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return entry, nil
}

// List returns one page of the session user's entries directly under parent
func (m *Manager) List(ctx context.Context, token string, parent models.ParentRef, page int) ([]*models.FileEntry, error) {
	ctx, span := tracer.Start(ctx, "files.list",
		trace.WithAttributes(
			attribute.String("parent_id", parent.String()),
			attribute.Int("page", page),
		),
	)
	defer span.End()

	userID, err := m.sessions.ResolveSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if page < 0 {
		page = 0
	}

	entries, err := m.store.ListFiles(ctx, userID, parent, page*PageSize, PageSize)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	if entries == nil {
		entries = []*models.FileEntry{}
	}
	return entries, nil
}

// SetVisibility sets isPublic on the session user's entry id
func (m *Manager) SetVisibility(ctx context.Context, token, id string, isPublic bool) (*models.FileEntry, error) {
	ctx, span := tracer.Start(ctx, "files.set_visibility",
		trace.WithAttributes(
			attribute.String("file_id", id),
			attribute.Bool("is_public", isPublic),
		),
	)
	defer span.End()

	userID, err := m.sessions.ResolveSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if _, err := m.ownedEntry(ctx, id, userID); err != nil {
		return nil, err
	}

	entry, err := m.store.SetFilePublic(ctx, id, userID, isPublic)
	if errors.Is(err, apperr.ErrNoRecord) {
		return nil, apperr.ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update file: %w", err)
	}
	return entry, nil
}

// GetContent opens the blob of entry id. Private entries require a token of
// their owner; any failure to prove ownership reads as not found. A non-zero
// size selects one of the thumbnail derivatives.
func (m *Manager) GetContent(ctx context.Context, id, token string, size int) (*Content, error) {
	ctx, span := tracer.Start(ctx, "files.get_content",
		trace.WithAttributes(
			attribute.String("file_id", id),
			attribute.Int("size", size),
		),
	)
	defer span.End()

	entry, err := m.store.GetFile(ctx, id)
	if errors.Is(err, apperr.ErrNoRecord) {
		return nil, apperr.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	if entry.IsFolder() {
		return nil, apperr.ErrFolderContent
	}

	if !entry.IsPublic {
		if token == "" {
			return nil, apperr.ErrNotFound
		}
		userID, err := m.sessions.ResolveSession(ctx, token)
		if apperr.KindOf(err) == apperr.KindUnauthorized {
			return nil, apperr.ErrNotFound
		} else if err != nil {
			return nil, err
		}
		if userID != entry.UserID {
			return nil, apperr.ErrNotFound
		}
	}

	path := entry.LocalPath
	if size != 0 {
		if !models.IsThumbnailWidth(size) {
			return nil, apperr.ErrNotFound
		}
		path = models.ThumbnailPath(path, size)
	}

	body, err := m.blobs.Open(ctx, path)
	if errors.Is(err, apperr.ErrNoRecord) {
		return nil, apperr.ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}

	return &Content{
		Body:        body,
		ContentType: ContentType(entry.Name),
		Name:        entry.Name,
	}, nil
}

// ContentType guesses the MIME type of name from its extension
func ContentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return defaultContentType
}
