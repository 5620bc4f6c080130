package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password CHAR(40) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL,
		name VARCHAR(255) NOT NULL,
		type VARCHAR(16) NOT NULL,
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		parent_id VARCHAR(36) NOT NULL,
		local_path VARCHAR(1024) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		INDEX idx_files_owner_parent (user_id, parent_id, created_at)
	)`,
}

const fileColumns = `id, user_id, name, type, is_public, parent_id, local_path`

// TiDBClient stores users and file metadata in TiDB (MySQL protocol)
type TiDBClient struct {
	db *sql.DB
}

// NewTiDBClient initializes a new TiDB client
func NewTiDBClient(ctx context.Context, dsn string) (*TiDBClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return NewTiDBClientFromDB(db), nil
}

// NewTiDBClientFromDB wraps an already opened database
func NewTiDBClientFromDB(db *sql.DB) *TiDBClient {
	return &TiDBClient{db: db}
}

// EnsureSchema creates the tables when missing
func (tc *TiDBClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := tc.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Ping checks the connection
func (tc *TiDBClient) Ping(ctx context.Context) error {
	return tc.db.PingContext(ctx)
}

// Close closes the database connection
func (tc *TiDBClient) Close() error {
	return tc.db.Close()
}

// CreateUser inserts user and assigns its ID
func (tc *TiDBClient) CreateUser(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "tidb.create_user")
	defer span.End()

	id := uuid.New().String()
	query := `INSERT INTO users (id, email, password) VALUES (?, ?, ?)`
	if _, err := tc.db.ExecContext(ctx, query, id, user.Email, user.PasswordHash); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert user: %w", err)
	}
	user.ID = id
	return nil
}

// GetUser returns the user with id
func (tc *TiDBClient) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "tidb.get_user",
		trace.WithAttributes(attribute.String("user_id", id)),
	)
	defer span.End()

	return tc.queryUser(ctx, `SELECT id, email, password FROM users WHERE id = ?`, id)
}

// FindUserByEmail returns the user registered with email
func (tc *TiDBClient) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "tidb.find_user_by_email")
	defer span.End()

	return tc.queryUser(ctx, `SELECT id, email, password FROM users WHERE email = ?`, email)
}

// FindUserByCredentials returns the user matching both email and password hash
func (tc *TiDBClient) FindUserByCredentials(ctx context.Context, email, passwordHash string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "tidb.find_user_by_credentials")
	defer span.End()

	return tc.queryUser(ctx, `SELECT id, email, password FROM users WHERE email = ? AND password = ?`, email, passwordHash)
}

func (tc *TiDBClient) queryUser(ctx context.Context, query string, args ...any) (*models.User, error) {
	var user models.User
	err := tc.db.QueryRowContext(ctx, query, args...).Scan(&user.ID, &user.Email, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNoRecord
	} else if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// CreateFile inserts entry and assigns its ID
func (tc *TiDBClient) CreateFile(ctx context.Context, entry *models.FileEntry) error {
	ctx, span := tracer.Start(ctx, "tidb.create_file",
		trace.WithAttributes(
			attribute.String("file_name", entry.Name),
			attribute.String("file_type", string(entry.Type)),
		),
	)
	defer span.End()

	id := uuid.New().String()
	query := `INSERT INTO files (id, user_id, name, type, is_public, parent_id, local_path, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tc.db.ExecContext(ctx, query,
		id, entry.UserID, entry.Name, string(entry.Type), entry.IsPublic,
		entry.ParentID.String(), entry.LocalPath, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert file: %w", err)
	}

	entry.ID = id
	span.SetAttributes(attribute.String("file_id", id))
	return nil
}

// GetFile returns the entry with id regardless of its owner
func (tc *TiDBClient) GetFile(ctx context.Context, id string) (*models.FileEntry, error) {
	ctx, span := tracer.Start(ctx, "tidb.get_file",
		trace.WithAttributes(attribute.String("file_id", id)),
	)
	defer span.End()

	return tc.queryFile(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
}

// GetUserFile returns the entry with id owned by userID
func (tc *TiDBClient) GetUserFile(ctx context.Context, id, userID string) (*models.FileEntry, error) {
	ctx, span := tracer.Start(ctx, "tidb.get_user_file",
		trace.WithAttributes(
			attribute.String("file_id", id),
			attribute.String("user_id", userID),
		),
	)
	defer span.End()

	return tc.queryFile(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ? AND user_id = ?`, id, userID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*models.FileEntry, error) {
	var (
		entry    models.FileEntry
		fileType string
		parentID string
	)
	if err := row.Scan(&entry.ID, &entry.UserID, &entry.Name, &fileType, &entry.IsPublic, &parentID, &entry.LocalPath); err != nil {
		return nil, err
	}
	entry.Type = models.FileType(fileType)
	entry.ParentID = models.ParseParentRef(parentID)
	return &entry, nil
}

func (tc *TiDBClient) queryFile(ctx context.Context, query string, args ...any) (*models.FileEntry, error) {
	entry, err := scanFile(tc.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNoRecord
	} else if err != nil {
		return nil, fmt.Errorf("failed to query file: %w", err)
	}
	return entry, nil
}

// ListFiles returns up to limit entries of userID directly under parent,
// skipping the first skip matches
func (tc *TiDBClient) ListFiles(ctx context.Context, userID string, parent models.ParentRef, skip, limit int) ([]*models.FileEntry, error) {
	ctx, span := tracer.Start(ctx, "tidb.list_files",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("parent_id", parent.String()),
			attribute.Int("skip", skip),
		),
	)
	defer span.End()

	query := `SELECT ` + fileColumns + `
			  FROM files
			  WHERE user_id = ? AND parent_id = ?
			  ORDER BY created_at ASC, id ASC
			  LIMIT ? OFFSET ?`

	rows, err := tc.db.QueryContext(ctx, query, userID, parent.String(), limit, skip)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.FileEntry, 0)
	for rows.Next() {
		entry, err := scanFile(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(entries)))
	return entries, nil
}

// SetFilePublic updates the visibility of the entry id owned by userID
func (tc *TiDBClient) SetFilePublic(ctx context.Context, id, userID string, isPublic bool) (*models.FileEntry, error) {
	ctx, span := tracer.Start(ctx, "tidb.set_file_public",
		trace.WithAttributes(
			attribute.String("file_id", id),
			attribute.Bool("is_public", isPublic),
		),
	)
	defer span.End()

	query := `UPDATE files SET is_public = ? WHERE id = ? AND user_id = ?`
	if _, err := tc.db.ExecContext(ctx, query, isPublic, id, userID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update file: %w", err)
	}

	// RowsAffected is 0 for an unchanged value, so existence is checked by reading back.
	return tc.queryFile(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ? AND user_id = ?`, id, userID)
}

// CountUsers returns the number of users
func (tc *TiDBClient) CountUsers(ctx context.Context) (int64, error) {
	return tc.count(ctx, `SELECT COUNT(*) FROM users`)
}

// CountFiles returns the number of entries
func (tc *TiDBClient) CountFiles(ctx context.Context) (int64, error) {
	return tc.count(ctx, `SELECT COUNT(*) FROM files`)
}

func (tc *TiDBClient) count(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := tc.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}
