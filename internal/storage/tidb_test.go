package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockTiDB(t *testing.T) (*TiDBClient, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTiDBClientFromDB(db), mock
}

var fileRowColumns = []string{"id", "user_id", "name", "type", "is_public", "parent_id", "local_path"}

func TestTiDBClient_EnsureSchema(t *testing.T) {
	tc, mock := newMockTiDB(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS users")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS files")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, tc.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTiDBClient_CreateFile(t *testing.T) {
	tc, mock := newMockTiDB(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO files (id, user_id, name, type, is_public, parent_id, local_path, created_at)")).
		WithArgs(sqlmock.AnyArg(), "u1", "photo.png", "image", false, "0", "/tmp/files_manager/abc", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.FileEntry{
		UserID:    "u1",
		Name:      "photo.png",
		Type:      models.FileTypeImage,
		ParentID:  models.Root,
		LocalPath: "/tmp/files_manager/abc",
	}
	require.NoError(t, tc.CreateFile(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTiDBClient_GetUserFile(t *testing.T) {
	tc, mock := newMockTiDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, name, type, is_public, parent_id, local_path FROM files WHERE id = ? AND user_id = ?")).
		WithArgs("f1", "u1").
		WillReturnRows(sqlmock.NewRows(fileRowColumns).
			AddRow("f1", "u1", "docs", "folder", true, "p1", ""))

	entry, err := tc.GetUserFile(context.Background(), "f1", "u1")
	require.NoError(t, err)
	assert.Equal(t, models.FileTypeFolder, entry.Type)
	assert.True(t, entry.IsPublic)
	assert.Equal(t, models.FolderRef("p1"), entry.ParentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTiDBClient_GetFile_NotFound(t *testing.T) {
	tc, mock := newMockTiDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM files WHERE id = ?")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(fileRowColumns))

	_, err := tc.GetFile(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperr.ErrNoRecord))
}

func TestTiDBClient_ListFiles(t *testing.T) {
	tc, mock := newMockTiDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = ? AND parent_id = ?")).
		WithArgs("u1", "0", 20, 40).
		WillReturnRows(sqlmock.NewRows(fileRowColumns).
			AddRow("f41", "u1", "a.txt", "file", false, "0", "/tmp/a").
			AddRow("f42", "u1", "b.txt", "file", false, "0", "/tmp/b"))

	entries, err := tc.ListFiles(context.Background(), "u1", models.Root, 40, 20)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].ParentID.IsRoot())
	assert.Equal(t, "f42", entries[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTiDBClient_SetFilePublic(t *testing.T) {
	tc, mock := newMockTiDB(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE files SET is_public = ? WHERE id = ? AND user_id = ?")).
		WithArgs(true, "f1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM files WHERE id = ? AND user_id = ?")).
		WithArgs("f1", "u1").
		WillReturnRows(sqlmock.NewRows(fileRowColumns).
			AddRow("f1", "u1", "a.txt", "file", true, "0", "/tmp/a"))

	entry, err := tc.SetFilePublic(context.Background(), "f1", "u1", true)
	require.NoError(t, err)
	assert.True(t, entry.IsPublic)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTiDBClient_SetFilePublic_NotOwned(t *testing.T) {
	tc, mock := newMockTiDB(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE files SET is_public = ?")).
		WithArgs(true, "f1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM files WHERE id = ? AND user_id = ?")).
		WithArgs("f1", "u2").
		WillReturnRows(sqlmock.NewRows(fileRowColumns))

	_, err := tc.SetFilePublic(context.Background(), "f1", "u2", true)
	assert.True(t, errors.Is(err, apperr.ErrNoRecord))
}

func TestTiDBClient_Users(t *testing.T) {
	tc, mock := newMockTiDB(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (id, email, password) VALUES (?, ?, ?)")).
		WithArgs(sqlmock.AnyArg(), "bob@dylan.com", "89cad29e3ebc1035b29b1478a8e70854f25fa2b2").
		WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Email: "bob@dylan.com", PasswordHash: "89cad29e3ebc1035b29b1478a8e70854f25fa2b2"}
	require.NoError(t, tc.CreateUser(ctx, user))
	require.NotEmpty(t, user.ID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password FROM users WHERE email = ? AND password = ?")).
		WithArgs("bob@dylan.com", "wrong").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password"}))

	_, err := tc.FindUserByCredentials(ctx, "bob@dylan.com", "wrong")
	assert.True(t, errors.Is(err, apperr.ErrNoRecord))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	n, err := tc.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTiDBClient_QueryError(t *testing.T) {
	tc, mock := newMockTiDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = ?")).
		WithArgs("u1").
		WillReturnError(errors.New("connection reset"))

	_, err := tc.GetUser(context.Background(), "u1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperr.ErrNoRecord))
}
