package files

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/auth"
	"github.com/maneesh/filesmanager/internal/logging"
	"github.com/maneesh/filesmanager/internal/metrics"
	"github.com/maneesh/filesmanager/internal/models"
	"github.com/maneesh/filesmanager/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []models.ThumbnailJob
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job models.ThumbnailJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fixture struct {
	manager *Manager
	auth    *auth.Service
	store   *storage.MemoryStore
	blobs   *storage.DiskBlobStore
	queue   *recordingQueue
	mr      *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := storage.NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	blobs, err := storage.NewDiskBlobStore(t.TempDir())
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	m := metrics.New()
	svc := auth.NewService(store, rc, logging.Discard(), m)
	queue := &recordingQueue{}

	return &fixture{
		manager: NewManager(svc, store, blobs, queue, logging.Discard(), m),
		auth:    svc,
		store:   store,
		blobs:   blobs,
		queue:   queue,
		mr:      mr,
	}
}

// login registers email and returns its user id and a fresh token
func (f *fixture) login(t *testing.T, email string) (string, string) {
	t.Helper()
	ctx := context.Background()
	user, err := f.auth.Register(ctx, email, "pw")
	require.NoError(t, err)
	header := "Basic " + base64.StdEncoding.EncodeToString([]byte(email+":pw"))
	token, err := f.auth.Login(ctx, header)
	require.NoError(t, err)
	return user.ID, token
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func blobCount(t *testing.T, root string) int {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	return len(entries)
}

func TestManager_Upload_File(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID, token := f.login(t, "bob@dylan.com")

	entry, err := f.manager.Upload(ctx, token, UploadInput{
		Name: "hello.txt",
		Type: models.FileTypeFile,
		Data: encode("Hello Webstack!"),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, userID, entry.UserID)
	assert.True(t, entry.ParentID.IsRoot())
	assert.False(t, entry.IsPublic)
	require.NotEmpty(t, entry.LocalPath)

	data, err := os.ReadFile(entry.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "Hello Webstack!", string(data))
	assert.Empty(t, f.queue.jobs)
}

func TestManager_Upload_Folder(t *testing.T) {
	f := newFixture(t)
	_, token := f.login(t, "bob@dylan.com")

	entry, err := f.manager.Upload(context.Background(), token, UploadInput{
		Name: "images",
		Type: models.FileTypeFolder,
	})
	require.NoError(t, err)
	assert.Empty(t, entry.LocalPath)
	assert.Equal(t, 0, blobCount(t, f.blobs.Root()))
}

func TestManager_Upload_Unauthorized(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Upload(context.Background(), "nope", UploadInput{Name: "x", Type: models.FileTypeFolder})
	assert.Equal(t, apperr.ErrUnauthorized, err)

	// session is checked before the body
	_, err = f.manager.Upload(context.Background(), "", UploadInput{})
	assert.Equal(t, apperr.ErrUnauthorized, err)
}

func TestManager_Upload_Validation(t *testing.T) {
	f := newFixture(t)
	_, token := f.login(t, "bob@dylan.com")

	tests := []struct {
		name string
		in   UploadInput
		want error
	}{
		{"missing name", UploadInput{Type: models.FileTypeFile, Data: encode("x")}, apperr.ErrMissingName},
		{"missing type", UploadInput{Name: "x"}, apperr.ErrMissingType},
		{"unknown type", UploadInput{Name: "x", Type: "video", Data: encode("x")}, apperr.ErrMissingType},
		{"missing data", UploadInput{Name: "x", Type: models.FileTypeFile}, apperr.ErrMissingData},
		{"missing image data", UploadInput{Name: "x.png", Type: models.FileTypeImage}, apperr.ErrMissingData},
		{"bad base64", UploadInput{Name: "x", Type: models.FileTypeFile, Data: "%%%"}, apperr.ErrMissingData},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.manager.Upload(context.Background(), token, tc.in)
			assert.Equal(t, tc.want, err)
		})
	}
	assert.Equal(t, 0, blobCount(t, f.blobs.Root()))
}

func TestManager_Upload_Parent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, token := f.login(t, "bob@dylan.com")

	folder, err := f.manager.Upload(ctx, token, UploadInput{Name: "docs", Type: models.FileTypeFolder})
	require.NoError(t, err)
	file, err := f.manager.Upload(ctx, token, UploadInput{Name: "a.txt", Type: models.FileTypeFile, Data: encode("a")})
	require.NoError(t, err)
	before := blobCount(t, f.blobs.Root())

	_, err = f.manager.Upload(ctx, token, UploadInput{
		Name: "b.txt", Type: models.FileTypeFile, Data: encode("b"), ParentID: models.FolderRef("missing"),
	})
	assert.Equal(t, apperr.ErrParentNotFound, err)

	_, err = f.manager.Upload(ctx, token, UploadInput{
		Name: "b.txt", Type: models.FileTypeFile, Data: encode("b"), ParentID: models.FolderRef(file.ID),
	})
	assert.Equal(t, apperr.ErrParentNotFolder, err)
	assert.Equal(t, before, blobCount(t, f.blobs.Root()))

	entries, err := f.manager.List(ctx, token, models.FolderRef(file.ID), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	child, err := f.manager.Upload(ctx, token, UploadInput{
		Name: "b.txt", Type: models.FileTypeFile, Data: encode("b"), ParentID: models.FolderRef(folder.ID),
	})
	require.NoError(t, err)
	assert.Equal(t, folder.ID, child.ParentID.ID())
}

func TestManager_Upload_ImageEnqueuesJob(t *testing.T) {
	f := newFixture(t)
	userID, token := f.login(t, "bob@dylan.com")

	entry, err := f.manager.Upload(context.Background(), token, UploadInput{
		Name: "photo.png", Type: models.FileTypeImage, Data: encode("not really a png"),
	})
	require.NoError(t, err)

	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, models.ThumbnailJob{FileID: entry.ID, UserID: userID}, f.queue.jobs[0])
}

func TestManager_Upload_EnqueueFailureKeepsEntry(t *testing.T) {
	f := newFixture(t)
	f.queue.err = errors.New("redis down")
	_, token := f.login(t, "bob@dylan.com")

	entry, err := f.manager.Upload(context.Background(), token, UploadInput{
		Name: "photo.png", Type: models.FileTypeImage, Data: encode("img"),
	})
	require.NoError(t, err)

	_, err = f.manager.GetByID(context.Background(), token, entry.ID)
	assert.NoError(t, err)
}

func TestManager_GetByID_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.login(t, "bob@dylan.com")
	_, alice := f.login(t, "alice@example.com")

	entry, err := f.manager.Upload(ctx, bob, UploadInput{Name: "docs", Type: models.FileTypeFolder})
	require.NoError(t, err)

	got, err := f.manager.GetByID(ctx, bob, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "docs", got.Name)

	_, err = f.manager.GetByID(ctx, alice, entry.ID)
	assert.Equal(t, apperr.ErrNotFound, err)

	_, err = f.manager.GetByID(ctx, bob, "missing")
	assert.Equal(t, apperr.ErrNotFound, err)

	_, err = f.manager.GetByID(ctx, "", entry.ID)
	assert.Equal(t, apperr.ErrUnauthorized, err)
}

func TestManager_List_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, token := f.login(t, "bob@dylan.com")

	folder, err := f.manager.Upload(ctx, token, UploadInput{Name: "bulk", Type: models.FileTypeFolder})
	require.NoError(t, err)
	for i := 0; i < 45; i++ {
		_, err := f.manager.Upload(ctx, token, UploadInput{
			Name: "f", Type: models.FileTypeFolder, ParentID: models.FolderRef(folder.ID),
		})
		require.NoError(t, err)
	}

	for page, want := range []int{20, 20, 5, 0} {
		entries, err := f.manager.List(ctx, token, models.FolderRef(folder.ID), page)
		require.NoError(t, err)
		assert.Len(t, entries, want, "page %d", page)
	}

	// negative pages read as the first page
	entries, err := f.manager.List(ctx, token, models.FolderRef(folder.ID), -3)
	require.NoError(t, err)
	assert.Len(t, entries, 20)

	// root holds only the bulk folder
	entries, err = f.manager.List(ctx, token, models.Root, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, folder.ID, entries[0].ID)
}

func TestManager_List_OnlyOwnEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.login(t, "bob@dylan.com")
	_, alice := f.login(t, "alice@example.com")

	_, err := f.manager.Upload(ctx, bob, UploadInput{Name: "docs", Type: models.FileTypeFolder})
	require.NoError(t, err)

	entries, err := f.manager.List(ctx, alice, models.Root, 0)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestManager_SetVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.login(t, "bob@dylan.com")
	_, alice := f.login(t, "alice@example.com")

	entry, err := f.manager.Upload(ctx, bob, UploadInput{Name: "a.txt", Type: models.FileTypeFile, Data: encode("a")})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		updated, err := f.manager.SetVisibility(ctx, bob, entry.ID, true)
		require.NoError(t, err)
		assert.True(t, updated.IsPublic)
	}

	got, err := f.manager.GetByID(ctx, bob, entry.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPublic)

	_, err = f.manager.SetVisibility(ctx, alice, entry.ID, false)
	assert.Equal(t, apperr.ErrNotFound, err)

	updated, err := f.manager.SetVisibility(ctx, bob, entry.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsPublic)

	_, err = f.manager.SetVisibility(ctx, "bad", entry.ID, true)
	assert.Equal(t, apperr.ErrUnauthorized, err)
}

func readContent(t *testing.T, c *Content) string {
	t.Helper()
	defer c.Body.Close()
	data, err := io.ReadAll(c.Body)
	require.NoError(t, err)
	return string(data)
}

func TestManager_GetContent_Private(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.login(t, "bob@dylan.com")
	_, alice := f.login(t, "alice@example.com")

	entry, err := f.manager.Upload(ctx, bob, UploadInput{Name: "notes.json", Type: models.FileTypeFile, Data: encode("secret")})
	require.NoError(t, err)

	for _, token := range []string{"", "unknown", alice} {
		_, err := f.manager.GetContent(ctx, entry.ID, token, 0)
		assert.Equal(t, apperr.ErrNotFound, err, "token %q", token)
	}

	content, err := f.manager.GetContent(ctx, entry.ID, bob, 0)
	require.NoError(t, err)
	assert.Equal(t, "secret", readContent(t, content))
	assert.Equal(t, "application/json", content.ContentType)
}

func TestManager_GetContent_Public(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.login(t, "bob@dylan.com")

	entry, err := f.manager.Upload(ctx, bob, UploadInput{
		Name: "blob", Type: models.FileTypeFile, Data: encode("open"), IsPublic: true,
	})
	require.NoError(t, err)

	content, err := f.manager.GetContent(ctx, entry.ID, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "open", readContent(t, content))
	assert.Equal(t, "application/octet-stream", content.ContentType)
}

func TestManager_GetContent_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.login(t, "bob@dylan.com")

	folder, err := f.manager.Upload(ctx, bob, UploadInput{Name: "docs", Type: models.FileTypeFolder, IsPublic: true})
	require.NoError(t, err)
	_, err = f.manager.GetContent(ctx, folder.ID, bob, 0)
	assert.Equal(t, apperr.ErrFolderContent, err)

	_, err = f.manager.GetContent(ctx, "missing", bob, 0)
	assert.Equal(t, apperr.ErrNotFound, err)

	entry, err := f.manager.Upload(ctx, bob, UploadInput{Name: "a.txt", Type: models.FileTypeFile, Data: encode("a")})
	require.NoError(t, err)
	require.NoError(t, os.Remove(entry.LocalPath))
	_, err = f.manager.GetContent(ctx, entry.ID, bob, 0)
	assert.Equal(t, apperr.ErrNotFound, err)
}

func TestManager_GetContent_Thumbnail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.login(t, "bob@dylan.com")

	entry, err := f.manager.Upload(ctx, bob, UploadInput{Name: "photo.png", Type: models.FileTypeImage, Data: encode("orig")})
	require.NoError(t, err)

	// not generated yet
	_, err = f.manager.GetContent(ctx, entry.ID, bob, 250)
	assert.Equal(t, apperr.ErrNotFound, err)

	require.NoError(t, f.blobs.Put(ctx, models.ThumbnailPath(entry.LocalPath, 250), []byte("small")))
	content, err := f.manager.GetContent(ctx, entry.ID, bob, 250)
	require.NoError(t, err)
	assert.Equal(t, "small", readContent(t, content))
	assert.Equal(t, "image/png", content.ContentType)

	_, err = f.manager.GetContent(ctx, entry.ID, bob, 300)
	assert.Equal(t, apperr.ErrNotFound, err)
}

func TestManager_GetContent_SessionStoreDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.login(t, "bob@dylan.com")

	entry, err := f.manager.Upload(ctx, bob, UploadInput{Name: "a.txt", Type: models.FileTypeFile, Data: encode("a")})
	require.NoError(t, err)

	f.mr.SetError("ERR session store down")
	_, err = f.manager.GetContent(ctx, entry.ID, bob, 0)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", ContentType("a.png"))
	assert.Equal(t, "application/octet-stream", ContentType("noext"))
}
