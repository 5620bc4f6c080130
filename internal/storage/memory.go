package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/models"
)

// MemoryStore is a process-local metadata store for development and tests.
// Listing returns entries in insertion order.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]models.User
	files     map[string]models.FileEntry
	fileOrder []string
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]models.User),
		files: make(map[string]models.FileEntry),
	}
}

// CreateUser stores user and assigns its ID
func (ms *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	user.ID = uuid.New().String()
	ms.users[user.ID] = *user
	return nil
}

// GetUser returns the user with id
func (ms *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	user, ok := ms.users[id]
	if !ok {
		return nil, apperr.ErrNoRecord
	}
	return &user, nil
}

// FindUserByEmail returns the user registered with email
func (ms *MemoryStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, user := range ms.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, apperr.ErrNoRecord
}

// FindUserByCredentials returns the user matching both email and password hash
func (ms *MemoryStore) FindUserByCredentials(ctx context.Context, email, passwordHash string) (*models.User, error) {
	user, err := ms.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.PasswordHash != passwordHash {
		return nil, apperr.ErrNoRecord
	}
	return user, nil
}

// CreateFile stores entry and assigns its ID
func (ms *MemoryStore) CreateFile(_ context.Context, entry *models.FileEntry) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entry.ID = uuid.New().String()
	ms.files[entry.ID] = *entry
	ms.fileOrder = append(ms.fileOrder, entry.ID)
	return nil
}

// GetFile returns the entry with id regardless of its owner
func (ms *MemoryStore) GetFile(_ context.Context, id string) (*models.FileEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	entry, ok := ms.files[id]
	if !ok {
		return nil, apperr.ErrNoRecord
	}
	return &entry, nil
}

// GetUserFile returns the entry with id owned by userID
func (ms *MemoryStore) GetUserFile(ctx context.Context, id, userID string) (*models.FileEntry, error) {
	entry, err := ms.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, apperr.ErrNoRecord
	}
	return entry, nil
}

// ListFiles returns up to limit entries of userID directly under parent,
// skipping the first skip matches
func (ms *MemoryStore) ListFiles(_ context.Context, userID string, parent models.ParentRef, skip, limit int) ([]*models.FileEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	result := make([]*models.FileEntry, 0, limit)
	matched := 0
	for _, id := range ms.fileOrder {
		entry := ms.files[id]
		if entry.UserID != userID || entry.ParentID != parent {
			continue
		}
		matched++
		if matched <= skip {
			continue
		}
		if len(result) == limit {
			break
		}
		e := entry
		result = append(result, &e)
	}
	return result, nil
}

// SetFilePublic updates the visibility of the entry id owned by userID
func (ms *MemoryStore) SetFilePublic(_ context.Context, id, userID string, isPublic bool) (*models.FileEntry, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entry, ok := ms.files[id]
	if !ok || entry.UserID != userID {
		return nil, apperr.ErrNoRecord
	}
	entry.IsPublic = isPublic
	ms.files[id] = entry
	return &entry, nil
}

// CountUsers returns the number of users
func (ms *MemoryStore) CountUsers(context.Context) (int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return int64(len(ms.users)), nil
}

// CountFiles returns the number of entries
func (ms *MemoryStore) CountFiles(context.Context) (int64, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return int64(len(ms.files)), nil
}

// Ping always succeeds
func (ms *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op
func (ms *MemoryStore) Close() error { return nil }
