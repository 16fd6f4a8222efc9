package datastore

import (
	"sync"
	"time"

	"github.com/NicolasHaas/relaychat/pkg/model"
)

// MemoryStore provides an in-memory UserStore implementation for tests.
// It mirrors SQLStore behavior for duplicates and lookups.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextUserID      int64
	usersByID       map[int64]*model.User
	usersByUsername map[string]*model.User
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:             now,
		nextUserID:      1,
		usersByID:       make(map[int64]*model.User),
		usersByUsername: make(map[string]*model.User),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// CreateUser creates a new user and returns it with the assigned ID.
func (s *MemoryStore) CreateUser(username, passwordHash string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[username]; exists {
		return nil, ErrUserExists
	}
	user := &model.User{
		ID:           s.nextUserID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}
	s.nextUserID++
	s.usersByID[user.ID] = user
	s.usersByUsername[username] = user
	copyUser := *user
	return &copyUser, nil
}

// GetUserByUsername retrieves a user by username.
func (s *MemoryStore) GetUserByUsername(username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, nil
	}
	copyUser := *user
	return &copyUser, nil
}

// ListUsers returns all users ordered by ID.
func (s *MemoryStore) ListUsers() ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]model.User, 0, len(s.usersByID))
	for id := int64(1); id < s.nextUserID; id++ {
		if u, ok := s.usersByID[id]; ok {
			users = append(users, *u)
		}
	}
	return users, nil
}
