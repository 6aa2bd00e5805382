package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillpress/cms-auth/internal/models"
)

// MemoryStore keeps users in process memory. Used for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]*models.User
	byUsername map[string]string
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*models.User),
		byUsername: make(map[string]string),
		now:        time.Now,
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, username, passwordHash, displayName string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[username]; taken {
		return nil, ErrDuplicateUsername
	}

	user := &models.User{
		UserID:       uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		CreatedAt:    s.now().UTC(),
	}
	s.byID[user.UserID] = user
	s.byUsername[username] = user.UserID

	return copyUser(user), nil
}

func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(s.byID[id]), nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(user), nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byUsername, user.Username)
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// copyUser keeps callers from mutating stored records
func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}
