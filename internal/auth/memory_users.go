package auth

import (
	"context"
	"sync"

	"gateway-service/internal/model"
)

// MemoryUserRepository holds legacy users in process memory for tests
// and database-less development.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*model.LegacyUser // keyed by username
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*model.LegacyUser)}
}

func (r *MemoryUserRepository) CreateUser(_ context.Context, user *model.LegacyUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.Username]; ok {
		return ErrUsernameTaken
	}
	cp := *user
	r.users[user.Username] = &cp
	return nil
}

func (r *MemoryUserRepository) GetUserByUsername(_ context.Context, username string) (*model.LegacyUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}
