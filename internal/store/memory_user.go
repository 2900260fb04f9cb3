package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/types"
)

// MemoryUserRepository keeps users in process memory.
// It backs DB_DRIVER=memory for local runs and is safe for concurrent use.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	users   map[string]types.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[string]types.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return cloneUser(r.users[id]), nil
}

func (r *MemoryUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return types.User{}, ErrDuplicateEmail
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Tokens == nil {
		user.Tokens = []string{}
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Avatar = nil

	r.users[user.ID] = cloneUser(user)
	r.byEmail[user.Email] = user.ID
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.users[user.ID]
	if !ok {
		return types.User{}, ErrNotFound
	}
	if owner, taken := r.byEmail[user.Email]; taken && owner != user.ID {
		return types.User{}, ErrDuplicateEmail
	}

	delete(r.byEmail, current.Email)
	current.Name = user.Name
	current.Email = user.Email
	current.Age = user.Age
	current.PasswordHash = user.PasswordHash
	current.UpdatedAt = time.Now()
	r.users[user.ID] = current
	r.byEmail[current.Email] = user.ID

	user.UpdatedAt = current.UpdatedAt
	return user, nil
}

func (r *MemoryUserRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	delete(r.byEmail, user.Email)
	return nil
}

func (r *MemoryUserRepository) AddToken(ctx context.Context, id, token string) error {
	return r.mutate(id, func(u *types.User) {
		u.Tokens = append(u.Tokens, token)
	})
}

func (r *MemoryUserRepository) RemoveToken(ctx context.Context, id, token string) error {
	return r.mutate(id, func(u *types.User) {
		u.Tokens = slices.DeleteFunc(u.Tokens, func(t string) bool { return t == token })
	})
}

func (r *MemoryUserRepository) ClearTokens(ctx context.Context, id string) error {
	return r.mutate(id, func(u *types.User) {
		u.Tokens = []string{}
	})
}

func (r *MemoryUserRepository) SetAvatar(ctx context.Context, id string, data []byte) error {
	return r.mutate(id, func(u *types.User) {
		if len(data) == 0 {
			u.Avatar = nil
			return
		}
		u.Avatar = slices.Clone(data)
	})
}

func (r *MemoryUserRepository) GetAvatar(ctx context.Context, id string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(user.Avatar), nil
}

func (r *MemoryUserRepository) mutate(id string, fn func(*types.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(&user)
	user.UpdatedAt = time.Now()
	r.users[id] = user
	return nil
}

// cloneUser copies the token slice so callers never alias repository state.
// Avatars are only served through GetAvatar, matching the SQL and Mongo projections.
func cloneUser(u types.User) types.User {
	u.Tokens = slices.Clone(u.Tokens)
	if u.Tokens == nil {
		u.Tokens = []string{}
	}
	u.Avatar = nil
	return u
}
