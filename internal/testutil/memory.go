// Package testutil holds in-memory stand-ins for the postgres and redis
// repositories, shared by package tests.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hrease/apiserver/internal/store"
	"github.com/hrease/apiserver/types"
)

// UserRepo mirrors store.UserRepository semantics: case-insensitive unique
// emails, profile-only updates and compare-and-set password writes.
type UserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]types.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[int64]types.User)}
}

func (r *UserRepo) GetByID(_ context.Context, id int64) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrConflict
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.DateJoined = time.Now().UTC()
	user.UpdatedAt = user.DateJoined
	r.users[user.ID] = user
	return user, nil
}

func (r *UserRepo) UpdateProfile(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	current.FirstName = user.FirstName
	current.LastName = user.LastName
	current.JobTitle = user.JobTitle
	current.Department = user.Department
	current.HireDate = user.HireDate
	current.UpdatedAt = time.Now().UTC()
	r.users[user.ID] = current
	return current, nil
}

func (r *UserRepo) SetPasswordHash(_ context.Context, id int64, currentHash, newHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.PasswordHash != currentHash {
		return store.ErrStale
	}
	user.PasswordHash = newHash
	r.users[id] = user
	return nil
}

func (r *UserRepo) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.LastLogin = &at
	r.users[id] = user
	return nil
}

// Modify edits a stored user in place, for states the service API cannot
// reach (deactivated accounts).
func (r *UserRepo) Modify(id int64, fn func(*types.User)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return
	}
	fn(&user)
	r.users[id] = user
}

// Blacklist is a single-process auth.Blacklist.
type Blacklist struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewBlacklist() *Blacklist {
	return &Blacklist{seen: make(map[string]bool)}
}

func (b *Blacklist) Revoke(_ context.Context, jti string, _ int64, _ time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[jti] {
		return false, nil
	}
	b.seen[jti] = true
	return true, nil
}
