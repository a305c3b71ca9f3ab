package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository with maps, for local development and tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]User
	sessions map[string]Session
	codes    map[string]Code
	now      func() time.Time
}

// NewInMemoryRepository creates an empty InMemoryRepository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:    make(map[uuid.UUID]User),
		sessions: make(map[string]Session),
		codes:    make(map[string]Code),
		now:      time.Now,
	}
}

func (r *InMemoryRepository) FindUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *InMemoryRepository) FindUserByOAuth(_ context.Context, provider, providerID string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.OAuthProvider == provider && u.OAuthProviderID == providerID {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

func (r *InMemoryRepository) FindUserByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

// CreateUser stores user, rejecting a duplicate email with ErrUserExists.
func (r *InMemoryRepository) CreateUser(_ context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == user.Email {
			return User{}, ErrUserExists
		}
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *InMemoryRepository) UpdateUserLogin(_ context.Context, id uuid.UUID, name, avatarURL string) error {
	return r.mutateUser(id, func(u *User) {
		now := r.now()
		u.Name = name
		u.AvatarURL = avatarURL
		u.LastLoginAt = now
		u.UpdatedAt = now
	})
}

func (r *InMemoryRepository) LinkOAuthIdentity(_ context.Context, id uuid.UUID, provider, providerID string) error {
	return r.mutateUser(id, func(u *User) {
		u.OAuthProvider = provider
		u.OAuthProviderID = providerID
		u.UpdatedAt = r.now()
	})
}

func (r *InMemoryRepository) ConfirmEmail(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.mutateUser(id, func(u *User) {
		confirmed := at
		u.EmailConfirmedAt = &confirmed
		u.UpdatedAt = at
	})
}

func (r *InMemoryRepository) mutateUser(id uuid.UUID, fn func(*User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil
	}
	fn(&u)
	r.users[id] = u
	return nil
}

func (r *InMemoryRepository) CreateSession(_ context.Context, session Session, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session.AccessToken = ""
	r.sessions[tokenHash] = session
	return nil
}

func (r *InMemoryRepository) FindSessionByTokenHash(_ context.Context, tokenHash string) (*Session, *User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[tokenHash]
	if !ok {
		return nil, nil, nil
	}
	u, ok := r.users[session.UserID]
	if !ok {
		return nil, nil, nil
	}
	return &session, &u, nil
}

func (r *InMemoryRepository) DeleteSession(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, session := range r.sessions {
		if session.ID == id {
			delete(r.sessions, hash)
		}
	}
	return nil
}

func (r *InMemoryRepository) DeleteExpiredSessions(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var removed int64
	for hash, session := range r.sessions {
		if session.ExpiresAt.Before(now) {
			delete(r.sessions, hash)
			removed++
		}
	}
	return removed, nil
}

func (r *InMemoryRepository) CreateCode(_ context.Context, code Code, codeHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.codes[codeHash] = code
	return nil
}

func (r *InMemoryRepository) ConsumeCode(_ context.Context, codeHash string) (*Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.codes[codeHash]
	if !ok {
		return nil, nil
	}
	delete(r.codes, codeHash)
	return &code, nil
}

func (r *InMemoryRepository) DeleteExpiredCodes(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var removed int64
	for hash, code := range r.codes {
		if code.ExpiresAt.Before(now) {
			delete(r.codes, hash)
			removed++
		}
	}
	return removed, nil
}
