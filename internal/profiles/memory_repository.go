package profiles

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository keeps profiles in a map, for local development and tests.
type InMemoryRepository struct {
	mu   sync.RWMutex
	data map[uuid.UUID]Profile
}

// NewInMemoryRepository constructs a repository seeded with optional profiles.
func NewInMemoryRepository(initial []Profile) *InMemoryRepository {
	data := make(map[uuid.UUID]Profile, len(initial))
	for _, p := range initial {
		data[p.UserID] = p
	}
	return &InMemoryRepository{data: data}
}

// Get returns the profile owned by userID.
func (r *InMemoryRepository) Get(_ context.Context, userID uuid.UUID) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.data[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

// Insert stores profile if the user has none yet.
func (r *InMemoryRepository) Insert(_ context.Context, profile Profile) (Profile, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.data[profile.UserID]; ok {
		return existing, false, nil
	}
	if profile.Username != nil && r.usernameTaken(*profile.Username, profile.UserID) {
		return Profile{}, false, ErrUsernameTaken
	}
	r.data[profile.UserID] = profile
	return profile, true, nil
}

// Update applies the non-nil fields to an existing profile.
func (r *InMemoryRepository) Update(_ context.Context, userID uuid.UUID, fields Fields, at time.Time) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.data[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	if fields.Username != nil && r.usernameTaken(*fields.Username, userID) {
		return Profile{}, ErrUsernameTaken
	}
	if fields.Name != nil {
		p.Name = copyString(fields.Name)
	}
	if fields.Username != nil {
		p.Username = copyString(fields.Username)
	}
	if fields.Image != nil {
		p.Image = copyString(fields.Image)
	}
	p.UpdatedAt = at
	r.data[userID] = p
	return p, nil
}

func (r *InMemoryRepository) usernameTaken(username string, owner uuid.UUID) bool {
	for id, p := range r.data {
		if id != owner && p.Username != nil && strings.EqualFold(*p.Username, username) {
			return true
		}
	}
	return false
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
