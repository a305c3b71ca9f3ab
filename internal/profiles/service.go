package profiles

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// Service coordinates profile reads and writes with the optional cache.
type Service struct {
	repo   Repository
	cache  Cache
	policy *bluemonday.Policy
	logger *slog.Logger
	now    func() time.Time

	// writes counts invalidations; a read that overlaps one is not cached.
	writes  atomic.Uint64
	cacheMu sync.RWMutex
}

// Option customises a Service.
type Option func(*Service)

// WithCache enables read-through caching of found profiles.
func WithCache(cache Cache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithLogger sets the logger used for cache failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		policy: bluemonday.StrictPolicy(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitialInput describes the bootstrap row created for a new user.
type InitialInput struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Image  string
}

// Completion carries the onboarding answers.
type Completion struct {
	Name     string
	Username string
}

// Get returns the user's profile or ErrNotFound.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (Profile, error) {
	if s.cache != nil {
		p, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("profile cache read failed", "user_id", userID, "error", err)
		} else if ok {
			return p, nil
		}
	}

	seen := s.writes.Load()
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	if s.cache != nil {
		s.cacheMu.RLock()
		if s.writes.Load() == seen {
			if err := s.cache.Set(ctx, p); err != nil {
				s.logger.Warn("profile cache write failed", "user_id", userID, "error", err)
			}
		}
		s.cacheMu.RUnlock()
	}
	return p, nil
}

// CreateInitial inserts the bootstrap profile unless one exists. The returned
// bool is true only when this call created the row.
func (s *Service) CreateInitial(ctx context.Context, in InitialInput) (Profile, bool, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if in.UserID == uuid.Nil || email == "" {
		return Profile{}, false, fmt.Errorf("%w: user id and email are required", ErrValidation)
	}

	now := s.now().UTC()
	profile := Profile{
		UserID:    in.UserID,
		Email:     email,
		Name:      optional(s.cleanName(in.Name)),
		Image:     optional(strings.TrimSpace(in.Image)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.repo.Insert(ctx, profile)
}

// Complete stores name and username for the user and drops any cached copy.
func (s *Service) Complete(ctx context.Context, userID uuid.UUID, in Completion) (Profile, error) {
	name := s.cleanName(in.Name)
	username := strings.ToLower(strings.TrimSpace(in.Username))
	if name == "" || username == "" {
		return Profile{}, fmt.Errorf("%w: name and username are required", ErrValidation)
	}

	p, err := s.repo.Update(ctx, userID, Fields{Name: &name, Username: &username}, s.now().UTC())
	if err != nil {
		return Profile{}, err
	}
	s.invalidate(ctx, userID)
	return p, nil
}

func (s *Service) invalidate(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.writes.Add(1)
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("profile cache invalidation failed", "user_id", userID, "error", err)
	}
}

// maxEntityDepth bounds how many layers of entity encoding are decoded.
const maxEntityDepth = 4

var angleBrackets = strings.NewReplacer("<", "", ">", "")

// cleanName strips markup from a display name, including markup hidden
// behind entity encoding, and returns plain text.
func (s *Service) cleanName(name string) string {
	for range maxEntityDepth {
		decoded := html.UnescapeString(name)
		if decoded == name {
			break
		}
		name = decoded
	}
	text := html.UnescapeString(s.policy.Sanitize(name))
	return strings.TrimSpace(angleBrackets.Replace(text))
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
