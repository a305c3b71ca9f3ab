package profiles

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no profile row exists for a user yet.
	ErrNotFound = errors.New("profile not found")
	// ErrValidation indicates invalid profile fields.
	ErrValidation = errors.New("invalid profile")
	// ErrUsernameTaken is returned when another profile already owns the username.
	ErrUsernameTaken = errors.New("username already taken")
)

// Profile is the public record attached to an authenticated user.
// A nil Username means onboarding has not been finished.
type Profile struct {
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	Email     string    `json:"email" db:"email"`
	Name      *string   `json:"name" db:"name"`
	Username  *string   `json:"username" db:"username"`
	Image     *string   `json:"image" db:"image"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Complete reports whether the user picked a username.
func (p Profile) Complete() bool {
	return p.Username != nil
}

// Fields lists the columns an update may touch. Nil pointers are left unchanged.
type Fields struct {
	Name     *string
	Username *string
	Image    *string
}

// Repository abstracts profile persistence.
type Repository interface {
	Get(ctx context.Context, userID uuid.UUID) (Profile, error)
	// Insert stores profile unless a row for the same user already exists.
	// It reports whether a row was created and returns the stored profile.
	Insert(ctx context.Context, profile Profile) (Profile, bool, error)
	Update(ctx context.Context, userID uuid.UUID, fields Fields, at time.Time) (Profile, error)
}
