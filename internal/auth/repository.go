package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for user, session and code persistence.
// Lookups return nil without error when nothing matches.
type Repository interface {
	// User operations
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByOAuth(ctx context.Context, provider, providerID string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	UpdateUserLogin(ctx context.Context, id uuid.UUID, name, avatarURL string) error
	LinkOAuthIdentity(ctx context.Context, id uuid.UUID, provider, providerID string) error
	ConfirmEmail(ctx context.Context, id uuid.UUID, at time.Time) error

	// Session operations
	CreateSession(ctx context.Context, session Session, tokenHash string) error
	FindSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, *User, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)

	// One-time code operations
	CreateCode(ctx context.Context, code Code, codeHash string) error
	// ConsumeCode removes the code and returns it, or nil if it does not exist.
	ConsumeCode(ctx context.Context, codeHash string) (*Code, error)
	DeleteExpiredCodes(ctx context.Context) (int64, error)
}
