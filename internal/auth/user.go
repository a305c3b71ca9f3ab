package auth

import (
	"time"

	"github.com/google/uuid"
)

// User is an account known to the credential provider.
type User struct {
	ID               uuid.UUID
	Email            string
	PasswordHash     string
	Name             string
	AvatarURL        string
	OAuthProvider    string
	OAuthProviderID  string
	EmailConfirmedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastLoginAt      time.Time
}

// Confirmed reports whether the user may sign in.
func (u User) Confirmed() bool {
	return u.EmailConfirmedAt != nil
}

// Metadata is the identity data carried inside a session.
type Metadata struct {
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Session is an authenticated session as seen by clients.
type Session struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	Metadata    Metadata  `json:"user_metadata"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"-"`
	UserAgent   string    `json:"-"`
	IPAddress   string    `json:"-"`
}

// SignUpResult is returned by SignUp. Session is nil while the email is unconfirmed.
type SignUpResult struct {
	User    User
	Session *Session
}

// CodePurpose distinguishes why a one-time code was issued.
type CodePurpose string

const (
	PurposeSignupConfirmation CodePurpose = "signup_confirmation"
	PurposeOAuth              CodePurpose = "oauth"
)

// Code is a stored one-time code. Only its hash is persisted.
type Code struct {
	UserID    uuid.UUID
	Purpose   CodePurpose
	ExpiresAt time.Time
	CreatedAt time.Time
}

// GoogleClaims contains the relevant claims from a Google ID token.
type GoogleClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}
