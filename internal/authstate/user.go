package authstate

import (
	"github.com/google/uuid"

	"hoodgram/internal/auth"
	"hoodgram/internal/profiles"
)

// User is the merged view of a session and its profile shown to the UI.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Name     *string   `json:"name"`
	Image    *string   `json:"image"`
	Username *string   `json:"username"`
}

// NewUser merges profile over session metadata. profile may be nil.
// Name and image fall back to the identity provider's metadata, email to the session.
func NewUser(session *auth.Session, profile *profiles.Profile) User {
	u := User{
		ID:    session.UserID,
		Email: session.Email,
		Name:  nonEmpty(session.Metadata.FullName),
		Image: nonEmpty(session.Metadata.AvatarURL),
	}
	if profile == nil {
		return u
	}
	if profile.Email != "" {
		u.Email = profile.Email
	}
	if profile.Name != nil {
		u.Name = profile.Name
	}
	if profile.Image != nil {
		u.Image = profile.Image
	}
	u.Username = profile.Username
	return u
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
