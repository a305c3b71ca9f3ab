package auth

import "net/http"

// Error is a provider error whose Message is safe to show to the user as is.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidCredentials  = &Error{Code: "invalid_credentials", Message: "Invalid login credentials", Status: http.StatusBadRequest}
	ErrEmailNotConfirmed   = &Error{Code: "email_not_confirmed", Message: "Email not confirmed", Status: http.StatusBadRequest}
	ErrUserExists          = &Error{Code: "user_already_exists", Message: "User already registered", Status: http.StatusUnprocessableEntity}
	ErrWeakPassword        = &Error{Code: "weak_password", Message: "Password should be at least 8 characters.", Status: http.StatusUnprocessableEntity}
	ErrInvalidEmail        = &Error{Code: "validation_failed", Message: "Unable to validate email address: invalid format", Status: http.StatusBadRequest}
	ErrInvalidCode         = &Error{Code: "invalid_grant", Message: "Invalid or expired authorization code", Status: http.StatusBadRequest}
	ErrUnsupportedProvider = &Error{Code: "provider_disabled", Message: "Unsupported provider: provider is not enabled", Status: http.StatusBadRequest}
	ErrUnsupportedResend   = &Error{Code: "validation_failed", Message: "Unsupported resend type", Status: http.StatusBadRequest}
)
