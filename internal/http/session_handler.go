package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"hoodgram/internal/access"
	"hoodgram/internal/auth"
	"hoodgram/internal/authstate"
	"hoodgram/internal/forms"
	"hoodgram/internal/profiles"
)

const sessionCookieName = "hoodgram_session"

// sessionProvider is the credential provider as seen by the HTTP layer.
type sessionProvider interface {
	SignUp(ctx context.Context, email, password string) (auth.SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error)
	SignInWithOAuth(ctx context.Context, provider, callbackURL string) (string, error)
	GetSession(ctx context.Context, token string) (*auth.Session, error)
	ExchangeCodeForSession(ctx context.Context, code string) (*auth.Session, error)
	Resend(ctx context.Context, kind, email string) error
	SignOut(ctx context.Context, token string) error
	Refresh(ctx context.Context, token string) (*auth.Session, error)
	NotifyUserUpdated(ctx context.Context, session *auth.Session)
}

type profileStore interface {
	Get(ctx context.Context, userID uuid.UUID) (profiles.Profile, error)
	CreateInitial(ctx context.Context, in profiles.InitialInput) (profiles.Profile, bool, error)
	Complete(ctx context.Context, userID uuid.UUID, in profiles.Completion) (profiles.Profile, error)
}

type operationRecorder interface {
	RecordAuthOperation(operation string, err error)
}

// sessionCookies writes the HttpOnly cookie that carries the access token.
type sessionCookies struct {
	secure bool
}

func newSessionCookies(env string) sessionCookies {
	return sessionCookies{secure: !strings.EqualFold(env, "development")}
}

func (c sessionCookies) set(w http.ResponseWriter, session *auth.Session) {
	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
		Expires:  session.ExpiresAt,
	})
}

func (c sessionCookies) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// sessionResponse is the JSON view of who is signed in and where they belong.
type sessionResponse struct {
	Authenticated   bool            `json:"authenticated"`
	ProfileComplete bool            `json:"profileComplete"`
	User            *authstate.User `json:"user"`
	RedirectTo      string          `json:"redirectTo,omitempty"`
	ExpiresAt       *time.Time      `json:"expiresAt,omitempty"`
}

// SessionHandler serves the password sign-in and session lifecycle endpoints.
type SessionHandler struct {
	provider  sessionProvider
	profiles  profileStore
	validator *forms.Validator
	cookies   sessionCookies
	recorder  operationRecorder
	logger    *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(provider sessionProvider, store profileStore, validator *forms.Validator, recorder operationRecorder, env string, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		provider:  provider,
		profiles:  store,
		validator: validator,
		cookies:   newSessionCookies(env),
		recorder:  recorder,
		logger:    logger,
	}
}

// SignIn handles POST /api/auth/sign-in.
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var form forms.SignIn
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := h.validator.Validate(&form); err != nil {
		writeServiceError(w, h.logger, err, "failed to sign in")
		return
	}

	session, err := h.provider.SignInWithPassword(r.Context(), form.Email, form.Password)
	h.recorder.RecordAuthOperation("sign_in", err)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to sign in")
		return
	}

	h.cookies.set(w, session)
	writeJSON(w, http.StatusOK, h.describe(r.Context(), session))
}

// SignOut handles POST /api/auth/sign-out.
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token != "" {
		err := h.provider.SignOut(r.Context(), token)
		h.recorder.RecordAuthOperation("sign_out", err)
		if err != nil {
			h.logger.Error("sign out", "error", err)
		}
	}
	h.cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/auth/session.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == nil {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}
	writeJSON(w, http.StatusOK, h.describe(r.Context(), session))
}

// Refresh handles POST /api/auth/refresh.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	session, err := h.provider.Refresh(r.Context(), sessionToken(r))
	h.recorder.RecordAuthOperation("refresh", err)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			h.cookies.clear(w)
			unauthorized(w)
			return
		}
		writeServiceError(w, h.logger, err, "failed to refresh session")
		return
	}

	h.cookies.set(w, session)
	writeJSON(w, http.StatusOK, h.describe(r.Context(), session))
}

// describe merges session and profile the same way the auth state
// controller does. A failed profile lookup is reported as incomplete.
func (h *SessionHandler) describe(ctx context.Context, session *auth.Session) sessionResponse {
	var profile *profiles.Profile
	p, err := h.profiles.Get(ctx, session.UserID)
	switch {
	case err == nil:
		profile = &p
	case !errors.Is(err, profiles.ErrNotFound):
		h.logger.Error("profile lookup", "user_id", session.UserID, "error", err)
	}

	state := access.ProfileIncomplete
	if profile != nil && profile.Complete() {
		state = access.ProfileComplete
	}

	user := authstate.NewUser(session, profile)
	expiresAt := session.ExpiresAt
	return sessionResponse{
		Authenticated:   true,
		ProfileComplete: state == access.ProfileComplete,
		User:            &user,
		RedirectTo:      access.Landing(state),
		ExpiresAt:       &expiresAt,
	}
}
