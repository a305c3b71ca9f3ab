package http

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"hoodgram/internal/access"
	"hoodgram/internal/auth"
	"hoodgram/internal/profiles"
)

const (
	oauthStateCookieName = "hoodgram_oauth_state"
	oauthStateCookieTTL  = 10 * time.Minute
	oauthStateCookiePath = "/auth/v1"
	providerGoogle       = "google"
)

// oauthStatePayload holds the CSRF state and where to deliver the code.
type oauthStatePayload struct {
	State      string `json:"s"`
	RedirectTo string `json:"r,omitempty"`
}

// isValidRedirectPath validates that a path is a safe relative redirect.
// It prevents open redirect attacks by ensuring the path:
// - Starts with a single "/" (not "//")
// - Has no scheme or host component
// - Cannot be bypassed via URL encoding
func isValidRedirectPath(path string) bool {
	if path == "" {
		return false
	}

	decoded, err := url.QueryUnescape(path)
	if err != nil {
		return false
	}

	if !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") {
		return false
	}

	parsed, err := url.Parse(decoded)
	if err != nil {
		return false
	}

	return parsed.Scheme == "" && parsed.Host == ""
}

type googleAuthenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleClaims, error)
}

type oauthIssuer interface {
	CreateOrUpdateOAuthUser(ctx context.Context, claims *auth.GoogleClaims) (*auth.User, error)
	IssueOAuthCode(ctx context.Context, userID uuid.UUID) (string, error)
}

type profileCreator interface {
	CreateInitial(ctx context.Context, in profiles.InitialInput) (profiles.Profile, bool, error)
}

type consentStarter interface {
	SignInWithOAuth(ctx context.Context, provider, callbackURL string) (string, error)
}

// OAuthHandler runs both halves of OAuth sign-in: the app-facing start
// endpoint and the provider leg that talks to Google.
type OAuthHandler struct {
	starter      consentStarter
	google       googleAuthenticator
	issuer       oauthIssuer
	profiles     profileCreator
	logger       *slog.Logger
	secureCookie bool
	siteURL      string
}

// NewOAuthHandler creates an OAuthHandler. google may be nil when Google
// sign-in is not configured.
func NewOAuthHandler(starter consentStarter, google googleAuthenticator, issuer oauthIssuer, store profileCreator, siteURL, env string, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		starter:      starter,
		google:       google,
		issuer:       issuer,
		profiles:     store,
		logger:       logger,
		secureCookie: !strings.EqualFold(env, "development"),
		siteURL:      strings.TrimSuffix(siteURL, "/"),
	}
}

func (h *OAuthHandler) callbackURL() string {
	return h.siteURL + access.CallbackPath
}

// Start handles GET /api/auth/oauth/{provider} and sends the browser to the
// provider's consent page.
func (h *OAuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	consentURL, err := h.starter.SignInWithOAuth(r.Context(), chi.URLParam(r, "provider"), h.callbackURL())
	if err != nil {
		code := "oauth_failed"
		var providerErr *auth.Error
		if errors.As(err, &providerErr) {
			code = providerErr.Code
		}
		h.logger.Warn("oauth start failed", "provider", chi.URLParam(r, "provider"), "error", err)
		h.redirectWithError(w, r, code, "")
		return
	}
	http.Redirect(w, r, consentURL, http.StatusTemporaryRedirect)
}

// Authorize handles GET /auth/v1/authorize and redirects to Google's consent screen.
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	if h.google == nil || r.URL.Query().Get("provider") != providerGoogle {
		h.redirectWithError(w, r, "provider_disabled", "Unsupported provider.")
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("failed to generate state", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    state,
		Path:     oauthStateCookiePath,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(oauthStateCookieTTL.Seconds()),
	})

	payload := oauthStatePayload{State: state, RedirectTo: h.safeRedirect(r.URL.Query().Get("redirect_to"))}
	stateJSON, _ := json.Marshal(payload)

	http.Redirect(w, r, h.google.AuthURL(base64.RawURLEncoding.EncodeToString(stateJSON)), http.StatusTemporaryRedirect)
}

// Callback handles GET /auth/v1/callback. It signs the Google identity in,
// makes sure a profile row exists and hands a one-time code to the app.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		h.redirectWithError(w, r, "provider_disabled", "Unsupported provider.")
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookieName)
	if err != nil {
		h.logger.Warn("oauth callback: missing state cookie")
		h.redirectWithError(w, r, "invalid_request", "Session expired. Please try again.")
		return
	}

	stateBytes, err := base64.RawURLEncoding.DecodeString(r.URL.Query().Get("state"))
	if err != nil {
		h.logger.Warn("oauth callback: invalid state encoding")
		h.redirectWithError(w, r, "invalid_request", "Invalid state. Please try again.")
		return
	}

	var statePayload oauthStatePayload
	if err := json.Unmarshal(stateBytes, &statePayload); err != nil {
		h.logger.Warn("oauth callback: invalid state JSON")
		h.redirectWithError(w, r, "invalid_request", "Invalid state. Please try again.")
		return
	}

	if subtle.ConstantTimeCompare([]byte(statePayload.State), []byte(stateCookie.Value)) != 1 {
		h.logger.Warn("oauth callback: state mismatch")
		h.redirectWithError(w, r, "invalid_request", "Invalid state. Please try again.")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    "",
		Path:     oauthStateCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Warn("oauth callback: provider error", "error", errParam)
		h.redirectWithError(w, r, errParam, r.URL.Query().Get("error_description"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectWithError(w, r, "invalid_request", "Missing authorization code.")
		return
	}

	claims, err := h.google.Exchange(r.Context(), code)
	switch {
	case errors.Is(err, auth.ErrEmailNotVerified):
		h.logger.Warn("oauth callback: email not verified")
		h.redirectWithError(w, r, "email_not_verified", "Please verify your Google email address.")
		return
	case errors.Is(err, auth.ErrEmailNotAllowed):
		h.logger.Warn("oauth callback: email not allowed")
		h.redirectWithError(w, r, "access_denied", "Your account is not authorized to access this application.")
		return
	case err != nil:
		h.logger.Error("oauth callback: exchange failed", "error", err)
		h.redirectWithError(w, r, "exchange_error", "Failed to complete authentication.")
		return
	}

	user, err := h.issuer.CreateOrUpdateOAuthUser(r.Context(), claims)
	if err != nil {
		h.logger.Error("oauth callback: user creation failed", "error", err)
		h.redirectWithError(w, r, "internal_error", "Failed to create user account.")
		return
	}

	if _, created, err := h.profiles.CreateInitial(r.Context(), profiles.InitialInput{
		UserID: user.ID,
		Email:  user.Email,
		Name:   claims.Name,
		Image:  claims.Picture,
	}); err != nil {
		h.logger.Error("oauth callback: profile bootstrap failed", "user_id", user.ID, "error", err)
	} else if created {
		h.logger.Info("oauth callback: initial profile created", "user_id", user.ID)
	}

	oneTime, err := h.issuer.IssueOAuthCode(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("oauth callback: code issue failed", "error", err)
		h.redirectWithError(w, r, "internal_error", "Failed to create session.")
		return
	}

	target := h.safeRedirect(statePayload.RedirectTo)
	h.logger.Info("oauth login successful", "user_id", user.ID)
	http.Redirect(w, r, withQuery(target, "code", oneTime), http.StatusTemporaryRedirect)
}

// safeRedirect accepts a relative path or an absolute URL on the site's own
// origin, resolving both against the site URL. Anything else becomes the
// default callback.
func (h *OAuthHandler) safeRedirect(target string) string {
	if target == "" {
		return h.callbackURL()
	}
	if isValidRedirectPath(target) {
		return h.siteURL + target
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return h.callbackURL()
	}
	site, err := url.Parse(h.siteURL)
	if err != nil || parsed.Scheme != site.Scheme || parsed.Host != site.Host {
		return h.callbackURL()
	}
	return target
}

// redirectWithError redirects to the sign-in page with error details.
func (h *OAuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code, message string) {
	target := h.siteURL + access.WithError(access.SignInPath, code)
	if message != "" {
		target += "&message=" + url.QueryEscape(message)
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

func withQuery(target, key, value string) string {
	parsed, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := parsed.Query()
	q.Set(key, value)
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
