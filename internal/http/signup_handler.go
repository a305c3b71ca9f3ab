package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"hoodgram/internal/access"
	"hoodgram/internal/forms"
	"hoodgram/internal/profiles"
)

const resendSignup = "signup"

var webmailProviders = map[string]string{
	"gmail.com":   "https://mail.google.com",
	"outlook.com": "https://outlook.live.com",
	"hotmail.com": "https://outlook.live.com",
	"yahoo.com":   "https://mail.yahoo.com",
	"icloud.com":  "https://www.icloud.com/mail",
	"aol.com":     "https://mail.aol.com",
}

// SignUpHandler serves account registration and the check-email helpers.
type SignUpHandler struct {
	provider  sessionProvider
	profiles  profileStore
	validator *forms.Validator
	cookies   sessionCookies
	recorder  operationRecorder
	logger    *slog.Logger
}

// NewSignUpHandler creates a SignUpHandler.
func NewSignUpHandler(provider sessionProvider, store profileStore, validator *forms.Validator, recorder operationRecorder, env string, logger *slog.Logger) *SignUpHandler {
	return &SignUpHandler{
		provider:  provider,
		profiles:  store,
		validator: validator,
		cookies:   newSessionCookies(env),
		recorder:  recorder,
		logger:    logger,
	}
}

type signUpResponse struct {
	UserID     uuid.UUID `json:"userId"`
	Email      string    `json:"email"`
	Session    bool      `json:"session"`
	RedirectTo string    `json:"redirectTo"`
}

// SignUp handles POST /api/auth/sign-up.
func (h *SignUpHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var form forms.SignUp
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := h.validator.Validate(&form); err != nil {
		writeServiceError(w, h.logger, err, "failed to sign up")
		return
	}

	res, err := h.provider.SignUp(r.Context(), form.Email, form.Password)
	h.recorder.RecordAuthOperation("sign_up", err)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to sign up")
		return
	}

	if _, _, err := h.profiles.CreateInitial(r.Context(), profiles.InitialInput{UserID: res.User.ID, Email: res.User.Email}); err != nil {
		h.logger.Error("bootstrap profile after sign-up", "user_id", res.User.ID, "error", err)
	}

	body := signUpResponse{
		UserID:     res.User.ID,
		Email:      res.User.Email,
		RedirectTo: access.CheckEmailURL(res.User.Email),
	}
	if res.Session != nil {
		h.cookies.set(w, res.Session)
		body.Session = true
		body.RedirectTo = access.CompleteProfilePath
	}
	writeJSON(w, http.StatusOK, body)
}

// Resend handles POST /api/auth/resend.
func (h *SignUpHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var form forms.Resend
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := h.validator.Validate(&form); err != nil {
		writeServiceError(w, h.logger, err, "failed to resend confirmation")
		return
	}

	err := h.provider.Resend(r.Context(), resendSignup, form.Email)
	h.recorder.RecordAuthOperation("resend", err)
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to resend confirmation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Confirmation email resent."})
}

// Webmail handles GET /api/auth/webmail and points the user at their inbox.
func (h *SignUpHandler) Webmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	url, known := webmailURL(email)
	writeJSON(w, http.StatusOK, map[string]any{"url": url, "known": known})
}

// webmailURL maps the address domain to a webmail inbox, falling back to mailto.
func webmailURL(email string) (string, bool) {
	_, domain, _ := strings.Cut(email, "@")
	if u, ok := webmailProviders[strings.ToLower(domain)]; ok {
		return u, true
	}
	return "mailto:" + email, false
}
