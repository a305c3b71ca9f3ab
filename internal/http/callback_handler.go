package http

import (
	"context"
	"log/slog"
	"net/http"

	"hoodgram/internal/access"
	"hoodgram/internal/auth"
)

type codeExchanger interface {
	ExchangeCodeForSession(ctx context.Context, code string) (*auth.Session, error)
}

// CallbackHandler serves GET /auth/callback, where both OAuth sign-ins and
// email confirmation links land with a one-time code.
type CallbackHandler struct {
	provider codeExchanger
	profiles profileReader
	cookies  sessionCookies
	recorder operationRecorder
	logger   *slog.Logger
}

// NewCallbackHandler creates a CallbackHandler.
func NewCallbackHandler(provider codeExchanger, store profileReader, recorder operationRecorder, env string, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		provider: provider,
		profiles: store,
		cookies:  newSessionCookies(env),
		recorder: recorder,
		logger:   logger,
	}
}

// Handle exchanges the code for a session and sends the user to home or to
// profile completion.
func (h *CallbackHandler) Handle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Warn("auth callback: provider error", "error", errParam)
		http.Redirect(w, r, access.WithError(access.SignInPath, errParam), http.StatusTemporaryRedirect)
		return
	}

	code := query.Get("code")
	if code == "" {
		http.Redirect(w, r, access.SignInPath, http.StatusTemporaryRedirect)
		return
	}

	session, err := h.provider.ExchangeCodeForSession(r.Context(), code)
	h.recorder.RecordAuthOperation("exchange_code", err)
	if err != nil {
		h.logger.Warn("auth callback: code exchange failed", "error", err)
		http.Redirect(w, r, access.WithError(access.SignInPath, "auth_failed"), http.StatusTemporaryRedirect)
		return
	}
	h.cookies.set(w, session)

	state, err := lookupProfileState(r.Context(), h.profiles, session.UserID)
	if err != nil {
		h.logger.Error("auth callback: profile check failed", "user_id", session.UserID, "error", err)
		http.Redirect(w, r, access.WithError(access.CompleteProfilePath, "profile_check_failed"), http.StatusTemporaryRedirect)
		return
	}

	h.logger.Info("auth callback: session established", "user_id", session.UserID)
	http.Redirect(w, r, access.Landing(state), http.StatusTemporaryRedirect)
}
