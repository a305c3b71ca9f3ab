package http

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"hoodgram/internal/access"
	"hoodgram/internal/authstate"
	"hoodgram/internal/forms"
	"hoodgram/internal/profiles"
)

// ProfileHandler serves profile completion and the bootstrap route.
type ProfileHandler struct {
	provider       sessionProvider
	profiles       profileStore
	validator      *forms.Validator
	serviceRoleKey string
	logger         *slog.Logger
}

// NewProfileHandler creates a ProfileHandler. Without a service role key the
// bootstrap route refuses to write.
func NewProfileHandler(provider sessionProvider, store profileStore, validator *forms.Validator, serviceRoleKey string, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		provider:       provider,
		profiles:       store,
		validator:      validator,
		serviceRoleKey: strings.TrimSpace(serviceRoleKey),
		logger:         logger,
	}
}

// Complete handles PUT /api/profile for the signed-in user.
func (h *ProfileHandler) Complete(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == nil {
		unauthorized(w)
		return
	}

	var form forms.CompleteProfile
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := h.validator.Validate(&form); err != nil {
		writeServiceError(w, h.logger, err, "failed to update profile")
		return
	}

	p, err := h.profiles.Complete(r.Context(), session.UserID, profiles.Completion{Name: form.Name, Username: form.Username})
	if err != nil {
		writeServiceError(w, h.logger, err, "failed to update profile")
		return
	}
	h.provider.NotifyUserUpdated(r.Context(), session)

	user := authstate.NewUser(session, &p)
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":    p,
		"user":       user,
		"redirectTo": access.HomePath,
	})
}

// Bootstrap handles POST /api/create-initial-profile. Callers authenticate
// with the service role key as a Bearer token. The row is created without a
// username; an existing row for the user is left untouched.
func (h *ProfileHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	if h.serviceRoleKey == "" {
		h.logger.Error("profile bootstrap called without a service role key")
		writeError(w, http.StatusInternalServerError, "Server configuration error.")
		return
	}
	if subtle.ConstantTimeCompare([]byte(bearerToken(r)), []byte(h.serviceRoleKey)) != 1 {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Invalid service role key.")
		return
	}

	var form forms.InitialProfile
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := h.validator.Validate(&form); err != nil {
		writeError(w, http.StatusBadRequest, "User ID and email are required.")
		return
	}

	userID, err := uuid.Parse(form.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "User ID must be a UUID.")
		return
	}

	p, created, err := h.profiles.CreateInitial(r.Context(), profiles.InitialInput{
		UserID: userID,
		Email:  form.Email,
		Name:   form.Name,
		Image:  form.Image,
	})
	if err != nil {
		h.logger.Error("profile bootstrap", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	if !created {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Profile already exists.", "profile": p})
		return
	}
	h.logger.Info("initial profile created", "user_id", userID)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Initial profile created successfully.", "profile": p})
}
