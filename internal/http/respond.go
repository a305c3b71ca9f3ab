package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"hoodgram/internal/auth"
	"hoodgram/internal/forms"
	"hoodgram/internal/profiles"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
}

// writeServiceError maps form, provider and profile errors onto responses.
// Anything else is logged and answered with fallback.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	var validationErr *forms.ValidationError
	var providerErr *auth.Error

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
	case errors.As(err, &providerErr):
		writeJSON(w, providerErr.Status, map[string]string{
			"error": providerErr.Message,
			"code":  providerErr.Code,
		})
	case errors.Is(err, profiles.ErrUsernameTaken):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "username taken",
			"fields": forms.FieldErrors{"username": "Username is already taken."},
		})
	case errors.Is(err, profiles.ErrNotFound):
		writeError(w, http.StatusNotFound, "profile not found")
	default:
		logger.Error(fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
