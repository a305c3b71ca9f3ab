package http

import (
	"errors"
	"log/slog"
	"net/http"

	"hoodgram/internal/authstate"
	"hoodgram/internal/profiles"
)

// pageResponse describes a page the client should render. Markup lives in
// the web client.
type pageResponse struct {
	Page  string            `json:"page"`
	Path  string            `json:"path"`
	User  *authstate.User   `json:"user"`
	Query map[string]string `json:"query,omitempty"`
}

// PageHandler answers the guarded page routes.
type PageHandler struct {
	profiles profileReader
	logger   *slog.Logger
}

// NewPageHandler creates a PageHandler.
func NewPageHandler(store profileReader, logger *slog.Logger) *PageHandler {
	return &PageHandler{profiles: store, logger: logger}
}

// Render returns a handler for the named page. Listed query parameters are
// echoed back so the client can show them.
func (h *PageHandler) Render(page string, params ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := pageResponse{Page: page, Path: r.URL.Path}

		if session := SessionFromContext(r.Context()); session != nil {
			var profile *profiles.Profile
			p, err := h.profiles.Get(r.Context(), session.UserID)
			switch {
			case err == nil:
				profile = &p
			case !errors.Is(err, profiles.ErrNotFound):
				h.logger.Error("page profile lookup", "user_id", session.UserID, "error", err)
			}
			user := authstate.NewUser(session, profile)
			resp.User = &user
		}

		query := r.URL.Query()
		for _, name := range params {
			if v := query.Get(name); v != "" {
				if resp.Query == nil {
					resp.Query = map[string]string{}
				}
				resp.Query[name] = v
			}
		}
		if email := query.Get("email"); page == "check-email" && email != "" {
			if resp.Query == nil {
				resp.Query = map[string]string{}
			}
			resp.Query["webmail"], _ = webmailURL(email)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
