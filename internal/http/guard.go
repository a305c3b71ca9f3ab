package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"hoodgram/internal/access"
	"hoodgram/internal/profiles"
)

// Paths the route guard never sees.
var (
	guardExcludedPrefixes = []string{"/static/", "/assets/", "/_image/"}
	guardExcludedPaths    = map[string]bool{
		"/_image":           true,
		"/favicon.ico":      true,
		access.CallbackPath: true,
		"/health":           true,
		"/metrics":          true,
	}
)

type profileReader interface {
	Get(ctx context.Context, userID uuid.UUID) (profiles.Profile, error)
}

type guardRecorder interface {
	RecordGuardDecision(action, target string)
}

// guardMatches reports whether path is a page the guard decides on. JSON
// endpoints, the provider leg and ops endpoints answer for themselves.
func guardMatches(path string) bool {
	if guardExcludedPaths[path] {
		return false
	}
	for _, prefix := range guardExcludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	if path == access.AuthErrorPath {
		return true
	}
	if strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/auth/v1/") {
		return false
	}
	return true
}

// newRouteGuard re-derives the routing decision for every page request from
// the session cookie and the profile store.
func newRouteGuard(store profileReader, recorder guardRecorder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !guardMatches(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			in := access.Input{Path: r.URL.Path}
			if session := SessionFromContext(r.Context()); session != nil {
				in.Authenticated = true
				state, err := lookupProfileState(r.Context(), store, session.UserID)
				if err != nil {
					logger.Error("route guard profile lookup", "user_id", session.UserID, "error", err)
				}
				in.Profile = state
			}

			action := access.Decide(in)
			recorder.RecordGuardDecision(action.Kind.String(), targetPath(action.Target))
			if action.Kind == access.Redirect {
				logger.Debug("route guard redirect", "path", r.URL.Path, "target", action.Target)
				http.Redirect(w, r, action.Target, http.StatusTemporaryRedirect)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// lookupProfileState reads the completeness flag for userID. A missing row is
// incomplete; any other error is returned alongside ProfileIncomplete.
func lookupProfileState(ctx context.Context, store profileReader, userID uuid.UUID) (access.ProfileState, error) {
	p, err := store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			return access.ProfileIncomplete, nil
		}
		return access.ProfileIncomplete, err
	}
	if p.Complete() {
		return access.ProfileComplete, nil
	}
	return access.ProfileIncomplete, nil
}

func targetPath(target string) string {
	path, _, _ := strings.Cut(target, "?")
	return path
}
