// Package access holds the routing policy shared by the route guard, the
// auth state controller and the OAuth callback.
package access

import (
	"net/url"
	"strings"
)

const (
	HomePath            = "/"
	SignInPath          = "/sign-in"
	SignUpPath          = "/sign-up"
	CheckEmailPath      = "/check-email"
	AuthErrorPath       = "/api/auth/error"
	CallbackPath        = "/auth/callback"
	CompleteProfilePath = "/complete-profile"

	// RedirectedFromParam carries the originally requested path to the sign-in page.
	RedirectedFromParam = "redirectedFrom"
)

var publicPaths = map[string]struct{}{
	HomePath:       {},
	SignInPath:     {},
	SignUpPath:     {},
	CheckEmailPath: {},
	AuthErrorPath:  {},
	CallbackPath:   {},
}

// ProfileState describes what is known about the signed-in user's profile.
type ProfileState int

const (
	// ProfileIncomplete covers a missing row, a row without username and a failed lookup.
	ProfileIncomplete ProfileState = iota
	ProfileComplete
)

// Input is everything Decide looks at.
type Input struct {
	Authenticated bool
	Profile       ProfileState
	Path          string
}

// ActionKind tells the caller whether to continue or navigate away.
type ActionKind int

const (
	Allow ActionKind = iota
	Redirect
)

func (k ActionKind) String() string {
	if k == Redirect {
		return "redirect"
	}
	return "allow"
}

// Action is the outcome of Decide. Target is only set for Redirect.
type Action struct {
	Kind   ActionKind
	Target string
}

// IsPublic reports whether path is reachable without a session.
func IsPublic(path string) bool {
	_, ok := publicPaths[normalize(path)]
	return ok
}

// Decide applies the routing table in order; the first matching rule wins.
func Decide(in Input) Action {
	path := normalize(in.Path)

	if !in.Authenticated {
		if !IsPublic(path) && path != CompleteProfilePath {
			return Action{Kind: Redirect, Target: SignInRedirect(path)}
		}
		return Action{Kind: Allow}
	}

	if in.Profile != ProfileComplete {
		if path != CompleteProfilePath {
			return Action{Kind: Redirect, Target: CompleteProfilePath}
		}
		return Action{Kind: Allow}
	}

	if path == CompleteProfilePath {
		return Action{Kind: Redirect, Target: HomePath}
	}
	return Action{Kind: Allow}
}

// Landing is where a freshly authenticated user should end up.
func Landing(state ProfileState) string {
	if state == ProfileComplete {
		return HomePath
	}
	return CompleteProfilePath
}

// SignInRedirect builds the sign-in URL that remembers the requested path.
// Slashes are kept readable in the query value.
func SignInRedirect(from string) string {
	if from == "" {
		return SignInPath
	}
	value := strings.ReplaceAll(url.QueryEscape(from), "%2F", "/")
	return SignInPath + "?" + RedirectedFromParam + "=" + value
}

// CheckEmailURL builds the post sign-up destination for email.
func CheckEmailURL(email string) string {
	return CheckEmailPath + "?email=" + url.QueryEscape(email)
}

// WithError appends an error code to a route, as used by the callback.
func WithError(path, code string) string {
	return path + "?error=" + url.QueryEscape(code)
}

func normalize(path string) string {
	if path == "" {
		return HomePath
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return HomePath
		}
	}
	return path
}
