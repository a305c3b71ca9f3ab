package auth

import (
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

func TestIsEmailAllowed(t *testing.T) {
	cases := []struct {
		name    string
		domains []string
		emails  []string
		email   string
		want    bool
	}{
		{name: "explicit email", emails: []string{"Jo@Example.com"}, email: "jo@example.com", want: true},
		{name: "domain", domains: []string{"example.com"}, email: "user@example.com", want: true},
		{name: "unknown domain", domains: []string{"example.com"}, email: "user@other.com", want: false},
		{name: "subdomain is not the domain", domains: []string{"example.com"}, email: "user@mail.example.com", want: false},
		{name: "no allowlist", email: "user@other.com", want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &GoogleAuthenticator{allowedDomains: lowerSet(tc.domains), allowedEmails: lowerSet(tc.emails)}
			if got := g.IsEmailAllowed(tc.email); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestHasAllowlist(t *testing.T) {
	g := &GoogleAuthenticator{allowedDomains: lowerSet(nil), allowedEmails: lowerSet([]string{" ", ""})}
	if g.HasAllowlist() {
		t.Fatal("expected blank entries to be ignored")
	}

	g.allowedDomains["example.com"] = struct{}{}
	if !g.HasAllowlist() {
		t.Fatal("expected HasAllowlist to be true")
	}
}

func TestGenerateState(t *testing.T) {
	state1, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState returned error: %v", err)
	}
	state2, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState returned error: %v", err)
	}
	if state1 == "" || state1 == state2 {
		t.Fatal("expected unique non-empty state values")
	}
}

func TestAuthURLIncludesPromptSelectAccount(t *testing.T) {
	g := &GoogleAuthenticator{
		config: &oauth2.Config{
			ClientID:    "client-id",
			RedirectURL: "http://localhost:8080/auth/v1/callback",
			Endpoint:    oauth2.Endpoint{AuthURL: "https://auth.test/oauth"},
			Scopes:      []string{"openid"},
		},
	}

	parsed, err := url.Parse(g.AuthURL("state123"))
	if err != nil {
		t.Fatalf("failed to parse auth URL: %v", err)
	}
	q := parsed.Query()
	if q.Get("prompt") != "select_account" {
		t.Fatalf("expected prompt=select_account, got %q", q.Get("prompt"))
	}
	if q.Get("state") != "state123" {
		t.Fatalf("expected state to round trip, got %q", q.Get("state"))
	}
	if q.Get("redirect_uri") != "http://localhost:8080/auth/v1/callback" {
		t.Fatalf("unexpected redirect_uri %q", q.Get("redirect_uri"))
	}
}
