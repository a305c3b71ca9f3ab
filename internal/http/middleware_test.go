package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"hoodgram/internal/auth"
)

type sessionReaderStub struct {
	getSession func(ctx context.Context, token string) (*auth.Session, error)
}

func (s *sessionReaderStub) GetSession(ctx context.Context, token string) (*auth.Session, error) {
	return s.getSession(ctx, token)
}

func TestSessionMiddlewareLeavesAnonymousRequestsAlone(t *testing.T) {
	called := false
	reader := &sessionReaderStub{getSession: func(ctx context.Context, token string) (*auth.Session, error) {
		called = true
		return nil, nil
	}}
	var seen *auth.Session
	next := newSessionMiddleware(reader, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK || seen != nil || called {
		t.Fatalf("expected anonymous pass-through, got status %d session %v lookup %v", rec.Code, seen, called)
	}
}

func TestSessionMiddlewareInjectsSession(t *testing.T) {
	expected := &auth.Session{ID: uuid.New(), UserID: uuid.New(), Email: "user@example.com"}
	var gotToken string
	var gotClient auth.ClientInfo
	reader := &sessionReaderStub{getSession: func(ctx context.Context, token string) (*auth.Session, error) {
		gotToken = token
		gotClient = auth.ClientInfoFrom(ctx)
		return expected, nil
	}}
	var seen *auth.Session
	next := newSessionMiddleware(reader, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "token"})
	req.Header.Set("User-Agent", "hood-test")
	next.ServeHTTP(httptest.NewRecorder(), req)

	if gotToken != "token" {
		t.Fatalf("expected cookie token, got %q", gotToken)
	}
	if seen != expected {
		t.Fatalf("expected session in context, got %v", seen)
	}
	if gotClient.UserAgent != "hood-test" || gotClient.IPAddress != "192.0.2.1" {
		t.Fatalf("unexpected client info %+v", gotClient)
	}
}

func TestSessionMiddlewareIgnoresLookupErrors(t *testing.T) {
	reader := &sessionReaderStub{getSession: func(ctx context.Context, token string) (*auth.Session, error) {
		return nil, errors.New("db down")
	}}
	var seen *auth.Session
	next := newSessionMiddleware(reader, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || seen != nil {
		t.Fatalf("expected request to continue anonymously, got %d %v", rec.Code, seen)
	}
}

func TestRequireSession(t *testing.T) {
	next := requireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/profile", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("expected WWW-Authenticate header")
	}

	req := httptest.NewRequest(http.MethodPut, "/api/profile", nil)
	req = req.WithContext(context.WithValue(req.Context(), sessionContextKey, &auth.Session{}))
	rec = httptest.NewRecorder()
	next.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	newSecurityHeadersMiddleware("production")(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Frame-Options") != "DENY" || rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatalf("expected production security headers, got %v", rec.Header())
	}

	rec = httptest.NewRecorder()
	newSecurityHeadersMiddleware("development")(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("expected no HSTS in development")
	}
}

func TestHealthBypassesGuard(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if status := decodeBody(t, rec)["status"]; status != "ok" {
		t.Fatalf("unexpected health status %v", status)
	}
}
