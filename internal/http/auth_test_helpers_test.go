package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"

	"hoodgram/internal/auth"
	"hoodgram/internal/config"
	"hoodgram/internal/profiles"
)

const testSiteURL = "http://hood.test"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	cfg      config.Config
	auth     *auth.Service
	profiles *profiles.Service
	outbox   *auth.OutboxMailer
	router   http.Handler
}

func testConfig() config.Config {
	return config.Config{
		Environment:    "development",
		AllowedOrigins: []string{testSiteURL},
		SiteURL:        testSiteURL,
		ServiceRoleKey: "service-role",
		AuthRateLimit:  100,
	}
}

func newTestEnv(t *testing.T, cfg config.Config, opts ...auth.Option) testEnv {
	t.Helper()
	outbox := &auth.OutboxMailer{}
	base := []auth.Option{
		auth.WithHasher(auth.NewBcryptHasher(4)),
		auth.WithMailer(outbox),
		auth.WithSiteURL(cfg.SiteURL),
		auth.WithOAuthProviders("google"),
	}
	authSvc := auth.NewService(auth.NewInMemoryRepository(), auth.NewTokenSigner("test-secret"), append(base, opts...)...)
	profileSvc := profiles.NewService(profiles.NewInMemoryRepository(nil))

	return testEnv{
		cfg:      cfg,
		auth:     authSvc,
		profiles: profileSvc,
		outbox:   outbox,
		router: NewRouter(Dependencies{
			Config:   cfg,
			Auth:     authSvc,
			Profiles: profileSvc,
			Logger:   discardLogger(),
		}),
	}
}

// signIn registers a confirmed account with a bootstrap profile and returns
// its session. username completes the profile when non-empty.
func (e testEnv) signIn(t *testing.T, email, username string) *auth.Session {
	t.Helper()
	ctx := context.Background()

	if _, err := e.auth.SignUp(ctx, email, "password123"); err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	if msg, ok := e.outbox.Last(email); ok {
		link, err := url.Parse(msg.Link)
		if err != nil {
			t.Fatalf("parse confirmation link: %v", err)
		}
		if _, err := e.auth.ExchangeCodeForSession(ctx, link.Query().Get("code")); err != nil {
			t.Fatalf("confirm email: %v", err)
		}
	}

	session, err := e.auth.SignInWithPassword(ctx, email, "password123")
	if err != nil {
		t.Fatalf("SignInWithPassword returned error: %v", err)
	}
	if _, _, err := e.profiles.CreateInitial(ctx, profiles.InitialInput{UserID: session.UserID, Email: email}); err != nil {
		t.Fatalf("CreateInitial returned error: %v", err)
	}
	if username != "" {
		if _, err := e.profiles.Complete(ctx, session.UserID, profiles.Completion{Name: "Jo", Username: username}); err != nil {
			t.Fatalf("Complete returned error: %v", err)
		}
	}
	return session
}

func (e testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withSession(req *http.Request, session *auth.Session) *http.Request {
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: session.AccessToken})
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// profileStoreStub lets tests inject profile store failures.
type profileStoreStub struct {
	get           func(ctx context.Context, userID uuid.UUID) (profiles.Profile, error)
	createInitial func(ctx context.Context, in profiles.InitialInput) (profiles.Profile, bool, error)
	complete      func(ctx context.Context, userID uuid.UUID, in profiles.Completion) (profiles.Profile, error)
}

func (s *profileStoreStub) Get(ctx context.Context, userID uuid.UUID) (profiles.Profile, error) {
	if s.get != nil {
		return s.get(ctx, userID)
	}
	return profiles.Profile{}, profiles.ErrNotFound
}

func (s *profileStoreStub) CreateInitial(ctx context.Context, in profiles.InitialInput) (profiles.Profile, bool, error) {
	if s.createInitial != nil {
		return s.createInitial(ctx, in)
	}
	return profiles.Profile{UserID: in.UserID, Email: in.Email}, true, nil
}

func (s *profileStoreStub) Complete(ctx context.Context, userID uuid.UUID, in profiles.Completion) (profiles.Profile, error) {
	if s.complete != nil {
		return s.complete(ctx, userID, in)
	}
	return profiles.Profile{}, profiles.ErrNotFound
}

type recorderStub struct {
	decisions  []string
	operations []string
}

func (r *recorderStub) RecordGuardDecision(action, target string) {
	r.decisions = append(r.decisions, action+" "+target)
}

func (r *recorderStub) RecordAuthOperation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.operations = append(r.operations, operation+" "+result)
}
