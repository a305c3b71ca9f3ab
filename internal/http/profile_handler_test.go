package http

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"hoodgram/internal/forms"
	"hoodgram/internal/profiles"
)

func TestBootstrapCreatesThenKeepsProfile(t *testing.T) {
	env := newTestEnv(t, testConfig())
	userID := uuid.New()
	body := map[string]string{"userId": userID.String(), "email": "a@b.com", "name": "Jo"}

	rec := env.do(bootstrapRequest(t, body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody(t, rec)
	if created["message"] != "Initial profile created successfully." {
		t.Fatalf("unexpected message %v", created["message"])
	}
	profile, _ := created["profile"].(map[string]any)
	if profile["username"] != nil {
		t.Fatalf("expected bootstrap profile without username, got %v", profile["username"])
	}
	if profile["name"] != "Jo" {
		t.Fatalf("expected name Jo, got %v", profile["name"])
	}

	body["name"] = "Someone Else"
	rec = env.do(bootstrapRequest(t, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for existing row, got %d", rec.Code)
	}
	if msg := decodeBody(t, rec)["message"]; msg != "Profile already exists." {
		t.Fatalf("unexpected message %v", msg)
	}

	stored, err := env.profiles.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stored.Name == nil || *stored.Name != "Jo" {
		t.Fatalf("expected existing row untouched, got %v", stored.Name)
	}
}

func TestBootstrapRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, testConfig())

	cases := []struct {
		name    string
		body    any
		message string
	}{
		{"missing user id", map[string]string{"email": "a@b.com"}, "User ID and email are required."},
		{"missing email", map[string]string{"userId": uuid.NewString()}, "User ID and email are required."},
		{"malformed user id", map[string]string{"userId": "42", "email": "a@b.com"}, "User ID must be a UUID."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(bootstrapRequest(t, tc.body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			if msg := decodeBody(t, rec)["error"]; msg != tc.message {
				t.Fatalf("expected %q, got %v", tc.message, msg)
			}
		})
	}
}

func bootstrapRequest(t *testing.T, body any) *http.Request {
	t.Helper()
	req := jsonRequest(t, http.MethodPost, "/api/create-initial-profile", body)
	req.Header.Set("Authorization", "Bearer service-role")
	return req
}

func TestBootstrapRequiresServiceRoleKey(t *testing.T) {
	env := newTestEnv(t, testConfig())
	userID := uuid.New()
	body := map[string]string{"userId": userID.String(), "email": "a@b.com"}

	cases := map[string]string{
		"missing":   "",
		"wrong":     "Bearer not-the-key",
		"prefix":    "Bearer service",
		"no scheme": "service-role",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := jsonRequest(t, http.MethodPost, "/api/create-initial-profile", body)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := env.do(req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := rec.Header().Get("WWW-Authenticate"); got != "Bearer" {
				t.Fatalf("expected WWW-Authenticate Bearer, got %q", got)
			}
		})
	}

	if _, err := env.profiles.Get(context.Background(), userID); !errors.Is(err, profiles.ErrNotFound) {
		t.Fatalf("expected no profile row to be written, got %v", err)
	}
}

func TestBootstrapWithoutServiceRoleKey(t *testing.T) {
	cfg := testConfig()
	cfg.ServiceRoleKey = ""
	env := newTestEnv(t, cfg)

	rec := env.do(bootstrapRequest(t, map[string]string{"userId": uuid.NewString(), "email": "a@b.com"}))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if msg := decodeBody(t, rec)["error"]; msg != "Server configuration error." {
		t.Fatalf("unexpected error %v", msg)
	}
}

func TestBootstrapStoreFailure(t *testing.T) {
	env := newTestEnv(t, testConfig())
	store := &profileStoreStub{
		createInitial: func(ctx context.Context, in profiles.InitialInput) (profiles.Profile, bool, error) {
			return profiles.Profile{}, false, errors.New("connection reset")
		},
	}
	handler := NewProfileHandler(env.auth, store, forms.NewValidator(), "service-role", discardLogger())

	req := bootstrapRequest(t, map[string]string{"userId": uuid.NewString(), "email": "a@b.com"})
	rec := serve(handler.Bootstrap, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if msg := decodeBody(t, rec)["error"]; msg != "Internal server error." {
		t.Fatalf("unexpected error %v", msg)
	}
}

func TestCompleteProfileRequiresSession(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(jsonRequest(t, http.MethodPut, "/api/profile", map[string]string{"name": "Jo", "username": "jo_1"}))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestCompleteProfileValidation(t *testing.T) {
	env := newTestEnv(t, testConfig())
	session := env.signIn(t, "a@b.com", "")

	req := withSession(jsonRequest(t, http.MethodPut, "/api/profile", map[string]string{"name": "J", "username": "Jo!"}), session)
	rec := env.do(req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	fields, _ := decodeBody(t, rec)["fields"].(map[string]any)
	if fields["name"] != "Name must be at least 2 characters." {
		t.Fatalf("unexpected name message %v", fields["name"])
	}
	if fields["username"] != "Username can only contain lowercase letters, numbers, underscores, and periods." {
		t.Fatalf("unexpected username message %v", fields["username"])
	}
}

func TestCompleteProfileUsernameTaken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.signIn(t, "first@b.com", "jo_1")
	session := env.signIn(t, "second@b.com", "")

	req := withSession(jsonRequest(t, http.MethodPut, "/api/profile", map[string]string{"name": "Jo", "username": "jo_1"}), session)
	rec := env.do(req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	fields, _ := decodeBody(t, rec)["fields"].(map[string]any)
	if fields["username"] != "Username is already taken." {
		t.Fatalf("unexpected username message %v", fields["username"])
	}
}

func TestCompleteProfileSucceeds(t *testing.T) {
	env := newTestEnv(t, testConfig())
	session := env.signIn(t, "a@b.com", "")

	req := withSession(jsonRequest(t, http.MethodPut, "/api/profile", map[string]string{"name": "  Jo  ", "username": "jo_1"}), session)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["redirectTo"] != "/" {
		t.Fatalf("expected redirectTo /, got %v", body["redirectTo"])
	}
	user, _ := body["user"].(map[string]any)
	if user["name"] != "Jo" || user["username"] != "jo_1" {
		t.Fatalf("unexpected user view %v", user)
	}

	rec = env.do(withSession(jsonRequest(t, http.MethodGet, "/feed", nil), session))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected completed user to reach /feed, got %d", rec.Code)
	}
}
