package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hoodgram/internal/auth"
	"hoodgram/internal/forms"
)

func TestSignInSetsCookieAndLanding(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.signIn(t, "a@b.com", "")

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/sign-in", map[string]string{"email": " a@b.com ", "password": "password123"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["authenticated"] != true || body["profileComplete"] != false {
		t.Fatalf("unexpected session flags %v", body)
	}
	if body["redirectTo"] != "/complete-profile" {
		t.Fatalf("expected redirectTo /complete-profile, got %v", body["redirectTo"])
	}
	cookie := findCookie(rec, sessionCookieName)
	if cookie == nil || cookie.Value == "" {
		t.Fatalf("expected session cookie to be set")
	}
	if cookie.Secure {
		t.Fatalf("expected insecure cookie in development")
	}
}

func TestSignInCompleteUserLandsHome(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.signIn(t, "a@b.com", "jo_1")

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/sign-in", map[string]string{"email": "a@b.com", "password": "password123"}))

	body := decodeBody(t, rec)
	if body["redirectTo"] != "/" || body["profileComplete"] != true {
		t.Fatalf("unexpected response %v", body)
	}
}

func TestSignInInvalidCredentials(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.signIn(t, "a@b.com", "")

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/sign-in", map[string]string{"email": "a@b.com", "password": "wrong-password"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "Invalid login credentials" || body["code"] != "invalid_credentials" {
		t.Fatalf("unexpected error body %v", body)
	}
	if findCookie(rec, sessionCookieName) != nil {
		t.Fatalf("expected no session cookie")
	}
}

func TestSignInValidation(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/sign-in", map[string]string{"email": "nope", "password": "short"}))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	fields, _ := decodeBody(t, rec)["fields"].(map[string]any)
	if fields["email"] != "Invalid email" || fields["password"] != "Password must be at least 8 characters." {
		t.Fatalf("unexpected field errors %v", fields)
	}
}

func TestSignInMalformedJSON(t *testing.T) {
	env := newTestEnv(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-in", strings.NewReader("{"))
	rec := env.do(req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestSessionStatus(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))
	if body := decodeBody(t, rec); body["authenticated"] != false || body["user"] != nil {
		t.Fatalf("expected anonymous status, got %v", body)
	}

	session := env.signIn(t, "a@b.com", "jo_1")
	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec = env.do(req)

	body := decodeBody(t, rec)
	user, _ := body["user"].(map[string]any)
	if body["authenticated"] != true || user["email"] != "a@b.com" || user["username"] != "jo_1" {
		t.Fatalf("unexpected status %v", body)
	}
}

func TestSignOutRevokesSession(t *testing.T) {
	env := newTestEnv(t, testConfig())
	session := env.signIn(t, "a@b.com", "jo_1")

	rec := env.do(withSession(httptest.NewRequest(http.MethodPost, "/api/auth/sign-out", nil), session))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	cookie := findCookie(rec, sessionCookieName)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Fatalf("expected session cookie to be cleared, got %+v", cookie)
	}

	got, err := env.auth.GetSession(context.Background(), session.AccessToken)
	if err != nil || got != nil {
		t.Fatalf("expected revoked session, got %v, %v", got, err)
	}

	rec = env.do(withSession(httptest.NewRequest(http.MethodGet, "/feed", nil), session))
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected revoked session to be redirected, got %d", rec.Code)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	session := env.signIn(t, "a@b.com", "")

	rec := env.do(withSession(httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil), session))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	cookie := findCookie(rec, sessionCookieName)
	if cookie == nil || cookie.Value == "" || cookie.Value == session.AccessToken {
		t.Fatalf("expected a new session cookie, got %+v", cookie)
	}
	if old, _ := env.auth.GetSession(context.Background(), session.AccessToken); old != nil {
		t.Fatalf("expected the previous token to be revoked")
	}
}

func TestRefreshWithoutSession(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestSignUpSendsToCheckEmail(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/sign-up", map[string]string{"email": "a@b.com", "password": "password123"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["redirectTo"] != "/check-email?email=a%40b.com" || body["session"] != false {
		t.Fatalf("unexpected sign-up response %v", body)
	}
	if findCookie(rec, sessionCookieName) != nil {
		t.Fatalf("expected no session before confirmation")
	}
	if _, ok := env.outbox.Last("a@b.com"); !ok {
		t.Fatalf("expected a confirmation email")
	}

	userID, _ := body["userId"].(string)
	rec = env.do(bootstrapRequest(t, map[string]string{"userId": userID, "email": "a@b.com"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the bootstrap row to exist already, got %d", rec.Code)
	}
}

func TestSignUpWithAutoConfirmStartsSession(t *testing.T) {
	env := newTestEnv(t, testConfig(), auth.WithAutoConfirm(true))

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/sign-up", map[string]string{"email": "a@b.com", "password": "password123"}))

	body := decodeBody(t, rec)
	if body["redirectTo"] != "/complete-profile" || body["session"] != true {
		t.Fatalf("unexpected sign-up response %v", body)
	}
	if findCookie(rec, sessionCookieName) == nil {
		t.Fatalf("expected a session cookie")
	}
}

func TestSignUpDuplicate(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.signIn(t, "a@b.com", "")

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/sign-up", map[string]string{"email": "a@b.com", "password": "password123"}))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	if msg := decodeBody(t, rec)["error"]; msg != "User already registered" {
		t.Fatalf("unexpected error %v", msg)
	}
}

func TestResendConfirmation(t *testing.T) {
	env := newTestEnv(t, testConfig())
	if _, err := env.auth.SignUp(context.Background(), "a@b.com", "password123"); err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	first, _ := env.outbox.Last("a@b.com")

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/resend", map[string]string{"email": "a@b.com"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	second, _ := env.outbox.Last("a@b.com")
	if second.Link == first.Link {
		t.Fatalf("expected a fresh confirmation link")
	}

	rec = env.do(jsonRequest(t, http.MethodPost, "/api/auth/resend", map[string]string{"email": "bad"}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for invalid email, got %d", rec.Code)
	}
}

func TestWebmail(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/webmail?email=jo%40Gmail.com", nil))
	body := decodeBody(t, rec)
	if body["url"] != "https://mail.google.com" || body["known"] != true {
		t.Fatalf("unexpected webmail response %v", body)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/auth/webmail?email=jo%40hood.test", nil))
	body = decodeBody(t, rec)
	if body["url"] != "mailto:jo@hood.test" || body["known"] != false {
		t.Fatalf("unexpected fallback %v", body)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/auth/webmail", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestCheckEmailPageCarriesWebmail(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.do(httptest.NewRequest(http.MethodGet, "/check-email?email=jo%40outlook.com", nil))

	query, _ := decodeBody(t, rec)["query"].(map[string]any)
	if query["email"] != "jo@outlook.com" || query["webmail"] != "https://outlook.live.com" {
		t.Fatalf("unexpected page query %v", query)
	}
}

func TestCredentialRoutesAreRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRateLimit = 2
	env := newTestEnv(t, cfg)
	body := map[string]string{"email": "a@b.com", "password": "password123"}

	for i := 0; i < 2; i++ {
		if rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/sign-in", body)); rec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited too early", i)
		}
	}

	rec := env.do(jsonRequest(t, http.MethodPost, "/api/auth/sign-in", body))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if code := decodeBody(t, rec)["code"]; code != "over_request_rate_limit" {
		t.Fatalf("unexpected code %v", code)
	}

	if rec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected session status to stay unlimited, got %d", rec.Code)
	}
}

func TestSignInRecordsOperation(t *testing.T) {
	env := newTestEnv(t, testConfig())
	rec := &recorderStub{}
	handler := NewSessionHandler(env.auth, env.profiles, forms.NewValidator(), rec, "production", discardLogger())
	env.signIn(t, "a@b.com", "")

	w := serve(handler.SignIn, jsonRequest(t, http.MethodPost, "/api/auth/sign-in", map[string]string{"email": "a@b.com", "password": "password123"}))
	serve(handler.SignIn, jsonRequest(t, http.MethodPost, "/api/auth/sign-in", map[string]string{"email": "a@b.com", "password": "wrong-password"}))

	if cookie := findCookie(w, sessionCookieName); cookie == nil || !cookie.Secure {
		t.Fatalf("expected secure cookie outside development")
	}
	if len(rec.operations) != 2 || rec.operations[0] != "sign_in ok" || rec.operations[1] != "sign_in error" {
		t.Fatalf("unexpected recorded operations %v", rec.operations)
	}
}
