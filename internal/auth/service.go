package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	minPasswordLength = 8
	defaultSessionTTL = 12 * time.Hour
	defaultCodeTTL    = 10 * time.Minute
	providerGoogle    = "google"
	resendSignup      = "signup"
)

// ClientInfo describes the client a session is created for.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

type clientInfoKey struct{}

// WithClientInfo attaches client details recorded on sessions created with ctx.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

// ClientInfoFrom returns the client details attached by WithClientInfo.
func ClientInfoFrom(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientInfoKey{}).(ClientInfo)
	return info
}

// Service is the credential and session provider.
type Service struct {
	repo        Repository
	signer      *TokenSigner
	hasher      PasswordHasher
	mailer      Mailer
	hub         *Hub
	siteURL     string
	confirmURL  string
	sessionTTL  time.Duration
	codeTTL     time.Duration
	autoConfirm bool
	providers   map[string]struct{}
	now         func() time.Time
}

// Option customises a Service.
type Option func(*Service)

func WithHasher(h PasswordHasher) Option { return func(s *Service) { s.hasher = h } }
func WithMailer(m Mailer) Option         { return func(s *Service) { s.mailer = m } }
func WithHub(h *Hub) Option              { return func(s *Service) { s.hub = h } }
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSiteURL sets the public base URL used in OAuth and confirmation links.
func WithSiteURL(siteURL string) Option {
	return func(s *Service) { s.siteURL = strings.TrimRight(siteURL, "/") }
}

// WithConfirmationURL overrides where confirmation links point.
func WithConfirmationURL(u string) Option {
	return func(s *Service) { s.confirmURL = u }
}

// WithSessionTTL sets the session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithAutoConfirm skips email confirmation so SignUp returns a session.
func WithAutoConfirm(enabled bool) Option {
	return func(s *Service) { s.autoConfirm = enabled }
}

// WithOAuthProviders enables the named OAuth providers.
func WithOAuthProviders(names ...string) Option {
	return func(s *Service) {
		for _, n := range names {
			s.providers[strings.ToLower(strings.TrimSpace(n))] = struct{}{}
		}
	}
}

// NewService creates a new auth Service.
func NewService(repo Repository, signer *TokenSigner, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		signer:     signer,
		hasher:     NewBcryptHasher(0),
		mailer:     NewLogMailer(slog.Default()),
		hub:        NewHub(nil, nil),
		siteURL:    "http://localhost:8080",
		sessionTTL: defaultSessionTTL,
		codeTTL:    defaultCodeTTL,
		providers:  make(map[string]struct{}),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.confirmURL == "" {
		s.confirmURL = s.siteURL + "/auth/callback"
	}
	return s
}

// OnSessionChange subscribes fn to session changes.
func (s *Service) OnSessionChange(fn func(Event)) func() {
	return s.hub.Subscribe(fn)
}

// SignUp registers a password account. Unless auto-confirm is enabled the
// result carries no session and a confirmation link is mailed.
func (s *Service) SignUp(ctx context.Context, email, password string) (SignUpResult, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return SignUpResult{}, ErrInvalidEmail
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return SignUpResult{}, ErrWeakPassword
	}

	existing, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return SignUpResult{}, fmt.Errorf("find user: %w", err)
	}
	if existing != nil {
		return SignUpResult{}, ErrUserExists
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return SignUpResult{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLoginAt:  now,
	}
	if s.autoConfirm {
		user.EmailConfirmedAt = &now
	}

	created, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		return SignUpResult{}, fmt.Errorf("create user: %w", err)
	}

	if s.autoConfirm {
		session, err := s.startSession(ctx, created)
		if err != nil {
			return SignUpResult{}, err
		}
		s.hub.Publish(ctx, Event{Kind: EventSignedIn, Session: session})
		return SignUpResult{User: created, Session: session}, nil
	}

	if err := s.sendConfirmation(ctx, created); err != nil {
		return SignUpResult{}, err
	}
	return SignUpResult{User: created}, nil
}

// SignInWithPassword starts a session for a confirmed password account.
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.repo.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Confirmed() {
		return nil, ErrEmailNotConfirmed
	}

	if err := s.repo.UpdateUserLogin(ctx, user.ID, user.Name, user.AvatarURL); err != nil {
		return nil, fmt.Errorf("update user login: %w", err)
	}

	session, err := s.startSession(ctx, *user)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(ctx, Event{Kind: EventSignedIn, Session: session})
	return session, nil
}

// SignInWithOAuth returns the URL that starts the provider consent flow.
// callbackURL is where the browser lands with a one-time code afterwards.
func (s *Service) SignInWithOAuth(_ context.Context, provider, callbackURL string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if _, ok := s.providers[provider]; !ok {
		return "", ErrUnsupportedProvider
	}

	q := url.Values{}
	q.Set("provider", provider)
	if callbackURL != "" {
		q.Set("redirect_to", callbackURL)
	}
	return s.siteURL + "/auth/v1/authorize?" + q.Encode(), nil
}

// GetSession resolves an access token. It returns nil without error when the
// token is empty, invalid, revoked or expired.
func (s *Service) GetSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}

	userID, sessionID, err := s.signer.Verify(token)
	if err != nil {
		return nil, nil
	}

	session, user, err := s.repo.FindSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil || user == nil || session.ID != sessionID || user.ID != userID {
		return nil, nil
	}

	if s.now().After(session.ExpiresAt) {
		_ = s.repo.DeleteSession(ctx, session.ID)
		return nil, nil
	}

	session.Email = user.Email
	session.Metadata = Metadata{FullName: user.Name, AvatarURL: user.AvatarURL}
	session.AccessToken = token
	return session, nil
}

// ExchangeCodeForSession redeems a one-time code issued by email
// confirmation or the OAuth leg.
func (s *Service) ExchangeCodeForSession(ctx context.Context, code string) (*Session, error) {
	if code == "" {
		return nil, ErrInvalidCode
	}

	stored, err := s.repo.ConsumeCode(ctx, hashToken(code))
	if err != nil {
		return nil, fmt.Errorf("consume code: %w", err)
	}
	now := s.now()
	if stored == nil || now.After(stored.ExpiresAt) {
		return nil, ErrInvalidCode
	}

	user, err := s.repo.FindUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCode
	}

	if stored.Purpose == PurposeSignupConfirmation && !user.Confirmed() {
		if err := s.repo.ConfirmEmail(ctx, user.ID, now); err != nil {
			return nil, fmt.Errorf("confirm email: %w", err)
		}
		user.EmailConfirmedAt = &now
	}

	session, err := s.startSession(ctx, *user)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(ctx, Event{Kind: EventSignedIn, Session: session})
	return session, nil
}

// Resend mails a fresh confirmation link. Unknown or already confirmed
// addresses are accepted silently.
func (s *Service) Resend(ctx context.Context, kind, email string) error {
	if kind != resendSignup {
		return ErrUnsupportedResend
	}

	user, err := s.repo.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if user == nil || user.Confirmed() {
		return nil
	}
	return s.sendConfirmation(ctx, *user)
}

// SignOut revokes the session behind token and notifies subscribers.
func (s *Service) SignOut(ctx context.Context, token string) error {
	session, err := s.GetSession(ctx, token)
	if err != nil {
		return err
	}
	if session != nil {
		if err := s.repo.DeleteSession(ctx, session.ID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	s.hub.Publish(ctx, Event{Kind: EventSignedOut, Session: session})
	return nil
}

// Refresh replaces the session behind token with a new one.
func (s *Service) Refresh(ctx context.Context, token string) (*Session, error) {
	current, err := s.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrInvalidToken
	}

	user, err := s.repo.FindUserByID(ctx, current.UserID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidToken
	}

	next, err := s.startSession(ctx, *user)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteSession(ctx, current.ID); err != nil {
		return nil, fmt.Errorf("delete session: %w", err)
	}
	s.hub.Publish(ctx, Event{Kind: EventTokenRefreshed, Session: next})
	return next, nil
}

// Restore replays a stored token to subscribers: INITIAL_SESSION first, then
// SIGNED_IN when the token still resolves to a session.
func (s *Service) Restore(ctx context.Context, token string) (*Session, error) {
	session, err := s.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(ctx, Event{Kind: EventInitialSession, Session: session})
	if session != nil {
		s.hub.Publish(ctx, Event{Kind: EventSignedIn, Session: session})
	}
	return session, nil
}

// NotifyUserUpdated tells subscribers that data derived from session changed.
func (s *Service) NotifyUserUpdated(ctx context.Context, session *Session) {
	s.hub.Publish(ctx, Event{Kind: EventUserUpdated, Session: session})
}

// CreateOrUpdateOAuthUser finds the user behind verified Google claims,
// linking an existing account with the same email, or creates one.
func (s *Service) CreateOrUpdateOAuthUser(ctx context.Context, claims *GoogleClaims) (*User, error) {
	existing, err := s.repo.FindUserByOAuth(ctx, providerGoogle, claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	now := s.now()
	if existing == nil {
		existing, err = s.repo.FindUserByEmail(ctx, normalizeEmail(claims.Email))
		if err != nil {
			return nil, fmt.Errorf("find user by email: %w", err)
		}
		if existing != nil {
			if err := s.repo.LinkOAuthIdentity(ctx, existing.ID, providerGoogle, claims.Sub); err != nil {
				return nil, fmt.Errorf("link identity: %w", err)
			}
			existing.OAuthProvider = providerGoogle
			existing.OAuthProviderID = claims.Sub
			if !existing.Confirmed() {
				if err := s.repo.ConfirmEmail(ctx, existing.ID, now); err != nil {
					return nil, fmt.Errorf("confirm email: %w", err)
				}
				existing.EmailConfirmedAt = &now
			}
		}
	}

	if existing != nil {
		if err := s.repo.UpdateUserLogin(ctx, existing.ID, claims.Name, claims.Picture); err != nil {
			return nil, fmt.Errorf("update user login: %w", err)
		}
		existing.Name = claims.Name
		existing.AvatarURL = claims.Picture
		existing.LastLoginAt = now
		return existing, nil
	}

	newUser := User{
		ID:               uuid.New(),
		Email:            normalizeEmail(claims.Email),
		Name:             claims.Name,
		AvatarURL:        claims.Picture,
		OAuthProvider:    providerGoogle,
		OAuthProviderID:  claims.Sub,
		EmailConfirmedAt: &now,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastLoginAt:      now,
	}

	created, err := s.repo.CreateUser(ctx, newUser)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &created, nil
}

// IssueOAuthCode creates the one-time code handed back to the OAuth callback.
func (s *Service) IssueOAuthCode(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.issueCode(ctx, userID, PurposeOAuth)
}

// CleanupExpiredSessions removes expired sessions and one-time codes.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	sessions, err := s.repo.DeleteExpiredSessions(ctx)
	if err != nil {
		return 0, err
	}
	codes, err := s.repo.DeleteExpiredCodes(ctx)
	if err != nil {
		return sessions, err
	}
	return sessions + codes, nil
}

func (s *Service) startSession(ctx context.Context, user User) (*Session, error) {
	now := s.now()
	info := ClientInfoFrom(ctx)
	session := Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		Email:     user.Email,
		Metadata:  Metadata{FullName: user.Name, AvatarURL: user.AvatarURL},
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
		UserAgent: truncateString(info.UserAgent, 512),
		IPAddress: truncateString(info.IPAddress, 45),
	}

	token, err := s.signer.Sign(session)
	if err != nil {
		return nil, err
	}
	session.AccessToken = token

	if err := s.repo.CreateSession(ctx, session, hashToken(token)); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &session, nil
}

func (s *Service) sendConfirmation(ctx context.Context, user User) error {
	code, err := s.issueCode(ctx, user.ID, PurposeSignupConfirmation)
	if err != nil {
		return err
	}
	link := s.confirmURL + "?code=" + url.QueryEscape(code)
	if err := s.mailer.Send(ctx, Message{To: user.Email, Subject: "Confirm your email", Link: link}); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	return nil
}

func (s *Service) issueCode(ctx context.Context, userID uuid.UUID, purpose CodePurpose) (string, error) {
	code, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	now := s.now()
	stored := Code{UserID: userID, Purpose: purpose, ExpiresAt: now.Add(s.codeTTL), CreatedAt: now}
	if err := s.repo.CreateCode(ctx, stored, hashToken(code)); err != nil {
		return "", fmt.Errorf("create code: %w", err)
	}
	return code, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// hashToken returns the SHA-256 hash of the token as a hex string.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// truncateString truncates a string to the given max length.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
