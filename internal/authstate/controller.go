// Package authstate keeps the client-side view of who is signed in and
// whether their profile is complete, and routes the user accordingly.
package authstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"hoodgram/internal/access"
	"hoodgram/internal/auth"
	"hoodgram/internal/forms"
	"hoodgram/internal/platform/metrics"
	"hoodgram/internal/profiles"
)

const (
	defaultAttempts = 5
	defaultInterval = 500 * time.Millisecond
	inboxSize       = 64
)

// ErrStopped is returned by Settle once the controller has stopped.
var ErrStopped = errors.New("auth state controller stopped")

// State is the controller's lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticatedComplete
	StateAuthenticatedIncomplete
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "LOADING"
	case StateAuthenticatedComplete:
		return "AUTHENTICATED_COMPLETE"
	case StateAuthenticatedIncomplete:
		return "AUTHENTICATED_INCOMPLETE"
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	default:
		return "UNINITIALIZED"
	}
}

// Provider is the part of the credential provider the controller uses.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (auth.SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error)
	SignInWithOAuth(ctx context.Context, provider, callbackURL string) (string, error)
	Resend(ctx context.Context, kind, email string) error
	SignOut(ctx context.Context, token string) error
	OnSessionChange(fn func(auth.Event)) func()
}

// ProfileStore reads and writes profiles.
type ProfileStore interface {
	Get(ctx context.Context, userID uuid.UUID) (profiles.Profile, error)
	CreateInitial(ctx context.Context, in profiles.InitialInput) (profiles.Profile, bool, error)
	Complete(ctx context.Context, userID uuid.UUID, in profiles.Completion) (profiles.Profile, error)
}

// Navigator is the client's router.
type Navigator interface {
	Path() string
	Navigate(target string)
}

// Recorder receives controller metrics.
type Recorder interface {
	RecordTransition(state string)
	RecordProfilePoll(attempts int, outcome string)
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	State           State
	User            *User
	IsLoading       bool
	IsAuthenticated bool
}

type envelope struct {
	event   auth.Event
	barrier chan struct{}
}

// Controller reconciles session events with the profile store. Events are
// handled one at a time by the goroutine started in Start.
type Controller struct {
	provider  Provider
	profiles  ProfileStore
	nav       Navigator
	validator *forms.Validator
	logger    *slog.Logger
	recorder  Recorder
	attempts  int
	interval  time.Duration

	inbox     chan envelope
	done      chan struct{}
	startOnce sync.Once

	mu      sync.RWMutex
	state   State
	user    *User
	session *auth.Session
}

// Option customises a Controller.
type Option func(*Controller)

// WithRetry sets how many profile lookups follow a sign-in and the pause between them.
func WithRetry(attempts int, interval time.Duration) Option {
	return func(c *Controller) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if interval >= 0 {
			c.interval = interval
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

func WithValidator(v *forms.Validator) Option {
	return func(c *Controller) { c.validator = v }
}

// New creates a Controller in the UNINITIALIZED state.
func New(provider Provider, store ProfileStore, nav Navigator, opts ...Option) *Controller {
	c := &Controller{
		provider: provider,
		profiles: store,
		nav:      nav,
		logger:   slog.Default(),
		recorder: metrics.Nop{},
		attempts: defaultAttempts,
		interval: defaultInterval,
		inbox:    make(chan envelope, inboxSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.validator == nil {
		c.validator = forms.NewValidator()
	}
	return c
}

// Start subscribes to session changes and consumes them until ctx is done.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		unsubscribe := c.provider.OnSessionChange(c.Deliver)
		go func() {
			defer close(c.done)
			defer unsubscribe()
			c.run(ctx)
		}()
	})
}

// Done is closed when the consumer goroutine has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Deliver queues ev. It is safe to call from any goroutine and drops the
// event once the controller has stopped.
func (c *Controller) Deliver(ev auth.Event) {
	select {
	case c.inbox <- envelope{event: ev}:
	case <-c.done:
	}
}

// Settle waits until every event delivered before the call has been handled.
func (c *Controller) Settle(ctx context.Context) error {
	barrier := make(chan struct{})
	select {
	case c.inbox <- envelope{barrier: barrier}:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-barrier:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		State:     c.state,
		IsLoading: c.state == StateUninitialized || c.state == StateLoading,
	}
	if c.user != nil {
		u := *c.user
		snap.User = &u
		snap.IsAuthenticated = true
	}
	return snap
}

// Session returns the session behind the current user, if any.
func (c *Controller) Session() *auth.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

func (c *Controller) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.inbox:
			if env.barrier != nil {
				close(env.barrier)
				continue
			}
			c.handle(ctx, env.event)
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev auth.Event) {
	c.logger.Debug("auth event", "kind", ev.Kind, "has_session", ev.Session != nil)

	switch ev.Kind {
	case auth.EventInitialSession:
		if ev.Session == nil {
			c.settle(StateUnauthenticated, nil, nil)
			return
		}
		// A restored session is confirmed by the SIGNED_IN that follows.
		c.setLoading(ev.Session)
	case auth.EventSignedIn, auth.EventTokenRefreshed, auth.EventUserUpdated:
		if ev.Session == nil {
			c.settle(StateUnauthenticated, nil, nil)
			return
		}
		c.reconcile(ctx, ev.Session)
	case auth.EventSignedOut:
		c.settle(StateUnauthenticated, nil, nil)
	default:
		c.logger.Debug("ignoring auth event", "kind", ev.Kind)
	}
}

func (c *Controller) reconcile(ctx context.Context, session *auth.Session) {
	c.setLoading(session)

	profile, err := c.lookupProfile(ctx, session.UserID)
	if err != nil && ctx.Err() != nil {
		c.logger.Debug("profile lookup abandoned", "user_id", session.UserID, "error", err)
		return
	}
	if err != nil {
		c.logger.Error("profile lookup failed", "user_id", session.UserID, "error", err)
		c.settle(StateUnauthenticated, nil, nil)
		return
	}

	user := NewUser(session, profile)
	state := StateAuthenticatedIncomplete
	if profile != nil && profile.Complete() {
		state = StateAuthenticatedComplete
	}
	c.settle(state, &user, session)
}

// lookupProfile polls for the profile row, which may lag behind sign-up.
// A nil profile with nil error means it never became visible.
func (c *Controller) lookupProfile(ctx context.Context, userID uuid.UUID) (*profiles.Profile, error) {
	for attempt := 1; ; attempt++ {
		p, err := c.profiles.Get(ctx, userID)
		if err == nil {
			c.recorder.RecordProfilePoll(attempt, "found")
			return &p, nil
		}
		if !errors.Is(err, profiles.ErrNotFound) {
			c.recorder.RecordProfilePoll(attempt, "error")
			return nil, err
		}
		if attempt >= c.attempts {
			c.recorder.RecordProfilePoll(attempt, "exhausted")
			c.logger.Warn("profile not visible after retries, treating as incomplete", "user_id", userID, "attempts", attempt)
			return nil, nil
		}

		timer := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Controller) setLoading(session *auth.Session) {
	c.mu.Lock()
	c.state = StateLoading
	c.session = session
	c.mu.Unlock()
}

func (c *Controller) settle(state State, user *User, session *auth.Session) {
	c.mu.Lock()
	c.state = state
	c.user = user
	c.session = session
	c.mu.Unlock()

	c.recorder.RecordTransition(state.String())
	c.logger.Debug("auth state settled", "state", state)
	c.route(state)
}

func (c *Controller) route(state State) {
	in := access.Input{Path: c.nav.Path()}
	switch state {
	case StateAuthenticatedComplete:
		in.Authenticated = true
		in.Profile = access.ProfileComplete
	case StateAuthenticatedIncomplete:
		in.Authenticated = true
	}

	if action := access.Decide(in); action.Kind == access.Redirect {
		c.logger.Debug("navigating", "from", in.Path, "to", action.Target)
		c.nav.Navigate(action.Target)
	}
}
