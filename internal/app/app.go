// Package app assembles the stores, providers and services shared by the API
// server and the terminal shell.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"hoodgram/internal/auth"
	"hoodgram/internal/authstate"
	"hoodgram/internal/config"
	transporthttp "hoodgram/internal/http"
	"hoodgram/internal/platform/cache"
	"hoodgram/internal/platform/database"
	"hoodgram/internal/platform/events"
	"hoodgram/internal/platform/metrics"
	"hoodgram/internal/platform/migrate"
	"hoodgram/internal/profiles"
)

// Seeder fills the in-memory stores at startup. It creates users through
// users and returns the profiles to preload.
type Seeder func(ctx context.Context, users auth.Repository, hasher auth.PasswordHasher) ([]profiles.Profile, error)

type options struct {
	mailer        auth.Mailer
	seeder        Seeder
	hasher        auth.PasswordHasher
	skipGoogle    bool
	processMetric bool
}

// Option customises New.
type Option func(*options)

// WithMailer replaces the log mailer used for confirmation emails.
func WithMailer(m auth.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

// WithSeeder runs s when the in-memory store is selected.
func WithSeeder(s Seeder) Option {
	return func(o *options) { o.seeder = s }
}

// WithHasher overrides the bcrypt hasher.
func WithHasher(h auth.PasswordHasher) Option {
	return func(o *options) { o.hasher = h }
}

// WithoutGoogle skips OIDC discovery. The shell never serves the provider leg.
func WithoutGoogle() Option {
	return func(o *options) { o.skipGoogle = true }
}

// WithRuntimeMetrics registers the Go runtime and process collectors.
func WithRuntimeMetrics() Option {
	return func(o *options) { o.processMetric = true }
}

// App holds the wired services.
type App struct {
	Config   config.Config
	Auth     *auth.Service
	Profiles *profiles.Service
	Google   *auth.GoogleAuthenticator
	Metrics  *metrics.Collector
	Registry *prometheus.Registry

	logger  *slog.Logger
	closers []func() error
}

// New connects the configured backends and builds the services. Call Close
// when done.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	o := options{hasher: auth.NewBcryptHasher(0), mailer: auth.NewLogMailer(logger)}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, logger: logger, Registry: prometheus.NewRegistry()}
	if o.processMetric {
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	a.Metrics = metrics.NewCollector(a.Registry)

	authRepo, profileRepo, err := a.buildRepositories(ctx, o)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	profileOpts := []profiles.Option{profiles.WithLogger(logger)}
	profileCache, err := a.buildCache(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if profileCache != nil {
		profileOpts = append(profileOpts, profiles.WithCache(profileCache))
	}
	a.Profiles = profiles.NewService(profileRepo, profileOpts...)

	var mirror auth.EventMirror
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, publisher.Close)
		mirror = publisher
		logger.Info("mirroring session events to kafka", "topic", cfg.KafkaTopic)
	}

	authOpts := []auth.Option{
		auth.WithHasher(o.hasher),
		auth.WithMailer(o.mailer),
		auth.WithHub(auth.NewHub(mirror, logger)),
		auth.WithSiteURL(cfg.SiteURL),
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithAutoConfirm(cfg.AutoConfirm),
	}
	if cfg.OAuthEnabled() {
		authOpts = append(authOpts, auth.WithOAuthProviders("google"))
	}
	a.Auth = auth.NewService(authRepo, auth.NewTokenSigner(cfg.JWTSecret), authOpts...)

	if cfg.OAuthEnabled() && !o.skipGoogle {
		google, err := auth.NewGoogleAuthenticator(ctx, auth.GoogleConfig{
			ClientID:       cfg.GoogleClientID,
			ClientSecret:   cfg.GoogleClientSecret,
			RedirectURL:    cfg.GoogleRedirectURL(),
			AllowedDomains: cfg.GoogleAllowedDomains,
			AllowedEmails:  cfg.GoogleAllowedEmails,
		})
		switch {
		case err == nil:
			a.Google = google
		case cfg.IsDevelopment():
			logger.Warn("google sign-in unavailable", "error", err)
		default:
			_ = a.Close()
			return nil, fmt.Errorf("google authenticator: %w", err)
		}
	}

	return a, nil
}

func (a *App) buildRepositories(ctx context.Context, o options) (auth.Repository, profiles.Repository, error) {
	if a.Config.UseInMemoryStore() {
		a.logger.Info("using in-memory repository")
		users := auth.NewInMemoryRepository()
		var seeded []profiles.Profile
		if o.seeder != nil {
			var err error
			if seeded, err = o.seeder(ctx, users, o.hasher); err != nil {
				return nil, nil, fmt.Errorf("seed: %w", err)
			}
		}
		return users, profiles.NewInMemoryRepository(seeded), nil
	}

	db, err := database.NewPostgres(ctx, a.Config.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, db.Close)

	if err := migrate.Apply(ctx, db, a.logger); err != nil {
		return nil, nil, err
	}

	a.logger.Info("connected to postgres")
	return auth.NewPostgresRepository(db), profiles.NewPostgresRepository(db), nil
}

func (a *App) buildCache(ctx context.Context) (profiles.Cache, error) {
	ttl := a.Config.ProfileCacheTTL
	if ttl <= 0 {
		return nil, nil
	}
	if a.Config.RedisURL == "" {
		return profiles.NewMemoryCache(ttl), nil
	}

	client, err := cache.Connect(ctx, a.Config.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	a.logger.Info("caching profiles in redis", "ttl", ttl.String())
	return profiles.NewRedisCache(client, ttl), nil
}

// Router returns the HTTP handler for the API server.
func (a *App) Router() http.Handler {
	return transporthttp.NewRouter(transporthttp.Dependencies{
		Config:   a.Config,
		Auth:     a.Auth,
		Profiles: a.Profiles,
		Google:   a.Google,
		Metrics:  a.Metrics,
		Gatherer: a.Registry,
		Logger:   a.logger,
	})
}

// NewController builds an auth state controller that drives nav.
func (a *App) NewController(nav authstate.Navigator) *authstate.Controller {
	return authstate.New(a.Auth, a.Profiles, nav,
		authstate.WithRetry(a.Config.ProfilePollAttempts, a.Config.ProfilePollInterval),
		authstate.WithLogger(a.logger),
		authstate.WithRecorder(a.Metrics),
	)
}

// RunCleanup removes expired sessions and codes every interval until ctx is done.
func (a *App) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := a.Auth.CleanupExpiredSessions(ctx)
			if err != nil {
				a.logger.Error("session cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				a.logger.Info("expired sessions removed", "count", removed)
			}
		}
	}
}

// Close releases backend connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
