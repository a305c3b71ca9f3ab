package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"hoodgram/internal/access"
	"hoodgram/internal/auth"
	"hoodgram/internal/config"
	"hoodgram/internal/forms"
	"hoodgram/internal/platform/metrics"
	"hoodgram/internal/profiles"
)

// Dependencies are the services the router serves. Google and Gatherer may be nil.
type Dependencies struct {
	Config   config.Config
	Auth     *auth.Service
	Profiles *profiles.Service
	Google   *auth.GoogleAuthenticator
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type recorder interface {
	guardRecorder
	operationRecorder
}

// NewRouter wires application routes and middleware using chi.
func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logger := deps.Logger

	var rec recorder = metrics.Nop{}
	if deps.Metrics != nil {
		rec = deps.Metrics
	}
	var google googleAuthenticator
	if deps.Google != nil {
		google = deps.Google
	} else {
		logger.Warn("Google sign-in disabled; AUTH_GOOGLE_CLIENT_ID or secret not set")
	}

	validator := forms.NewValidator()
	limiter := newIPRateLimiter(cfg.AuthRateLimit, logger)

	sessionHandler := NewSessionHandler(deps.Auth, deps.Profiles, validator, rec, cfg.Environment, logger)
	signUpHandler := NewSignUpHandler(deps.Auth, deps.Profiles, validator, rec, cfg.Environment, logger)
	profileHandler := NewProfileHandler(deps.Auth, deps.Profiles, validator, cfg.ServiceRoleKey, logger)
	callbackHandler := NewCallbackHandler(deps.Auth, deps.Profiles, rec, cfg.Environment, logger)
	oauthHandler := NewOAuthHandler(deps.Auth, google, deps.Auth, deps.Profiles, cfg.SiteURL, cfg.Environment, logger)
	pages := NewPageHandler(deps.Profiles, logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(newSlogMiddleware(logger))
	r.Use(newSecurityHeadersMiddleware(cfg.Environment))
	r.Use(newSessionMiddleware(deps.Auth, logger))
	r.Use(newRouteGuard(deps.Profiles, rec, logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"environment": cfg.Environment,
		})
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Get(access.CallbackPath, callbackHandler.Handle)
	r.Route("/auth/v1", func(r chi.Router) {
		r.Get("/authorize", oauthHandler.Authorize)
		r.Get("/callback", oauthHandler.Callback)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/create-initial-profile", profileHandler.Bootstrap)
		r.With(requireSession).Put("/profile", profileHandler.Complete)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(limiter.Middleware)
				r.Post("/sign-up", signUpHandler.SignUp)
				r.Post("/sign-in", sessionHandler.SignIn)
				r.Post("/resend", signUpHandler.Resend)
			})
			r.Post("/sign-out", sessionHandler.SignOut)
			r.Post("/refresh", sessionHandler.Refresh)
			r.Get("/session", sessionHandler.Status)
			r.Get("/webmail", signUpHandler.Webmail)
			r.Get("/oauth/{provider}", oauthHandler.Start)
			r.Get("/error", pages.Render("auth-error", "error", "message"))
		})
	})

	r.Get(access.HomePath, pages.Render("home"))
	r.Get("/feed", pages.Render("feed"))
	r.Get(access.SignInPath, pages.Render("sign-in", access.RedirectedFromParam, "error", "message"))
	r.Get(access.SignUpPath, pages.Render("sign-up"))
	r.Get(access.CheckEmailPath, pages.Render("check-email", "email"))
	r.Get(access.CompleteProfilePath, pages.Render("complete-profile", "error"))

	r.NotFound(http.NotFoundHandler().ServeHTTP)

	return r
}
