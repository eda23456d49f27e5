// Package api adapts the transport-agnostic core (login/refresh/logout,
// session management, the Policy Decision Point, and the JWKS export) to
// HTTP. Handlers decode the request, call the core service, and map the
// closed error-kind taxonomy to status codes; no business logic lives
// here.
package api

import (
	"log/slog"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	customMiddleware "github.com/lavente-auth/authcore/internal/api/middleware"
	"github.com/lavente-auth/authcore/internal/auth"
	"github.com/lavente-auth/authcore/internal/keymanager"
	"github.com/lavente-auth/authcore/internal/pdp"
	"github.com/lavente-auth/authcore/internal/rotation"
	"github.com/lavente-auth/authcore/internal/session"
	"github.com/lavente-auth/authcore/internal/token"
	"github.com/lavente-auth/authcore/internal/user"
)

// Server bundles the chi router with every dependency its handlers call
// into. Nothing outside this package holds business logic.
type Server struct {
	Router   *chi.Mux
	Pool     *pgxpool.Pool
	Auth     *auth.Service
	Rotation *rotation.Engine
	PDP      *pdp.PDP
	Sessions session.Store
	Users    user.Repository
	Keys     *keymanager.Manager
	Tokens   *token.Service
	Logger   *slog.Logger
}

// NewServer wires the full HTTP surface: middleware stack, then the
// public and session-authenticated route groups.
func NewServer(pool *pgxpool.Pool, authService *auth.Service, rotationEngine *rotation.Engine, decisionPoint *pdp.PDP, sessions session.Store, users user.Repository, keys *keymanager.Manager, tokens *token.Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	r.Use(sentryHandler.Handle)

	r.Use(customMiddleware.RequestLogger)
	r.Use(customMiddleware.PanicRecovery)

	limiter := customMiddleware.NewIPRateLimiter(5, 10)
	r.Use(limiter.Middleware)

	requireAuth := customMiddleware.AuthMiddleware(tokens)

	s := &Server{
		Router:   r,
		Pool:     pool,
		Auth:     authService,
		Rotation: rotationEngine,
		PDP:      decisionPoint,
		Sessions: sessions,
		Users:    users,
		Keys:     keys,
		Tokens:   tokens,
		Logger:   log,
	}

	r.Get("/health", s.HealthHandler())
	r.Get("/.well-known/jwks.json", s.JWKSHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.LoginHandler())
		r.Post("/auth/refresh", s.RefreshHandler())

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Post("/auth/logout", s.LogoutHandler())
			r.Get("/auth/sessions", s.ListSessionsHandler())
			r.Delete("/auth/sessions/{id}", s.RevokeSessionHandler())
			r.Post("/auth/step-up", s.StepUpHandler())
			r.Post("/auth/mfa/enroll", s.StartMFAEnrollmentHandler())
			r.Post("/auth/mfa/enroll/confirm", s.CompleteMFAEnrollmentHandler())
			r.Post("/authorize", s.AuthorizeHandler())
		})
	})

	return s
}
