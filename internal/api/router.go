package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/alertboard/internal/api/alerts"
	"github.com/good-yellow-bee/alertboard/internal/api/auth"
	"github.com/good-yellow-bee/alertboard/internal/api/middleware"
	"github.com/good-yellow-bee/alertboard/internal/api/users"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	jwtService := auth.NewJWTService(s.config.JWTSecret, s.config.AccessTokenTTL)
	ips := middleware.NewIPResolver(s.config.TrustedProxies)

	r.Use(middleware.RequestLogger(s.logger, s.config.Verbose))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			authHandler := auth.NewHandler(
				s.deps.Storage,
				jwtService,
				s.deps.Lockout,
				s.config.RefreshTokenTTL,
				s.logger,
			)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimitByIP(s.ipLimiter, ips))
				r.Post("/login", authHandler.Login)
				r.Post("/refresh", authHandler.Refresh)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.JWTAuth(jwtService, s.logger))
				r.Post("/logout", authHandler.Logout)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.JWTAuth(jwtService, s.logger))
			r.Use(middleware.RateLimitByUser(s.userLimiter, ips))

			userHandler := users.NewHandler(s.deps.Storage, s.logger)

			r.Get("/me", userHandler.Me)
			r.Put("/me/password", userHandler.ChangePassword)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/", userHandler.List)
				r.Post("/", userHandler.Create)
				r.Get("/{id}", userHandler.GetByID)
				r.Put("/{id}", userHandler.Update)
				r.Delete("/{id}", userHandler.Delete)
			})
		})

		r.Route("/alerts", func(r chi.Router) {
			alertHandler := alerts.NewHandler(s.deps.Feed, alerts.Config{
				QueryTimeout:      s.config.QueryTimeout,
				HeartbeatInterval: s.config.HeartbeatInterval,
				PingInterval:      s.config.PingInterval,
				MaxStreamDuration: s.config.StreamMaxDuration,
			}, s.logger)

			// The browser UI streams with its session cookie. Writes stay
			// bearer-only since /api/v1 carries no CSRF protection.
			r.Group(func(r chi.Router) {
				r.Use(middleware.JWTOrSessionAuth(jwtService, s.deps.Sessions, s.logger))
				r.Get("/stream", alertHandler.Stream)
				r.Get("/ws", alertHandler.WebSocket)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.JWTAuth(jwtService, s.logger))
				r.Use(middleware.RateLimitByUser(s.userLimiter, ips))
				r.Get("/", alertHandler.List)
				r.With(middleware.RequirePoster).Post("/", alertHandler.Create)
				r.With(middleware.RequireAdmin).Delete("/{id}", alertHandler.Delete)
			})
		})
	})

	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	if s.deps.Web != nil {
		r.Mount("/", s.deps.Web)
	}

	return r
}
