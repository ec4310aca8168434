// Package api provides the HTTP server: the REST API under /api/v1, the live
// alert streams and, when configured, the browser UI at the root.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/api/auth"
	"github.com/good-yellow-bee/alertboard/internal/api/health"
	"github.com/good-yellow-bee/alertboard/internal/api/middleware"
	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/session"
	"github.com/good-yellow-bee/alertboard/internal/storage"
)

// Config contains HTTP server configuration.
type Config struct {
	Address          string
	JWTSecret        []byte
	TrustedProxies   []string // Trusted proxy IPs/CIDRs for X-Forwarded-For
	HTTPTLSEnabled   bool
	HTTPTLSCertFile  string
	HTTPTLSKeyFile   string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	RateLimitPerIP   int // login attempts per minute
	RateLimitPerUser int // requests per minute
	LockoutThreshold int
	LockoutDuration  time.Duration
	QueryTimeout     time.Duration
	// Stream settings apply to both SSE and WebSocket subscribers.
	StreamMaxDuration time.Duration
	HeartbeatInterval time.Duration
	PingInterval      time.Duration
	Verbose           bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = 15 * time.Minute
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.RateLimitPerIP == 0 {
		c.RateLimitPerIP = 10
	}
	if c.RateLimitPerUser == 0 {
		c.RateLimitPerUser = 120
	}
	if c.LockoutThreshold == 0 {
		c.LockoutThreshold = 5
	}
	if c.LockoutDuration == 0 {
		c.LockoutDuration = 15 * time.Minute
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.StreamMaxDuration == 0 {
		c.StreamMaxDuration = 30 * time.Minute
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 25 * time.Second
	}
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Storage  storage.Storage
	Feed     feed.Backend
	Sessions *session.Store
	Lockout  *auth.LockoutTracker
	// Web is mounted at "/" when set.
	Web    http.Handler
	Logger *zap.Logger
}

// Server is the HTTP server.
type Server struct {
	config        *Config
	deps          Deps
	logger        *zap.Logger
	server        *http.Server
	healthHandler *health.Handler
	ipLimiter     *middleware.RateLimiter
	userLimiter   *middleware.RateLimiter
}

// New creates the HTTP server. Sessions and Lockout are created when not
// supplied; the caller shares them with the web UI otherwise.
func New(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if deps.Feed == nil {
		return nil, fmt.Errorf("feed backend is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT secret must be at least 32 bytes")
	}

	cfg.SetDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewStore(24 * time.Hour)
	}
	if deps.Lockout == nil {
		deps.Lockout = auth.NewLockoutTracker(cfg.LockoutThreshold, cfg.LockoutDuration)
	}

	s := &Server{
		config:        cfg,
		deps:          deps,
		logger:        deps.Logger,
		healthHandler: health.NewHandler(),
		ipLimiter:     middleware.NewRateLimiter(cfg.RateLimitPerIP),
		userLimiter:   middleware.NewRateLimiter(cfg.RateLimitPerUser),
	}
	s.healthHandler.RegisterChecker(health.NewSQLiteChecker(deps.Storage.DB()))
	s.healthHandler.RegisterChecker(health.NewFeedChecker("feed", deps.Feed))
	s.healthHandler.RegisterChecker(health.NewAlertStoreChecker(deps.Storage.Alerts()))

	s.server = &http.Server{
		Addr:        cfg.Address,
		Handler:     s.setupRouter(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: alert streams stay open up to StreamMaxDuration.
		// Non-streaming handlers bound their work with QueryTimeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.HTTPTLSEnabled {
		s.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Sessions returns the session store shared with the web UI.
func (s *Server) Sessions() *session.Store {
	return s.deps.Sessions
}

// Run starts the HTTP server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.config.Address), zap.Bool("tls", s.config.HTTPTLSEnabled))
		var err error
		if s.config.HTTPTLSEnabled {
			err = s.server.ListenAndServeTLS(s.config.HTTPTLSCertFile, s.config.HTTPTLSKeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	defer s.close()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

func (s *Server) close() {
	s.ipLimiter.Close()
	s.userLimiter.Close()
	s.deps.Lockout.Close()
	s.deps.Sessions.Close()
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a readiness check.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	s.healthHandler.RegisterChecker(c)
}
