// Package handlers serves the browser pages: login and the alert screen.
package handlers

import (
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/api/auth"
	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/session"
	"github.com/good-yellow-bee/alertboard/internal/storage"
)

// CSRFFieldName is the form field carrying the CSRF token.
const CSRFFieldName = "csrf_token"

// Config holds page handler settings.
type Config struct {
	// SessionTTL and RememberTTL are the session lifetimes without and with
	// "remember me".
	SessionTTL  time.Duration
	RememberTTL time.Duration
	// ReadyTimeout bounds how long a page render waits for the first
	// snapshot of the feed.
	ReadyTimeout time.Duration
	// StreamURL is the SSE endpoint the alert page script listens on.
	StreamURL string
	Location  *time.Location
}

func (c *Config) setDefaults() {
	if c.SessionTTL == 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.RememberTTL == 0 {
		c.RememberTTL = 30 * 24 * time.Hour
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = 3 * time.Second
	}
	if c.StreamURL == "" {
		c.StreamURL = "/api/v1/alerts/stream"
	}
	if c.Location == nil {
		c.Location = time.Local
	}
}

// Handler serves the login and alert pages. Each alert page request mounts
// its own screen over the shared feed.
type Handler struct {
	storage  storage.Storage
	feed     feed.Collection
	sessions *session.Store
	lockout  *auth.LockoutTracker
	logger   *zap.Logger
	cfg      Config
}

// NewHandler creates the page handlers.
func NewHandler(store storage.Storage, coll feed.Collection, sessions *session.Store, lockout *auth.LockoutTracker, cfg Config, logger *zap.Logger) *Handler {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		storage:  store,
		feed:     coll,
		sessions: sessions,
		lockout:  lockout,
		logger:   logger,
		cfg:      cfg,
	}
}
