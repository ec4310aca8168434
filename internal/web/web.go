// Package web serves the browser UI: a login page and the live alert screen.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/api/auth"
	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/session"
	"github.com/good-yellow-bee/alertboard/internal/storage"
	"github.com/good-yellow-bee/alertboard/internal/web/handlers"
)

//go:embed static
var staticFS embed.FS

// Config configures the web UI.
type Config struct {
	CSRFKey          []byte
	UseSecureCookies bool
	// TrustedOrigins lists extra origins allowed to post forms over HTTPS.
	TrustedOrigins []string
	Pages          handlers.Config
}

type Server struct {
	handler  *handlers.Handler
	sessions *session.Store
	cfg      Config
	logger   *zap.Logger
}

// NewServer creates the web UI. The session store is shared with the API so
// the page script can authenticate its stream with the session cookie.
func NewServer(cfg Config, store storage.Storage, coll feed.Collection, sessions *session.Store, lockout *auth.LockoutTracker, logger *zap.Logger) (*Server, error) {
	if len(cfg.CSRFKey) != 32 {
		return nil, fmt.Errorf("csrf key must be 32 bytes, got %d", len(cfg.CSRFKey))
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		handler:  handlers.NewHandler(store, coll, sessions, lockout, cfg.Pages, logger),
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

func (s *Server) StaticFS() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The embedded directory is fixed at build time.
		panic(fmt.Sprintf("failed to create static FS: %v", err))
	}
	return http.FileServer(http.FS(sub))
}

func (s *Server) Sessions() *session.Store {
	return s.sessions
}
