// Package alerts serves the alert feed over HTTP: a one-off list, append,
// admin delete, and live snapshot streams over SSE and WebSocket.
package alerts

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/api/respond"
	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/session"
)

const maxCreateBody = 16 << 10

// Config holds the handler timings.
type Config struct {
	QueryTimeout      time.Duration
	HeartbeatInterval time.Duration
	PingInterval      time.Duration
	MaxStreamDuration time.Duration
}

func (c *Config) setDefaults() {
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.MaxStreamDuration == 0 {
		c.MaxStreamDuration = 30 * time.Minute
	}
}

// Handler serves the /alerts endpoints.
type Handler struct {
	backend  feed.Backend
	cfg      Config
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the alerts handler over backend.
func NewHandler(backend feed.Backend, cfg Config, logger *zap.Logger) *Handler {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// CreateRequest is the body of POST /alerts.
type CreateRequest struct {
	Text string `json:"text"`
}

// List returns the current feed, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		respond.Fail(w, respond.Validation(err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.QueryTimeout)
	defer cancel()

	q := feed.AlertsNewestFirst()
	q.Limit = limit
	snap, err := h.backend.Current(ctx, q)
	if err != nil {
		h.logger.Error("list alerts", zap.Error(err))
		respond.Fail(w, respond.ErrUnavailable)
		return
	}
	respond.OK(w, nonNil(snap.Alerts))
}

// Create appends an alert authored by the authenticated principal. The
// backend assigns the id and timestamp; neither is returned.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := session.FromContext(r.Context())
	if err != nil {
		respond.Fail(w, respond.ErrNoSession)
		return
	}

	var req CreateRequest
	if err := respond.Decode(w, r, maxCreateBody, &req); err != nil {
		respond.Fail(w, respond.BadRequest("invalid request body"))
		return
	}
	if err := validateText(req.Text); err != nil {
		respond.Fail(w, respond.Validation(err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.QueryTimeout)
	defer cancel()

	if err := h.backend.Append(ctx, feed.CollectionAlerts, feed.NewAlert{Text: req.Text, Email: p.Email}); err != nil {
		h.logger.Error("append alert", zap.String("email", p.Email), zap.Error(err))
		respond.Fail(w, respond.ErrUnavailable)
		return
	}
	respond.Created(w, map[string]string{"status": "created"})
}

// Delete removes an alert. Admin only.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respond.Fail(w, respond.BadRequest("alert id required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.QueryTimeout)
	defer cancel()

	err := h.backend.Delete(ctx, id)
	switch {
	case errors.Is(err, feed.ErrNotFound):
		respond.Fail(w, respond.NotFound("alert not found"))
	case err != nil:
		h.logger.Error("delete alert", zap.String("id", id), zap.Error(err))
		respond.Fail(w, respond.ErrInternal)
	default:
		h.logger.Info("alert deleted", zap.String("id", id), zap.String("by", principalEmail(r)))
		respond.NoContent(w)
	}
}

func principalEmail(r *http.Request) string {
	p, err := session.FromContext(r.Context())
	if err != nil {
		return ""
	}
	return p.Email
}

func nonNil(alerts []*models.Alert) []*models.Alert {
	if alerts == nil {
		return []*models.Alert{}
	}
	return alerts
}
