package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/metrics"
	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/storage"
)

const hubBackend = "hub"

var _ Backend = (*Hub)(nil)

// Hub is the self-hosted Collection: alerts live in SQLite and every change
// is fanned out in-process as a fresh snapshot to each subscriber.
type Hub struct {
	alerts storage.AlertRepository
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	// mu serializes snapshot loads with publishes so subscribers observe
	// snapshots in commit order.
	mu     sync.Mutex
	subs   map[*Stream]Query
	closed bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub logger.
func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock overrides the server clock used for timestamps.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// NewHub creates a hub over the alert repository.
func NewHub(alerts storage.AlertRepository, opts ...HubOption) *Hub {
	h := &Hub{
		alerts: alerts,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		subs:   make(map[*Stream]Query),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe opens a live query. The initial snapshot is published before
// Subscribe returns. The subscription is also stopped when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, q Query) (Subscription, error) {
	if err := q.Check(); err != nil {
		return nil, err
	}

	var s *Stream
	s = NewStream(hubBackend, func() { h.remove(s) })

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.finish(ErrClosed)
		return nil, ErrClosed
	}
	alerts, err := h.alerts.ListNewestFirst(ctx, 0)
	if err != nil {
		h.mu.Unlock()
		s.Fail(err)
		return nil, fmt.Errorf("load initial snapshot: %w", err)
	}
	s.Publish(snapshotFor(alerts, q, h.now()))
	h.subs[s] = q
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.Done():
		}
	}()

	h.logger.Debug("subscription opened", zap.Int("subscribers", h.Subscribers()))
	return s, nil
}

// Append stores a new alert with a server-assigned id and timestamp and
// broadcasts the resulting snapshot.
func (h *Hub) Append(ctx context.Context, collection string, na NewAlert) error {
	if collection != CollectionAlerts {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}

	ts := h.now().UTC()
	alert := &models.Alert{
		ID:        h.newID(),
		Text:      na.Text,
		Email:     na.Email,
		Timestamp: &ts,
	}
	if err := h.alerts.Create(ctx, alert); err != nil {
		metrics.FeedAppendsTotal.WithLabelValues(hubBackend, "error").Inc()
		return fmt.Errorf("append alert: %w", err)
	}
	metrics.FeedAppendsTotal.WithLabelValues(hubBackend, "ok").Inc()

	h.logger.Info("alert appended", zap.String("id", alert.ID), zap.String("email", alert.Email))
	h.broadcast(ctx)
	return nil
}

// Delete removes an alert and broadcasts the resulting snapshot.
func (h *Hub) Delete(ctx context.Context, id string) error {
	if err := h.alerts.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("delete alert: %w", err)
	}
	h.logger.Info("alert deleted", zap.String("id", id))
	h.broadcast(ctx)
	return nil
}

// Current returns the present contents of the collection for q without
// opening a subscription.
func (h *Hub) Current(ctx context.Context, q Query) (Snapshot, error) {
	if err := q.Check(); err != nil {
		return Snapshot{}, err
	}
	alerts, err := h.alerts.ListNewestFirst(ctx, q.Limit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return Snapshot{Alerts: alerts, ReadAt: h.now()}, nil
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops every open subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Stream, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Stop()
	}
}

func (h *Hub) broadcast(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.subs) == 0 {
		return
	}

	// The write already committed; a canceled request must not suppress fan-out.
	alerts, err := h.alerts.ListNewestFirst(context.WithoutCancel(ctx), 0)
	if err != nil {
		h.logger.Error("load snapshot for broadcast", zap.Error(err))
		return
	}

	now := h.now()
	for s, q := range h.subs {
		s.Publish(snapshotFor(alerts, q, now))
	}
}

func (h *Hub) remove(s *Stream) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// snapshotFor gives each subscriber its own copy so consumers cannot alias.
func snapshotFor(alerts []*models.Alert, q Query, readAt time.Time) Snapshot {
	if q.Limit > 0 && len(alerts) > q.Limit {
		alerts = alerts[:q.Limit]
	}
	out := models.CloneAlerts(alerts)
	if out == nil {
		out = []*models.Alert{}
	}
	return Snapshot{Alerts: out, ReadAt: readAt}
}
