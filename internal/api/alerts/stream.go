package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/api/respond"
	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/metrics"
	"github.com/good-yellow-bee/alertboard/internal/models"
)

// Close reasons sent to stream clients.
const (
	ReasonMaxDuration        = "max_duration"
	ReasonSubscriptionFailed = "subscription_failed"
	ReasonClosed             = "closed"
)

const (
	sseRetryMillis = 3000
	wsWriteWait    = 10 * time.Second
	wsReadLimit    = 512
)

// Frame is one WebSocket message.
type Frame struct {
	Kind   string          `json:"kind"`
	Alerts []*models.Alert `json:"alerts"`
}

// closeReason explains why a subscription channel closed. An empty reason
// means the client went away.
func closeReason(clientCtx, streamCtx context.Context, sub feed.Subscription) string {
	if clientCtx.Err() != nil {
		return ""
	}
	if errors.Is(streamCtx.Err(), context.DeadlineExceeded) {
		return ReasonMaxDuration
	}
	if sub.Err() != nil {
		return ReasonSubscriptionFailed
	}
	return ReasonClosed
}

func (h *Handler) subscribe(ctx context.Context) (feed.Subscription, error) {
	return h.backend.Subscribe(ctx, feed.AlertsNewestFirst())
}

// Stream handles GET /alerts/stream. The first event is the initial
// snapshot; every later change replaces it with a full snapshot.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respond.Fail(w, &respond.Error{Code: respond.CodeInternalError, Message: "streaming not supported", Status: http.StatusInternalServerError})
		return
	}

	clientCtx := r.Context()
	ctx, cancel := context.WithTimeout(clientCtx, h.cfg.MaxStreamDuration)
	defer cancel()

	sub, err := h.subscribe(ctx)
	if err != nil {
		h.logger.Error("subscribe alerts", zap.Error(err))
		respond.Fail(w, respond.ErrUnavailable)
		return
	}
	defer sub.Stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	gauge := metrics.StreamsActive.WithLabelValues("sse")
	gauge.Inc()
	defer gauge.Dec()

	sse := NewSSEWriter(w, flusher)
	if err := sse.SendRetry(sseRetryMillis); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case snap, ok := <-sub.Snapshots():
			if !ok {
				if reason := closeReason(clientCtx, ctx, sub); reason != "" {
					if err := sub.Err(); err != nil {
						h.logger.Warn("alert stream subscription failed", zap.Error(err))
					}
					data, _ := json.Marshal(map[string]string{"reason": reason})
					_ = sse.SendEvent("close", data)
				}
				return
			}
			data, err := json.Marshal(nonNil(snap.Alerts))
			if err != nil {
				h.logger.Error("encode snapshot", zap.Error(err))
				return
			}
			if err := sse.SendEvent("snapshot", data); err != nil {
				return
			}

		case <-heartbeat.C:
			data, _ := json.Marshal(map[string]string{"timestamp": time.Now().UTC().Format(time.RFC3339)})
			if err := sse.SendEvent("heartbeat", data); err != nil {
				return
			}

		case <-ctx.Done():
			if clientCtx.Err() == nil {
				_ = sse.SendEvent("close", []byte(`{"reason":"`+ReasonMaxDuration+`"}`))
			}
			return
		}
	}
}

// WebSocket handles GET /alerts/ws. Frames carry full snapshots; inbound
// messages are discarded and only serve to detect the peer closing.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	clientCtx, clientCancel := context.WithCancel(r.Context())
	defer clientCancel()
	ctx, cancel := context.WithTimeout(clientCtx, h.cfg.MaxStreamDuration)
	defer cancel()

	go func() {
		defer clientCancel()
		conn.SetReadLimit(wsReadLimit)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	sub, err := h.subscribe(ctx)
	if err != nil {
		h.logger.Error("subscribe alerts", zap.Error(err))
		writeClose(conn, websocket.CloseInternalServerErr, ReasonSubscriptionFailed)
		return
	}
	defer sub.Stop()

	gauge := metrics.StreamsActive.WithLabelValues("websocket")
	gauge.Inc()
	defer gauge.Dec()

	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-sub.Snapshots():
			if !ok {
				reason := closeReason(clientCtx, ctx, sub)
				switch reason {
				case "":
				case ReasonSubscriptionFailed:
					h.logger.Warn("alert websocket subscription failed", zap.Error(sub.Err()))
					writeClose(conn, websocket.CloseInternalServerErr, reason)
				default:
					writeClose(conn, websocket.CloseNormalClosure, reason)
				}
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(Frame{Kind: "snapshot", Alerts: nonNil(snap.Alerts)}); err != nil {
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}

		case <-ctx.Done():
			if clientCtx.Err() == nil {
				writeClose(conn, websocket.CloseNormalClosure, ReasonMaxDuration)
			}
			return
		}
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
