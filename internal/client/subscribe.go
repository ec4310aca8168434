package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/models"
)

const remoteBackend = "remote"

// Close reasons after which the client reconnects instead of failing.
var reconnectReasons = map[string]bool{
	"max_duration": true,
}

// ErrStreamClosed is reported when the server ends a stream for a reason the
// client does not recover from.
var ErrStreamClosed = errors.New("stream closed by server")

// maxEventSize bounds a single SSE line. Snapshots carry the whole feed on
// one data line.
const maxEventSize = 64 << 20

type event struct {
	name string
	data string
	err  error
}

// Subscribe opens the SSE stream for q. The initial snapshot has been read
// when Subscribe returns. Streams the server ends on its own schedule are
// reopened transparently; other endings fail the subscription.
func (c *Client) Subscribe(ctx context.Context, q feed.Query) (feed.Subscription, error) {
	if err := q.Check(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	events, err := c.openStream(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	first, err := nextSnapshot(events, q)
	if err != nil {
		cancel()
		return nil, err
	}

	s := feed.NewStream(remoteBackend, cancel)
	s.Publish(first)
	go c.pump(ctx, s, events, q)
	return s, nil
}

// pump publishes snapshots until the stream ends or the consumer stops. The
// subscription is also stopped when ctx is done.
func (c *Client) pump(ctx context.Context, s *feed.Stream, events <-chan event, q feed.Query) {
	for {
		err := c.forward(s, events, q)
		if ctx.Err() != nil {
			s.Stop()
			return
		}

		var reconnect *reconnectError
		if !errors.As(err, &reconnect) {
			c.logger.Warn("alert stream ended", zap.Error(err))
			s.Fail(err)
			return
		}

		c.logger.Debug("reopening alert stream", zap.String("reason", reconnect.reason))
		events, err = c.openStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.Stop()
				return
			}
			s.Fail(err)
			return
		}
	}
}

type reconnectError struct{ reason string }

func (e *reconnectError) Error() string { return "stream closed: " + e.reason }

func (c *Client) forward(s *feed.Stream, events <-chan event, q feed.Query) error {
	for {
		snap, err := nextSnapshot(events, q)
		if err != nil {
			return err
		}
		if !s.Publish(snap) {
			return nil
		}
	}
}

// nextSnapshot reads events until a snapshot arrives or the stream ends.
func nextSnapshot(events <-chan event, q feed.Query) (feed.Snapshot, error) {
	for ev := range events {
		if ev.err != nil {
			return feed.Snapshot{}, fmt.Errorf("read alert stream: %w", ev.err)
		}
		switch ev.name {
		case "snapshot":
			var alerts []*models.Alert
			if err := json.Unmarshal([]byte(ev.data), &alerts); err != nil {
				return feed.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
			}
			if q.Limit > 0 && len(alerts) > q.Limit {
				alerts = alerts[:q.Limit]
			}
			return feed.Snapshot{Alerts: alerts, ReadAt: time.Now()}, nil
		case "close":
			var body struct {
				Reason string `json:"reason"`
			}
			_ = json.Unmarshal([]byte(ev.data), &body)
			if reconnectReasons[body.Reason] {
				return feed.Snapshot{}, &reconnectError{reason: body.Reason}
			}
			return feed.Snapshot{}, fmt.Errorf("%w: %s", ErrStreamClosed, body.Reason)
		}
	}
	return feed.Snapshot{}, fmt.Errorf("%w: connection lost", ErrStreamClosed)
}

// openStream connects to the SSE endpoint and parses events in the
// background. The channel is closed when the connection ends.
func (c *Client) openStream(ctx context.Context) (<-chan event, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/alerts/stream", nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open alert stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	events := make(chan event)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64<<10), maxEventSize)
		readEvents(ctx, sc, events)
	}()
	return events, nil
}

// readEvents parses the text/event-stream framing: "field: value" lines,
// events separated by a blank line, comments starting with ':'. A read
// failure other than EOF is sent as a final event carrying err.
func readEvents(ctx context.Context, sc *bufio.Scanner, out chan<- event) {
	var ev event
	var data []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if ev.name != "" || len(data) > 0 {
				if ev.name == "" {
					ev.name = "message"
				}
				ev.data = strings.Join(data, "\n")
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			ev, data = event{}, nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.name = value
		case "data":
			data = append(data, value)
		}
	}
	if err := sc.Err(); err != nil {
		select {
		case out <- event{err: err}:
		case <-ctx.Done():
		}
	}
}
