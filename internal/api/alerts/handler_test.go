package alerts

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/session"
	"github.com/good-yellow-bee/alertboard/internal/storage"
)

var ann = session.Principal{UserID: "u1", Username: "ann", Email: "ann@example.com", Role: models.RoleOperator}

func setupHandler(t *testing.T) (*Handler, *feed.Hub) {
	t.Helper()

	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())

	hub := feed.NewHub(store.Alerts())
	t.Cleanup(hub.Close)

	return NewHandler(hub, Config{HeartbeatInterval: time.Hour, PingInterval: time.Hour}, nil), hub
}

func router(h *Handler, p *session.Principal) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if p != nil {
				req = req.WithContext(session.WithPrincipal(req.Context(), *p))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/alerts", h.List)
	r.Post("/alerts", h.Create)
	r.Delete("/alerts/{id}", h.Delete)
	r.Get("/alerts/stream", h.Stream)
	r.Get("/alerts/ws", h.WebSocket)
	return r
}

func post(t *testing.T, srv http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func listAlerts(t *testing.T, srv http.Handler, query string) []*models.Alert {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts"+query, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data []*models.Alert `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Data
}

func TestCreate_StoresPrincipalEmail(t *testing.T) {
	h, _ := setupHandler(t)
	srv := router(h, &ann)

	rec := post(t, srv, `{"text":"  disk full  "}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := listAlerts(t, srv, "")
	require.Len(t, got, 1)
	assert.Equal(t, "  disk full  ", got[0].Text)
	assert.Equal(t, "ann@example.com", got[0].Email)
	assert.NotEmpty(t, got[0].ID)
	require.NotNil(t, got[0].Timestamp)
}

func TestCreate_Rejections(t *testing.T) {
	h, _ := setupHandler(t)

	tests := []struct {
		name   string
		p      *session.Principal
		body   string
		status int
	}{
		{"no principal", nil, `{"text":"x"}`, http.StatusUnauthorized},
		{"blank text", &ann, `{"text":"   "}`, http.StatusBadRequest},
		{"missing text", &ann, `{}`, http.StatusBadRequest},
		{"unknown field", &ann, `{"text":"x","email":"evil@example.com"}`, http.StatusBadRequest},
		{"too long", &ann, `{"text":"` + strings.Repeat("a", models.MaxAlertTextLength+1) + `"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, router(h, tt.p), tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	assert.Empty(t, listAlerts(t, router(h, &ann), ""))
}

func TestList_EmptyIsArray(t *testing.T) {
	h, _ := setupHandler(t)
	rec := httptest.NewRecorder()
	router(h, &ann).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts", nil))
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestList_Limit(t *testing.T) {
	h, _ := setupHandler(t)
	srv := router(h, &ann)
	for _, text := range []string{"a", "b", "c"} {
		require.Equal(t, http.StatusCreated, post(t, srv, `{"text":"`+text+`"}`).Code)
	}

	assert.Len(t, listAlerts(t, srv, "?limit=2"), 2)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDelete(t *testing.T) {
	h, _ := setupHandler(t)
	srv := router(h, &ann)
	require.Equal(t, http.StatusCreated, post(t, srv, `{"text":"gone soon"}`).Code)
	id := listAlerts(t, srv, "")[0].ID

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/alerts/"+id, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/alerts/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// readEvent returns the next SSE event name and data.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && event != "":
			return event, data
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStream_SnapshotsOverSSE(t *testing.T) {
	h, hub := setupHandler(t)
	srv := httptest.NewServer(router(h, &ann))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/alerts/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	r := bufio.NewReader(resp.Body)

	event, data := readEvent(t, r)
	assert.Equal(t, "snapshot", event)
	assert.Equal(t, "[]", data)

	require.NoError(t, hub.Append(context.Background(), feed.CollectionAlerts, feed.NewAlert{Text: "cpu hot", Email: "bob@example.com"}))

	event, data = readEvent(t, r)
	assert.Equal(t, "snapshot", event)
	var alerts []*models.Alert
	require.NoError(t, json.Unmarshal([]byte(data), &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, "cpu hot", alerts[0].Text)
	assert.Equal(t, "bob@example.com", alerts[0].Email)
}

func TestStream_MaxDuration(t *testing.T) {
	h, _ := setupHandler(t)
	h.cfg.MaxStreamDuration = 100 * time.Millisecond
	srv := httptest.NewServer(router(h, &ann))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/alerts/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	r := bufio.NewReader(resp.Body)

	event, _ := readEvent(t, r)
	require.Equal(t, "snapshot", event)

	event, data := readEvent(t, r)
	assert.Equal(t, "close", event)
	assert.JSONEq(t, `{"reason":"max_duration"}`, data)
}

func TestWebSocket_Frames(t *testing.T) {
	h, hub := setupHandler(t)
	srv := httptest.NewServer(router(h, &ann))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/alerts/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "snapshot", f.Kind)
	assert.Empty(t, f.Alerts)

	require.NoError(t, hub.Append(context.Background(), feed.CollectionAlerts, feed.NewAlert{Text: "first", Email: "a@example.com"}))
	require.NoError(t, hub.Append(context.Background(), feed.CollectionAlerts, feed.NewAlert{Text: "second", Email: "a@example.com"}))

	// Latest wins: keep reading until the snapshot holding both arrives.
	for len(f.Alerts) < 2 {
		require.NoError(t, conn.ReadJSON(&f))
	}
	assert.Equal(t, "second", f.Alerts[0].Text)
	assert.Equal(t, "first", f.Alerts[1].Text)
}
