package api

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

	"github.com/good-yellow-bee/alertboard/internal/api/auth"
	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/session"
	"github.com/good-yellow-bee/alertboard/internal/storage"
)

const testPassword = "TestPassword123!"

// testServer creates a server over a temporary SQLite database and an
// in-process feed.
func testServer(t *testing.T) (*Server, storage.Storage, *feed.Hub) {
	t.Helper()

	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "api.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate storage: %v", err)
	}

	hub := feed.NewHub(store.Alerts())
	t.Cleanup(hub.Close)

	cfg := &Config{
		Address:          ":0",
		JWTSecret:        []byte("test-jwt-secret-that-is-32-bytes+"),
		RateLimitPerIP:   100,
		RateLimitPerUser: 100,
	}
	srv, err := New(cfg, Deps{Storage: store, Feed: hub})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	t.Cleanup(srv.close)

	return srv, store, hub
}

// createTestUser creates a user in the database for testing
func createTestUser(t *testing.T, store storage.Storage, username string, role models.Role) *models.User {
	t.Helper()

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := models.NewUser(username, username+"@test.com", role)
	user.ID = "test-" + username
	user.PasswordHash = hash
	if err := store.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func do(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, srv *Server, username string) string {
	t.Helper()
	rec := do(t, srv, "POST", "/api/v1/auth/login", "", `{"username":"`+username+`","password":"`+testPassword+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status = %d; body: %s", username, rec.Code, rec.Body.String())
	}
	var resp struct {
		Data auth.LoginResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Data.AccessToken
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := testServer(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := do(t, srv, "GET", path, "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want %d; body: %s", path, rec.Code, http.StatusOK, rec.Body.String())
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Deps{}); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(&Config{JWTSecret: []byte("short")}, Deps{}); err == nil {
		t.Error("expected error for missing storage")
	}
}

func TestAlerts_RequireAuth(t *testing.T) {
	srv, _, _ := testServer(t)

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/v1/alerts"},
		{"POST", "/api/v1/alerts"},
		{"GET", "/api/v1/alerts/stream"},
		{"DELETE", "/api/v1/alerts/x"},
	} {
		rec := do(t, srv, tc.method, tc.path, "", `{"text":"x"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want %d", tc.method, tc.path, rec.Code, http.StatusUnauthorized)
		}
	}

	rec := do(t, srv, "GET", "/api/v1/alerts", "not-a-jwt", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid token: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAlerts_RolePermissions(t *testing.T) {
	srv, store, hub := testServer(t)
	createTestUser(t, store, "viewer", models.RoleViewer)
	createTestUser(t, store, "operator", models.RoleOperator)
	createTestUser(t, store, "admin", models.RoleAdmin)

	viewer := login(t, srv, "viewer")
	operator := login(t, srv, "operator")
	admin := login(t, srv, "admin")

	if rec := do(t, srv, "POST", "/api/v1/alerts", viewer, `{"text":"from viewer"}`); rec.Code != http.StatusForbidden {
		t.Errorf("viewer post: status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if rec := do(t, srv, "POST", "/api/v1/alerts", operator, `{"text":"from operator"}`); rec.Code != http.StatusCreated {
		t.Fatalf("operator post: status = %d, want %d; body: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	rec := do(t, srv, "GET", "/api/v1/alerts", viewer, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("viewer list: status = %d", rec.Code)
	}
	var list struct {
		Data []*models.Alert `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].Email != "operator@test.com" {
		t.Fatalf("list = %+v, want one alert by operator@test.com", list.Data)
	}
	id := list.Data[0].ID

	if rec := do(t, srv, "DELETE", "/api/v1/alerts/"+id, operator, ""); rec.Code != http.StatusForbidden {
		t.Errorf("operator delete: status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if rec := do(t, srv, "DELETE", "/api/v1/alerts/"+id, admin, ""); rec.Code != http.StatusNoContent {
		t.Errorf("admin delete: status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	snap, err := hub.Current(context.Background(), feed.AlertsNewestFirst())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Alerts) != 0 {
		t.Errorf("alerts after delete = %d, want 0", len(snap.Alerts))
	}
}

func TestUsers_AdminOnly(t *testing.T) {
	srv, store, _ := testServer(t)
	createTestUser(t, store, "viewer", models.RoleViewer)
	createTestUser(t, store, "admin", models.RoleAdmin)

	if rec := do(t, srv, "GET", "/api/v1/users", login(t, srv, "viewer"), ""); rec.Code != http.StatusForbidden {
		t.Errorf("viewer list users: status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if rec := do(t, srv, "GET", "/api/v1/users", login(t, srv, "admin"), ""); rec.Code != http.StatusOK {
		t.Errorf("admin list users: status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec := do(t, srv, "GET", "/api/v1/users/me", login(t, srv, "viewer"), ""); rec.Code != http.StatusOK {
		t.Errorf("viewer me: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestStream_SessionCookie(t *testing.T) {
	srv, store, _ := testServer(t)
	user := createTestUser(t, store, "viewer", models.RoleViewer)

	sess, err := srv.Sessions().Create(session.FromUser(user))
	if err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/v1/alerts/stream", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.ID})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// Through the logging and metrics wrappers the stream must still flush.
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if scanner.Text() == "event: snapshot" {
			return
		}
	}
	t.Fatalf("no snapshot event: %v", scanner.Err())
}

func TestAlerts_SessionCookieCannotWrite(t *testing.T) {
	srv, store, hub := testServer(t)
	admin := createTestUser(t, store, "admin", models.RoleAdmin)
	ctx := context.Background()

	if err := hub.Append(ctx, feed.CollectionAlerts, feed.NewAlert{Text: "keep", Email: admin.Email}); err != nil {
		t.Fatal(err)
	}
	existing, err := store.Alerts().ListNewestFirst(ctx, 0)
	if err != nil || len(existing) != 1 {
		t.Fatalf("list alerts: %v (%d rows)", err, len(existing))
	}

	sess, err := srv.Sessions().Create(session.FromUser(admin))
	if err != nil {
		t.Fatal(err)
	}
	withCookie := func(method, path, body string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.ID})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{"GET", "/api/v1/alerts", ""},
		{"POST", "/api/v1/alerts", `{"text":"forged"}`},
		{"DELETE", "/api/v1/alerts/" + existing[0].ID, ""},
	}
	for _, tc := range tests {
		if code := withCookie(tc.method, tc.path, tc.body); code != http.StatusUnauthorized {
			t.Errorf("%s %s with cookie only: status = %d, want %d", tc.method, tc.path, code, http.StatusUnauthorized)
		}
	}

	after, err := store.Alerts().ListNewestFirst(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 1 || after[0].Text != "keep" {
		t.Errorf("alerts changed by cookie-only requests: %d rows", len(after))
	}
}

func TestRequestID(t *testing.T) {
	srv, _, _ := testServer(t)
	rec := do(t, srv, "GET", "/health", "", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}
