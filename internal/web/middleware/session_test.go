package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/session"
)

func newStore(t *testing.T) *session.Store {
	t.Helper()
	store := session.NewStore(time.Hour)
	t.Cleanup(store.Close)
	return store
}

func TestRequireSession_NoSession(t *testing.T) {
	mw := RequireSession(newStore(t))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/alerts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("redirect = %q, want /login", loc)
	}
}

func TestRequireSession_ValidSession(t *testing.T) {
	store := newStore(t)
	sess, err := store.Create(session.Principal{UserID: "user-1", Username: "ann", Email: "ann@example.com", Role: models.RoleOperator})
	if err != nil {
		t.Fatal(err)
	}

	var got session.Principal
	handler := RequireSession(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err = session.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/alerts", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.ID})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if err != nil {
		t.Fatalf("principal missing from context: %v", err)
	}
	if got.Email != "ann@example.com" {
		t.Errorf("email = %q, want ann@example.com", got.Email)
	}
}

func TestRequireSession_UnknownCookieCleared(t *testing.T) {
	handler := RequireSession(newStore(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/alerts", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "stale"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("expected expired session cookie, got %v", cookies)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		role models.Role
		want int
	}{
		{models.RoleViewer, http.StatusForbidden},
		{models.RoleOperator, http.StatusOK},
		{models.RoleAdmin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			handler := RequireRole(models.RoleOperator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("POST", "/alerts", nil)
			p := session.Principal{UserID: "u", Email: "u@example.com", Role: tt.role}
			req = req.WithContext(session.WithPrincipal(req.Context(), p))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireRole_NoPrincipal(t *testing.T) {
	handler := RequireRole(models.RoleViewer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/alerts", nil))
	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusFound)
	}
}
