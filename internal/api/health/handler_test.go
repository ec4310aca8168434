package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Name() string                  { return s.name }
func (s stubChecker) Check(_ context.Context) error { return s.err }

func readyBody(t *testing.T, h *Handler) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body struct {
		Data Response `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body.Data
}

func TestReady_AllHealthy(t *testing.T) {
	h := NewHandler()
	h.RegisterChecker(stubChecker{name: "sqlite"})
	h.RegisterChecker(stubChecker{name: "feed"})

	code, body := readyBody(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, map[string]string{"sqlite": "ok", "feed": "ok"}, body.Checks)
}

func TestReady_OneFailing(t *testing.T) {
	h := NewHandler()
	h.RegisterChecker(stubChecker{name: "sqlite"})
	h.RegisterChecker(stubChecker{name: "feed", err: errors.New("unreachable")})

	code, body := readyBody(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "unreachable", body.Checks["feed"])
	assert.Equal(t, "ok", body.Checks["sqlite"])
}

func TestLiveAndHealth(t *testing.T) {
	h := NewHandler()
	rec := httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"live"`)

	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestSQLiteChecker_NilDB(t *testing.T) {
	assert.Error(t, NewSQLiteChecker(nil).Check(context.Background()))
	assert.Error(t, NewFeedChecker("feed", nil).Check(context.Background()))
}

type countStub struct {
	n   int64
	err error
}

func (c countStub) Count(_ context.Context) (int64, error) { return c.n, c.err }

func TestAlertStoreChecker(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, NewAlertStoreChecker(countStub{n: 3}).Check(ctx))
	assert.EqualError(t, NewAlertStoreChecker(countStub{err: errors.New("locked")}).Check(ctx), "locked")
	assert.Error(t, NewAlertStoreChecker(nil).Check(ctx))

	h := NewHandler()
	h.RegisterChecker(NewAlertStoreChecker(countStub{n: 1}))
	code, body := readyBody(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Checks["alerts"])
}
