package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/storage"
)

const testPassword = "MyP@ssw0rd123!"

func setupHandler(t *testing.T) *Handler {
	t.Helper()

	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())

	hash, err := HashPassword(testPassword)
	require.NoError(t, err)
	user := models.NewUser("ann", "ann@example.com", models.RoleOperator)
	user.ID = uuid.New().String()
	user.PasswordHash = hash
	require.NoError(t, store.Users().Create(context.Background(), user))

	lockout := NewLockoutTracker(3, time.Minute)
	t.Cleanup(lockout.Close)

	return NewHandler(store, NewJWTService(testSecret, time.Minute), lockout, time.Hour, nil)
}

func post(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(b)))
	return rec
}

func decodePair(t *testing.T, rec *httptest.ResponseRecorder) LoginResponse {
	t.Helper()
	var resp struct {
		Data LoginResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Data
}

func TestLogin(t *testing.T) {
	h := setupHandler(t)

	rec := post(t, h.Login, LoginRequest{Username: "ann", Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code)

	pair := decodePair(t, rec)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, 60, pair.ExpiresIn)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := h.jwt.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", claims.Email)
}

func TestLogin_BadInput(t *testing.T) {
	h := setupHandler(t)

	assert.Equal(t, http.StatusBadRequest, post(t, h.Login, LoginRequest{Username: "ann"}).Code)
	assert.Equal(t, http.StatusBadRequest, post(t, h.Login, map[string]string{"user": "ann"}).Code)
	assert.Equal(t, http.StatusUnauthorized, post(t, h.Login, LoginRequest{Username: "nobody", Password: "x"}).Code)
}

func TestLogin_Lockout(t *testing.T) {
	h := setupHandler(t)

	for i := 0; i < 3; i++ {
		rec := post(t, h.Login, LoginRequest{Username: "ann", Password: "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := post(t, h.Login, LoginRequest{Username: "ann", Password: testPassword})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "ACCOUNT_LOCKED")
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	h := setupHandler(t)
	first := decodePair(t, post(t, h.Login, LoginRequest{Username: "ann", Password: testPassword}))

	rec := post(t, h.Refresh, RefreshRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodePair(t, rec)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The rotated-out token is dead.
	assert.Equal(t, http.StatusUnauthorized, post(t, h.Refresh, RefreshRequest{RefreshToken: first.RefreshToken}).Code)

	assert.Equal(t, http.StatusNoContent, post(t, h.Logout, RefreshRequest{RefreshToken: second.RefreshToken}).Code)
	assert.Equal(t, http.StatusUnauthorized, post(t, h.Refresh, RefreshRequest{RefreshToken: second.RefreshToken}).Code)

	assert.Equal(t, http.StatusBadRequest, post(t, h.Logout, RefreshRequest{}).Code)
}
