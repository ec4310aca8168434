package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/alertboard/internal/models"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()

	store := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())

	return store
}

func newTestUser(username string) *models.User {
	u := models.NewUser(username, username+"@example.com", models.RoleOperator)
	u.ID = uuid.New().String()
	u.PasswordHash = "hashed-password"
	return u
}

func TestSQLiteStorage_Migrate(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"users", "refresh_tokens", "alerts", "schema_migrations"} {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		assert.NoError(t, err, "table %s should exist", table)
	}

	// Re-running is a no-op.
	require.NoError(t, store.Migrate())
	var version int
	require.NoError(t, store.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, len(migrations), version)
}

func TestUserRepository_CRUD(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	user := newTestUser("testuser")
	require.NoError(t, store.Users().Create(ctx, user))

	got, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "testuser", got.Username)
	assert.Equal(t, models.RoleOperator, got.Role)

	got, err = store.Users().GetByUsername(ctx, "testuser")
	require.NoError(t, err)
	require.NotNil(t, got)

	got, err = store.Users().GetByEmail(ctx, "testuser@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)

	user.Role = models.RoleAdmin
	user.UpdatedAt = time.Now()
	require.NoError(t, store.Users().Update(ctx, user))
	got, _ = store.Users().GetByID(ctx, user.ID)
	assert.Equal(t, models.RoleAdmin, got.Role)

	n, err := store.Users().Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, store.Users().Delete(ctx, user.ID))
	got, err = store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, store.Users().Delete(ctx, user.ID), ErrNotFound)
}

func TestEnsureAdminUser(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureAdminUser())
	require.NoError(t, store.EnsureAdminUser())

	users, err := store.Users().List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0].Username)
	assert.True(t, users[0].IsAdmin())
}

func TestTokenRepository(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	user := newTestUser("tokenuser")
	require.NoError(t, store.Users().Create(ctx, user))

	token, plain, err := models.NewRefreshToken(user.ID, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Tokens().Create(ctx, token))

	got, err := store.Tokens().GetByTokenHash(ctx, models.HashToken(plain))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsValid())

	require.NoError(t, store.Tokens().RevokeByTokenHash(ctx, token.TokenHash))
	got, err = store.Tokens().GetByTokenHash(ctx, token.TokenHash)
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.NotNil(t, got.RevokedAt)

	missing, err := store.Tokens().GetByTokenHash(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	expired, _, err := models.NewRefreshToken(user.ID, -time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Tokens().Create(ctx, expired))
	n, err := store.Tokens().DeleteExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestAlertRepository_NewestFirst(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	require.NoError(t, store.Alerts().Create(ctx, &models.Alert{ID: "b", Text: "drill", Email: "z@y.com", Timestamp: &t1}))
	require.NoError(t, store.Alerts().Create(ctx, &models.Alert{ID: "p", Text: "pending", Email: "z@y.com"}))
	require.NoError(t, store.Alerts().Create(ctx, &models.Alert{ID: "a", Text: "fire", Email: "x@y.com", Timestamp: &t2}))

	alerts, err := store.Alerts().ListNewestFirst(ctx, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.Equal(t, "a", alerts[0].ID)
	assert.Equal(t, "b", alerts[1].ID)
	assert.Equal(t, "p", alerts[2].ID)
	assert.Nil(t, alerts[2].Timestamp)
	assert.True(t, alerts[0].Timestamp.Equal(t2))

	limited, err := store.Alerts().ListNewestFirst(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "fire", limited[0].Text)
}

func TestAlertRepository_CountAndDelete(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	ts := time.Now().UTC()
	require.NoError(t, store.Alerts().Create(ctx, &models.Alert{ID: "x", Text: "leak", Email: "a@b.com", Timestamp: &ts}))

	n, err := store.Alerts().Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, store.Alerts().Delete(ctx, "x"))
	assert.ErrorIs(t, store.Alerts().Delete(ctx, "x"), ErrNotFound)

	n, err = store.Alerts().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	empty, err := store.Alerts().ListNewestFirst(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
