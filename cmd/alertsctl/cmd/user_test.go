package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/alertboard/internal/api/auth"
	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/storage"
)

const testPassword = "MyP@ssw0rd123!"

func setupTestDB(t *testing.T) (*storage.SQLiteStorage, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store := storage.NewSQLiteStorage(dbPath)
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())
	return store, dbPath
}

func TestCreateUser(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	user, err := createUser(ctx, store, " ann ", "ann@example.com", models.RoleOperator, testPassword)
	require.NoError(t, err)
	assert.Equal(t, "ann", user.Username)

	stored, err := store.Users().GetByUsername(ctx, "ann")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.RoleOperator, stored.Role)
	assert.True(t, auth.CheckPassword(stored.PasswordHash, testPassword))

	_, err = createUser(ctx, store, "ann", "other@example.com", models.RoleViewer, testPassword)
	assert.ErrorContains(t, err, "username 'ann' already exists")
	_, err = createUser(ctx, store, "bob", "ann@example.com", models.RoleViewer, testPassword)
	assert.ErrorContains(t, err, "email 'ann@example.com' already exists")
}

func TestSetPassword(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	_, err := createUser(ctx, store, "ann", "ann@example.com", models.RoleViewer, testPassword)
	require.NoError(t, err)

	const next = "An0ther$ecret99"
	user, err := setPassword(ctx, store, "ann", next)
	require.NoError(t, err)

	stored, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(stored.PasswordHash, next))

	_, err = setPassword(ctx, store, "nobody", next)
	assert.ErrorContains(t, err, "not found")
}

func TestOpenDatabase(t *testing.T) {
	_, err := openDatabase(filepath.Join(t.TempDir(), "missing.db"))
	assert.ErrorContains(t, err, "database file not found")

	_, path := setupTestDB(t)
	store, err := openDatabase(path)
	require.NoError(t, err)
	store.Close()
}

func TestValidateCreateFlags(t *testing.T) {
	defer func(u, e, r string) { userUsername, userEmail, userRole = u, e, r }(userUsername, userEmail, userRole)

	userUsername, userEmail, userRole = "ann", "ann@example.com", "Operator"
	role, err := validateCreateFlags()
	require.NoError(t, err)
	assert.Equal(t, models.RoleOperator, role)

	userRole = "owner"
	_, err = validateCreateFlags()
	assert.ErrorContains(t, err, "invalid role")

	userRole, userEmail = "viewer", ""
	_, err = validateCreateFlags()
	assert.ErrorContains(t, err, "--email is required")
}
