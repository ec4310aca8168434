package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/alertboard/internal/models"
)

func TestFromContext_Missing(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestFromContext_RoundTrip(t *testing.T) {
	p := Principal{UserID: "u1", Username: "ann", Email: "ann@example.com", Role: models.RoleOperator}
	got, err := FromContext(WithPrincipal(context.Background(), p))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestFromContext_EmptyEmail(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{UserID: "u1"})
	_, err := FromContext(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestFromUser(t *testing.T) {
	u := &models.User{ID: "u2", Username: "bob", Email: "bob@example.com", Role: models.RoleAdmin}
	p := FromUser(u)
	assert.Equal(t, "bob@example.com", p.Email)
	assert.Equal(t, models.RoleAdmin, p.Role)
	assert.NoError(t, p.Validate())

	assert.ErrorIs(t, FromUser(nil).Validate(), ErrNoSession)
}
