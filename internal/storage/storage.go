// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/good-yellow-bee/alertboard/internal/models"
)

// ErrNotFound is returned by mutating operations when the target row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error
	// EnsureAdminUser creates a default admin with a random password if no users exist.
	EnsureAdminUser() error
	// DB exposes the connection for health checks.
	DB() *sql.DB

	Users() UserRepository
	Tokens() TokenRepository
	Alerts() AlertRepository
}

// UserRepository defines operations for user management.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
}

// TokenRepository defines operations for refresh token management.
type TokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// AlertRepository persists the alert feed.
// Alerts are append-only from the feed's point of view; Delete exists for
// administrative removal.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	// ListNewestFirst returns alerts ordered by timestamp descending.
	// Alerts without a timestamp come last. limit <= 0 means no limit.
	ListNewestFirst(ctx context.Context, limit int) ([]*models.Alert, error)
	Delete(ctx context.Context, id string) error
	// Count returns the number of stored alerts.
	Count(ctx context.Context) (int64, error)
}
