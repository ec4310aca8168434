package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/storage"
)

// ErrInvalidRefreshToken is returned for unknown, expired or revoked tokens.
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// TokenService manages refresh tokens. Only token hashes are stored.
type TokenService struct {
	storage storage.Storage
	ttl     time.Duration
}

// NewTokenService creates a service issuing tokens valid for ttl.
func NewTokenService(store storage.Storage, ttl time.Duration) *TokenService {
	return &TokenService{storage: store, ttl: ttl}
}

// Create stores a new refresh token for userID and returns its plaintext.
func (s *TokenService) Create(ctx context.Context, userID string) (string, error) {
	token, plain, err := models.NewRefreshToken(userID, s.ttl)
	if err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.storage.Tokens().Create(ctx, token); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return plain, nil
}

// Validate returns the user a live refresh token belongs to.
func (s *TokenService) Validate(ctx context.Context, plain string) (*models.User, error) {
	token, err := s.storage.Tokens().GetByTokenHash(ctx, models.HashToken(plain))
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if token == nil || !token.IsValid() {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.storage.Users().GetByID(ctx, token.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidRefreshToken
	}
	return user, nil
}

// Revoke revokes a refresh token. Unknown tokens are ignored.
func (s *TokenService) Revoke(ctx context.Context, plain string) error {
	return s.storage.Tokens().RevokeByTokenHash(ctx, models.HashToken(plain))
}

// Rotate revokes old and issues a replacement for userID.
func (s *TokenService) Rotate(ctx context.Context, old, userID string) (string, error) {
	if err := s.Revoke(ctx, old); err != nil {
		return "", fmt.Errorf("revoke refresh token: %w", err)
	}
	return s.Create(ctx, userID)
}

// RevokeAll revokes every refresh token of userID.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) error {
	return s.storage.Tokens().RevokeAllForUser(ctx, userID)
}

// Cleanup deletes expired tokens.
func (s *TokenService) Cleanup(ctx context.Context) (int64, error) {
	return s.storage.Tokens().DeleteExpired(ctx)
}
