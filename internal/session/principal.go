// Package session carries the authenticated principal explicitly through
// request handling, instead of reading a process-wide "current user".
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/good-yellow-bee/alertboard/internal/models"
)

// ErrNoSession is returned when an operation needs an authenticated principal
// and none is present.
var ErrNoSession = errors.New("no authenticated session")

// Principal identifies the user on whose behalf an operation runs.
type Principal struct {
	UserID   string
	Username string
	Email    string
	Role     models.Role
}

// Validate returns ErrNoSession if the principal cannot author alerts.
func (p Principal) Validate() error {
	if strings.TrimSpace(p.Email) == "" {
		return ErrNoSession
	}
	return nil
}

// FromUser builds a principal for u.
func FromUser(u *models.User) Principal {
	if u == nil {
		return Principal{}
	}
	return Principal{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}

type contextKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal stored in ctx, or ErrNoSession.
func FromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	if !ok {
		return Principal{}, ErrNoSession
	}
	if err := p.Validate(); err != nil {
		return Principal{}, err
	}
	return p, nil
}
