package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/api/auth"
	"github.com/good-yellow-bee/alertboard/internal/api/respond"
	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/session"
)

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// JWTAuth requires a valid bearer token and puts its principal in the
// request context.
func JWTAuth(jwt *auth.JWTService, logger *zap.Logger) func(http.Handler) http.Handler {
	return JWTOrSessionAuth(jwt, nil, logger)
}

// JWTOrSessionAuth accepts a bearer token or, when sessions is set, the web
// session cookie. Browser code on the alert page uses the cookie.
func JWTOrSessionAuth(jwt *auth.JWTService, sessions *session.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				claims, err := jwt.ValidateToken(token)
				if err == nil {
					ctx := session.WithPrincipal(r.Context(), claims.Principal())
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				logger.Debug("bearer token rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
				respond.Fail(w, respond.ErrInvalidToken)
				return
			}

			if sessions != nil {
				if sess, ok := sessions.FromRequest(r); ok {
					ctx := session.WithPrincipal(r.Context(), sess.Principal)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			respond.Fail(w, respond.ErrNoSession)
		})
	}
}

// GetUserID returns the authenticated user id, or "".
func GetUserID(r *http.Request) string {
	p, err := session.FromContext(r.Context())
	if err != nil {
		return ""
	}
	return p.UserID
}

// GetRole returns the authenticated role, or "".
func GetRole(r *http.Request) models.Role {
	p, err := session.FromContext(r.Context())
	if err != nil {
		return ""
	}
	return p.Role
}
