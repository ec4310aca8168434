package middleware

import (
	"net/http"
	"slices"

	"github.com/good-yellow-bee/alertboard/internal/api/respond"
	"github.com/good-yellow-bee/alertboard/internal/models"
)

// RequireRole allows the listed roles. Admin is always allowed.
// Must run after JWTAuth.
func RequireRole(allowed ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetRole(r)
			if role == "" {
				respond.Fail(w, respond.ErrNoSession)
				return
			}
			if role == models.RoleAdmin || slices.Contains(allowed, role) {
				next.ServeHTTP(w, r)
				return
			}
			respond.Fail(w, respond.ErrForbidden)
		})
	}
}

// RequireAdmin is RequireRole(RoleAdmin).
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(models.RoleAdmin)(next)
}

// RequirePoster allows roles that may append alerts.
func RequirePoster(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := GetRole(r)
		switch {
		case role == "":
			respond.Fail(w, respond.ErrNoSession)
		case !role.CanPost():
			respond.Fail(w, respond.ErrForbidden)
		default:
			next.ServeHTTP(w, r)
		}
	})
}
