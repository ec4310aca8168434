// Package middleware holds the browser-facing request guards.
package middleware

import (
	"net/http"

	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/session"
)

// RequireSession redirects to /login unless the request carries a live
// session cookie. The session's principal is placed in the request context.
func RequireSession(store *session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := store.FromRequest(r)
			if !ok {
				if _, err := r.Cookie(session.CookieName); err == nil {
					http.SetCookie(w, &http.Cookie{
						Name:   session.CookieName,
						Value:  "",
						Path:   "/",
						MaxAge: -1,
					})
				}
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			ctx := session.WithPrincipal(r.Context(), sess.Principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole answers 403 unless the session user meets role.
// Must be used after RequireSession.
func RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := session.FromContext(r.Context())
			if err != nil {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			if !hasRole(p.Role, role) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// hasRole checks if userRole meets or exceeds requiredRole.
// Role hierarchy: admin > operator > viewer
func hasRole(userRole, requiredRole models.Role) bool {
	roleLevel := map[models.Role]int{
		models.RoleViewer:   1,
		models.RoleOperator: 2,
		models.RoleAdmin:    3,
	}
	userLevel, ok := roleLevel[userRole]
	if !ok {
		return false
	}
	requiredLevel, ok := roleLevel[requiredRole]
	if !ok {
		return false
	}
	return userLevel >= requiredLevel
}
