package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"

	apimw "github.com/good-yellow-bee/alertboard/internal/api/middleware"
	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/web/handlers"
	"github.com/good-yellow-bee/alertboard/internal/web/middleware"
)

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	// Static files (no CSRF)
	r.Handle("/static/*", http.StripPrefix("/static/", s.StaticFS()))

	r.Group(func(r chi.Router) {
		r.Use(markPlaintext)
		r.Use(csrf.Protect(
			s.cfg.CSRFKey,
			csrf.Secure(s.cfg.UseSecureCookies),
			csrf.Path("/"),
			csrf.SameSite(csrf.SameSiteLaxMode),
			csrf.FieldName(handlers.CSRFFieldName),
			csrf.TrustedOrigins(s.cfg.TrustedOrigins),
		))

		r.Get("/login", s.handler.ShowLogin)
		r.Post("/login", s.handler.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(s.sessions))

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/alerts", http.StatusFound)
			})
			r.Get("/alerts", s.handler.ShowAlerts)
			r.With(middleware.RequireRole(models.RoleOperator)).Post("/alerts", s.handler.HandleAlertSubmit)
			r.Post("/logout", s.handler.HandleLogout)
		})
	})

	return r
}

// markPlaintext tells the CSRF middleware which requests arrived without
// TLS so it skips the HTTPS-only referer check for them.
func markPlaintext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !apimw.IsRequestSecure(r) {
			r = csrf.PlaintextHTTPRequest(r)
		}
		next.ServeHTTP(w, r)
	})
}
