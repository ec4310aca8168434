package handlers

import (
	"net/http"

	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/api/auth"
	"github.com/good-yellow-bee/alertboard/internal/api/middleware"
	"github.com/good-yellow-bee/alertboard/internal/metrics"
	"github.com/good-yellow-bee/alertboard/internal/session"
)

func (h *Handler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.sessions.FromRequest(r); ok {
		http.Redirect(w, r, "/alerts", http.StatusFound)
		return
	}
	h.renderLogin(w, r, http.StatusOK, "")
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLogin(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		h.renderLogin(w, r, http.StatusBadRequest, "Username and password are required")
		return
	}

	if h.lockout != nil && h.lockout.IsLocked(username) {
		metrics.AuthAttemptsTotal.WithLabelValues("locked").Inc()
		h.renderLogin(w, r, http.StatusTooManyRequests, "Account temporarily locked due to too many failed attempts")
		return
	}

	user, err := h.storage.Users().GetByUsername(r.Context(), username)
	if err != nil {
		h.logger.Error("web login: load user", zap.Error(err))
		h.renderLogin(w, r, http.StatusInternalServerError, "Login failed")
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		if h.lockout != nil {
			h.lockout.RecordFailure(username)
		}
		metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		h.renderLogin(w, r, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if h.lockout != nil {
		h.lockout.ClearFailures(username)
	}

	// Drop any session presented with the login to prevent fixation.
	if old, ok := h.sessions.FromRequest(r); ok {
		h.sessions.Delete(old.ID)
	}

	ttl := h.cfg.SessionTTL
	if r.FormValue("remember_me") == "on" {
		ttl = h.cfg.RememberTTL
	}
	sess, err := h.sessions.CreateWithTTL(session.FromUser(user), ttl)
	if err != nil {
		h.logger.Error("web login: create session", zap.Error(err))
		h.renderLogin(w, r, http.StatusInternalServerError, "Failed to create session")
		return
	}
	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	h.logger.Info("web login", zap.String("username", user.Username))

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   middleware.IsRequestSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
	http.Redirect(w, r, "/alerts", http.StatusSeeOther)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.sessions.FromRequest(r); ok {
		h.sessions.Delete(sess.ID)
	}
	ClearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writePage(w, r, status, Page{Title: "Sign in", Body: LoginForm(csrf.Token(r), message)})
}
