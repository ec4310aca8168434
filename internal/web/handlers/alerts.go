package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/screen"
	"github.com/good-yellow-bee/alertboard/internal/session"
)

// ShowAlerts renders the alert screen. ?new=1 opens the input form.
func (h *Handler) ShowAlerts(w http.ResponseWriter, r *http.Request) {
	scr := h.newScreen()
	if r.URL.Query().Get("new") == "1" {
		scr.ShowForm()
	}
	h.renderScreen(w, r, scr, http.StatusOK, "")
}

// HandleAlertSubmit appends the posted text as the session user. A blank or
// failed submit re-renders the screen with the form open and the text kept.
func (h *Handler) HandleAlertSubmit(w http.ResponseWriter, r *http.Request) {
	p, err := session.FromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	scr := h.newScreen()
	scr.ShowForm()
	scr.SetInput(r.PostFormValue("text"))

	err = scr.Submit(r.Context(), p)
	switch {
	case err == nil:
		http.Redirect(w, r, "/alerts", http.StatusSeeOther)
	case errors.Is(err, screen.ErrEmptyInput):
		h.renderScreen(w, r, scr, http.StatusBadRequest, "")
	case errors.Is(err, session.ErrNoSession):
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	default:
		h.renderScreen(w, r, scr, http.StatusServiceUnavailable, "Could not post the alert. Please try again.")
	}
}

func (h *Handler) newScreen() *screen.Screen {
	return screen.New(h.feed, screen.WithLogger(h.logger), screen.WithLocation(h.cfg.Location))
}

// renderScreen mounts scr for the duration of the request, waits briefly for
// the first snapshot and writes the page.
func (h *Handler) renderScreen(w http.ResponseWriter, r *http.Request, scr *screen.Screen, status int, flash string) {
	if err := scr.Mount(r.Context()); err != nil {
		h.logger.Warn("mount alert screen", zap.Error(err))
		if flash == "" {
			flash = "Live alerts are unavailable right now."
		}
	} else {
		defer scr.Unmount()
		timer := time.NewTimer(h.cfg.ReadyTimeout)
		defer timer.Stop()
		select {
		case <-scr.Ready():
		case <-timer.C:
			h.logger.Warn("alert screen not ready", zap.Duration("timeout", h.cfg.ReadyTimeout))
		case <-r.Context().Done():
			return
		}
	}

	st := scr.State()
	if st.SubscriptionErr != nil && flash == "" {
		flash = "Live updates stopped."
	}

	p, _ := session.FromContext(r.Context())
	token := csrf.Token(r)
	h.writePage(w, r, status, Page{
		Title:     "Alerts",
		User:      p.Email,
		CSRFToken: token,
		Flash:     flash,
		Script:    "/static/alerts.js",
		Data:      map[string]string{"stream": h.cfg.StreamURL},
		Body: screen.View(st, screen.ViewOptions{
			CSRFFieldName: CSRFFieldName,
			CSRFToken:     token,
		}),
	})
}
