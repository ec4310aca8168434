package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"go.uber.org/zap"
)

// Page is the common document around every view.
type Page struct {
	Title string
	// User is shown in the navigation bar with a logout button. Empty on
	// the login page.
	User      string
	CSRFToken string
	// Flash is an error banner above the body.
	Flash string
	// Script is an optional static script path.
	Script string
	// Data attributes set on <main>, read by the page script.
	Data map[string]string
	Body templ.Component
}

// Component renders the full HTML document.
func (p Page) Component() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html>\n<html lang=\"en\"><head><meta charset=\"utf-8\">")
		b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		fmt.Fprintf(&b, "<title>%s - alertboard</title>", templ.EscapeString(p.Title))
		b.WriteString(`<link rel="stylesheet" href="/static/app.css">`)
		b.WriteString("</head><body>")

		if p.User != "" {
			b.WriteString(`<nav><span class="brand">alertboard</span>`)
			fmt.Fprintf(&b, `<span class="user">%s</span>`, templ.EscapeString(p.User))
			b.WriteString(`<form method="post" action="/logout">`)
			fmt.Fprintf(&b, `<input type="hidden" name="%s" value="%s">`, CSRFFieldName, templ.EscapeString(p.CSRFToken))
			b.WriteString(`<button type="submit">Log out</button></form></nav>`)
		}

		b.WriteString("<main")
		for k, v := range p.Data {
			fmt.Fprintf(&b, ` data-%s="%s"`, templ.EscapeString(k), templ.EscapeString(v))
		}
		b.WriteString(">")
		if p.Flash != "" {
			fmt.Fprintf(&b, `<div class="flash error" role="alert">%s</div>`, templ.EscapeString(p.Flash))
		}
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
		b.Reset()

		if p.Body != nil {
			if err := p.Body.Render(ctx, w); err != nil {
				return err
			}
		}

		b.WriteString("</main>")
		if p.Script != "" {
			fmt.Fprintf(&b, `<script src="%s" defer></script>`, templ.EscapeString(p.Script))
		}
		b.WriteString("</body></html>\n")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// LoginForm renders the sign-in form.
func LoginForm(csrfToken, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<section class="login"><h1>Sign in</h1>`)
		if message != "" {
			fmt.Fprintf(&b, `<div class="flash error" role="alert">%s</div>`, templ.EscapeString(message))
		}
		b.WriteString(`<form method="post" action="/login">`)
		fmt.Fprintf(&b, `<input type="hidden" name="%s" value="%s">`, CSRFFieldName, templ.EscapeString(csrfToken))
		b.WriteString(`<label>Username <input type="text" name="username" autocomplete="username" required></label>`)
		b.WriteString(`<label>Password <input type="password" name="password" autocomplete="current-password" required></label>`)
		b.WriteString(`<label><input type="checkbox" name="remember_me"> Remember me</label>`)
		b.WriteString(`<button type="submit">Sign in</button></form></section>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func (h *Handler) writePage(w http.ResponseWriter, r *http.Request, status int, p Page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := p.Component().Render(r.Context(), w); err != nil {
		h.logger.Debug("render page", zap.String("title", p.Title), zap.Error(err))
	}
}
