package screen

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// ViewOptions controls the HTML rendering of the screen.
type ViewOptions struct {
	// NewAlertHref is the target of the "New Alert" control.
	NewAlertHref string
	// FormAction is where the input form posts to.
	FormAction string
	// CSRFFieldName and CSRFToken add a hidden token field to the form.
	CSRFFieldName string
	CSRFToken     string
}

func (o ViewOptions) withDefaults() ViewOptions {
	if o.NewAlertHref == "" {
		o.NewAlertHref = "?new=1"
	}
	if o.FormAction == "" {
		o.FormAction = "/alerts"
	}
	return o
}

// Component renders the current state as HTML.
func (s *Screen) Component(opts ViewOptions) templ.Component {
	return View(s.State(), opts)
}

// Render writes the current state as HTML with default options.
func (s *Screen) Render(ctx context.Context, w io.Writer) error {
	return s.Component(ViewOptions{}).Render(ctx, w)
}

// View renders st as an HTML fragment.
func View(st State, opts ViewOptions) templ.Component {
	opts = opts.withDefaults()
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<section class="alerts">`)
		b.WriteString(`<header><h1>Alerts</h1>`)
		fmt.Fprintf(&b, `<a class="button" href="%s">New Alert</a>`, templ.EscapeString(opts.NewAlertHref))
		b.WriteString(`</header>`)

		if st.FormVisible {
			fmt.Fprintf(&b, `<form class="alert-form" method="post" action="%s">`, templ.EscapeString(opts.FormAction))
			if opts.CSRFToken != "" {
				fmt.Fprintf(&b, `<input type="hidden" name="%s" value="%s">`,
					templ.EscapeString(opts.CSRFFieldName), templ.EscapeString(opts.CSRFToken))
			}
			fmt.Fprintf(&b, `<input type="text" name="text" placeholder="Alert text" value="%s" autofocus>`, templ.EscapeString(st.Input))
			b.WriteString(`<button type="submit">Submit</button></form>`)
		}

		b.WriteString(`<ul class="alert-list">`)
		for _, row := range st.Rows {
			fmt.Fprintf(&b, `<li id="alert-%s"><p class="alert-text">%s</p><p class="alert-meta">%s%s</p></li>`,
				templ.EscapeString(row.ID),
				templ.EscapeString(row.Text),
				templ.EscapeString(row.When),
				templ.EscapeString(row.Byline()))
		}
		b.WriteString(`</ul></section>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

// RenderText writes the current state for a terminal.
func (s *Screen) RenderText(w io.Writer) error {
	return WriteText(w, s.State())
}

// WriteText writes st as plain text.
func WriteText(w io.Writer, st State) error {
	var b strings.Builder
	b.WriteString("Alerts  [New Alert]\n")
	if st.FormVisible {
		fmt.Fprintf(&b, "> %s\n", st.Input)
	}
	if st.SubscriptionErr != nil {
		fmt.Fprintf(&b, "! live updates stopped: %v\n", st.SubscriptionErr)
	}
	b.WriteString("\n")
	if len(st.Rows) == 0 {
		b.WriteString("  (no alerts)\n")
	}
	for _, row := range st.Rows {
		fmt.Fprintf(&b, "- %s\n  %s%s\n", row.Text, row.When, row.Byline())
	}
	_, err := io.WriteString(w, b.String())
	return err
}
