package views

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/pavelanni/examdraft/internal/model"
)

// page accumulates HTML and keeps the first write error.
type page struct {
	w   io.Writer
	ctx context.Context
	err error
}

func (p *page) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *page) rawf(format string, args ...any) {
	p.raw(fmt.Sprintf(format, args...))
}

// text writes s HTML-escaped.
func (p *page) text(s string) {
	p.raw(templ.EscapeString(s))
}

func (p *page) render(c templ.Component) {
	if p.err != nil {
		return
	}
	p.err = c.Render(p.ctx, p.w)
}

func component(fn func(p *page)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w, ctx: ctx}
		fn(p)
		return p.err
	})
}

func attr(s string) string {
	return templ.EscapeString(s)
}

// path prefixes an application path with the deployment base path.
func path(ctx context.Context, p string) string {
	return model.BasePathFromContext(ctx) + p
}

func (p *page) csrf() {
	p.rawf(`<input type="hidden" name="csrf_token" value="%s">`, attr(model.CSRFTokenFromContext(p.ctx)))
}

// form opens a POST form to action with the CSRF field.
func (p *page) form(action string, extra string) {
	p.rawf(`<form method="post" action="%s"%s>`, attr(path(p.ctx, action)), extra)
	p.csrf()
}

func (p *page) button(label string, class string) {
	p.rawf(`<button type="submit" class="%s">`, attr(class))
	p.text(label)
	p.raw(`</button>`)
}

// postButton renders a one-button form.
func (p *page) postButton(action, label, class string) {
	p.form(action, ` class="inline"`)
	p.button(label, class)
	p.raw(`</form>`)
}

func (p *page) textarea(name string, rows int, value string, attrs ...string) {
	p.rawf(`<textarea name="%s" rows="%d" %s>`, attr(name), rows, strings.Join(attrs, " "))
	p.text(value)
	p.raw(`</textarea>`)
}

func (p *page) selectInput(name string, options []string, selected string) {
	p.rawf(`<select name="%s" required>`, attr(name))
	for _, o := range options {
		sel := ""
		if o == selected {
			sel = " selected"
		}
		p.rawf(`<option value="%s"%s>`, attr(o), sel)
		p.text(o)
		p.raw(`</option>`)
	}
	p.raw(`</select>`)
}
