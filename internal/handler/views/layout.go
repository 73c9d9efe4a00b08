package views

import (
	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/examdraft/internal/i18n"
	"github.com/pavelanni/examdraft/internal/model"
)

const styles = `
body{font-family:system-ui,"Noto Sans TC",sans-serif;margin:0;display:flex;min-height:100vh;color:#222}
aside{width:16rem;background:#f4f6f0;padding:1rem;border-right:1px solid #d7e4bc}
main{flex:1;padding:1.5rem;max-width:72rem}
textarea{width:100%;font-family:inherit}
table.grid{border-collapse:collapse}
table.grid td,table.grid th{border:1px solid #ccc;padding:.25rem}
table.grid th{background:#d7e4bc}
.steps{display:flex;gap:.5rem;list-style:none;padding:0}
.steps li{padding:.25rem .75rem;border-radius:1rem;background:#eee}
.steps li.current{background:#9bbb59;color:#fff}
.error{background:#fde8e8;border:1px solid #e99;padding:.5rem}
.notice{background:#eef6e0;border:1px solid #9bbb59;padding:.5rem}
.inline{display:inline}
.preview{border:1px solid #ddd;padding:.75rem;overflow:auto}
`

// Layout wraps body in the page shell with the sidebar.
func Layout(title, chatURL string, body templ.Component) templ.Component {
	return component(func(p *page) {
		ctx := p.ctx
		p.rawf(`<!DOCTYPE html><html lang="%s"><head><meta charset="utf-8">`, attr(appI18n.Lang(ctx)))
		p.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		p.raw(`<title>`)
		p.text(title + " · " + appI18n.T(ctx, "AppTitle"))
		p.raw(`</title><style>` + styles + `</style></head><body>`)

		p.raw(`<aside>`)
		p.rawf(`<h2><a href="%s">`, attr(path(ctx, "/")))
		p.text(appI18n.T(ctx, "AppTitle"))
		p.raw(`</a></h2>`)
		sidebar(p, chatURL)
		p.raw(`</aside>`)

		p.raw(`<main>`)
		p.render(body)
		p.raw(`</main></body></html>`)
	})
}

func sidebar(p *page, chatURL string) {
	ctx := p.ctx
	user := model.UserFromContext(ctx)
	if user != nil {
		p.raw(`<p>`)
		p.text(user.DisplayName)
		p.raw(`</p><nav><ul>`)
		navLink(p, "/", "Sessions")
		if user.Role == model.UserRoleAdmin {
			navLink(p, "/admin/users", "AdminUsers")
			navLink(p, "/admin/exports", "AdminExports")
		}
		p.raw(`</ul></nav>`)
		p.postButton("/logout", appI18n.T(ctx, "Logout"), "secondary")
	}

	if chatURL != "" {
		p.raw(`<h3>`)
		p.text(appI18n.T(ctx, "SidebarChat"))
		p.rawf(`</h3><p><a href="%s" target="_blank" rel="noopener">`, attr(chatURL))
		p.text(appI18n.T(ctx, "OpenChat"))
		p.raw(`</a></p>`)
	}

	p.raw(`<div class="notice"><p>`)
	p.text(appI18n.T(ctx, "ReminderPrivacy"))
	p.raw(`</p><p>`)
	p.text(appI18n.T(ctx, "ReminderCopyright"))
	p.raw(`</p></div>`)
}

func navLink(p *page, href, msgID string) {
	p.rawf(`<li><a href="%s">`, attr(path(p.ctx, href)))
	p.text(appI18n.T(p.ctx, msgID))
	p.raw(`</a></li>`)
}

func errorBox(p *page, msg string) {
	if msg == "" {
		return
	}
	p.raw(`<div class="error" role="alert">`)
	p.text(msg)
	p.raw(`</div>`)
}

// LoginPage renders the sign-in form. errMsg is shown above the form.
func LoginPage(errMsg string) templ.Component {
	return component(func(p *page) {
		ctx := p.ctx
		body := component(func(p *page) {
			p.raw(`<h1>`)
			p.text(appI18n.T(ctx, "Login"))
			p.raw(`</h1>`)
			errorBox(p, errMsg)
			p.form("/login", "")
			p.raw(`<p><label>`)
			p.text(appI18n.T(ctx, "Username"))
			p.raw(`<br><input name="username" autocomplete="username" required></label></p>`)
			p.raw(`<p><label>`)
			p.text(appI18n.T(ctx, "Password"))
			p.raw(`<br><input type="password" name="password" autocomplete="current-password" required></label></p>`)
			p.button(appI18n.T(ctx, "SignIn"), "primary")
			p.raw(`</form>`)
		})
		p.render(Layout(appI18n.T(ctx, "Login"), "", body))
	})
}

// ErrorPage renders a full-page error message.
func ErrorPage(title, msg string) templ.Component {
	return component(func(p *page) {
		body := component(func(p *page) {
			p.raw(`<h1>`)
			p.text(title)
			p.raw(`</h1>`)
			errorBox(p, msg)
			p.rawf(`<p><a href="%s">`, attr(path(p.ctx, "/")))
			p.text(appI18n.T(p.ctx, "Sessions"))
			p.raw(`</a></p>`)
		})
		p.render(Layout(title, "", body))
	})
}
