package views

import (
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"

	appI18n "github.com/pavelanni/examdraft/internal/i18n"
	"github.com/pavelanni/examdraft/internal/model"
)

// AdminUsersPage lists accounts with a form to add one.
func AdminUsersPage(users []model.User, errMsg string) templ.Component {
	return component(func(p *page) {
		ctx := p.ctx
		title := appI18n.T(ctx, "AdminUsers")
		p.render(Layout(title, "", component(func(p *page) {
			p.raw(`<h1>`)
			p.text(title)
			p.raw(`</h1>`)
			errorBox(p, errMsg)

			p.raw(`<table class="grid"><thead><tr>`)
			for _, id := range []string{"Username", "DisplayName", "Role", "Active", ""} {
				p.raw(`<th>`)
				if id != "" {
					p.text(appI18n.T(ctx, id))
				}
				p.raw(`</th>`)
			}
			p.raw(`</tr></thead><tbody>`)
			for _, u := range users {
				p.raw(`<tr><td>`)
				p.text(u.Username)
				p.raw(`</td><td>`)
				p.text(u.DisplayName)
				p.raw(`</td><td>`)
				p.text(string(u.Role))
				p.raw(`</td><td>`)
				if u.Active {
					p.raw(`✓`)
				}
				p.raw(`</td><td>`)
				p.postButton("/admin/users/"+strconv.FormatInt(u.ID, 10)+"/toggle", appI18n.T(ctx, "Toggle"), "secondary")
				p.raw(`</td></tr>`)
			}
			p.raw(`</tbody></table><h2>`)
			p.text(appI18n.T(ctx, "CreateUser"))
			p.raw(`</h2>`)

			p.form("/admin/users", "")
			for _, f := range []struct{ name, msgID, typ string }{
				{"username", "Username", "text"},
				{"display_name", "DisplayName", "text"},
				{"password", "Password", "password"},
			} {
				p.raw(`<p><label>`)
				p.text(appI18n.T(ctx, f.msgID))
				p.rawf(`<br><input type="%s" name="%s"></label></p>`, f.typ, f.name)
			}
			p.raw(`<p><label>`)
			p.text(appI18n.T(ctx, "Role"))
			p.raw(` `)
			p.selectInput("role", []string{string(model.UserRoleTeacher), string(model.UserRoleAdmin)}, string(model.UserRoleTeacher))
			p.raw(`</label></p>`)
			p.button(appI18n.T(ctx, "CreateUser"), "primary")
			p.raw(`</form>`)
		})))
	})
}

// AdminExportsPage lists recorded downloads.
func AdminExportsPage(records []model.ExportRecord, users map[int64]string) templ.Component {
	return component(func(p *page) {
		ctx := p.ctx
		title := appI18n.T(ctx, "AdminExports")
		p.render(Layout(title, "", component(func(p *page) {
			p.raw(`<h1>`)
			p.text(title)
			p.raw(`</h1><table class="grid"><thead><tr>`)
			for _, id := range []string{"CreatedAt", "Username", "Kind", "Filename", "Size"} {
				p.raw(`<th>`)
				p.text(appI18n.T(ctx, id))
				p.raw(`</th>`)
			}
			p.raw(`</tr></thead><tbody>`)
			for _, r := range records {
				p.raw(`<tr><td>`)
				p.text(r.CreatedAt.Local().Format(time.DateTime))
				p.raw(`</td><td>`)
				p.text(users[r.UserID])
				p.raw(`</td><td>`)
				p.text(string(r.Kind))
				p.raw(`</td><td>`)
				p.text(r.Filename)
				p.raw(`</td><td>`)
				p.text(humanize.Bytes(uint64(r.Bytes)))
				p.raw(`</td></tr>`)
			}
			p.raw(`</tbody></table>`)
		})))
	})
}
