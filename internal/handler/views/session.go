package views

import (
	"fmt"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/examdraft/internal/i18n"
	"github.com/pavelanni/examdraft/internal/prompts"
	"github.com/pavelanni/examdraft/internal/rubric"
	"github.com/pavelanni/examdraft/internal/workflow"
)

// SessionData is everything the phase page of one drafting session shows.
type SessionData struct {
	Session workflow.Session
	ChatURL string
	Error   string
	Notice  string

	// Form values for phase 1. Meta may differ from Session.Meta while the
	// teacher is still choosing.
	Grade   string
	Subject string
	Mode    string
	Types   []string

	ReviewPrompt   string
	QuestionPrompt string
	MaxUploadMB    int64
}

var steps = []struct {
	phase workflow.Phase
	msgID string
}{
	{workflow.PhaseUpload, "StepUpload"},
	{workflow.PhaseReviewPrompt, "StepReviewPrompt"},
	{workflow.PhaseReviewTable, "StepReviewTable"},
	{workflow.PhaseQuestionPrompt, "StepQuestionPrompt"},
}

// SessionPage renders the page for the session's current phase.
func SessionPage(d SessionData) templ.Component {
	return component(func(p *page) {
		title := appI18n.T(p.ctx, phaseMsgID(d.Session.Phase))
		p.render(Layout(title, d.ChatURL, component(func(p *page) {
			stepper(p, d.Session.Phase)
			errorBox(p, d.Error)
			if d.Notice != "" {
				p.raw(`<div class="notice">`)
				p.text(d.Notice)
				p.raw(`</div>`)
			}

			switch d.Session.Phase {
			case workflow.PhaseReviewPrompt:
				reviewPromptPhase(p, d)
			case workflow.PhaseReviewTable:
				reviewTablePhase(p, d)
			case workflow.PhaseQuestionPrompt:
				questionPromptPhase(p, d)
			default:
				uploadPhase(p, d)
			}
		})))
	})
}

func phaseMsgID(ph workflow.Phase) string {
	for _, s := range steps {
		if s.phase == ph {
			return s.msgID
		}
	}
	return "StepUpload"
}

func stepper(p *page, current workflow.Phase) {
	p.raw(`<ol class="steps">`)
	for _, s := range steps {
		class := ""
		if s.phase == current {
			class = ` class="current"`
		}
		p.rawf(`<li%s>`, class)
		p.text(s.phase.Step() + " " + appI18n.T(p.ctx, s.msgID))
		p.raw(`</li>`)
	}
	p.raw(`</ol>`)
}

func sessionPath(d SessionData, suffix string) string {
	return "/sessions/" + d.Session.ID + suffix
}

func uploadPhase(p *page, d SessionData) {
	ctx := p.ctx

	p.raw(`<section><h2>`)
	p.text(appI18n.T(ctx, "UploadMaterials"))
	p.raw(`</h2><p>`)
	p.text(appI18n.Td(ctx, "UploadHint", map[string]any{"MaxMB": d.MaxUploadMB}))
	p.raw(`</p>`)
	p.form(sessionPath(d, "/upload"), ` enctype="multipart/form-data"`)
	p.raw(`<input type="file" name="files" multiple accept=".pdf,.docx,.doc,.txt,.md"> `)
	p.button(appI18n.T(ctx, "Extract"), "primary")
	p.raw(`</form></section>`)

	// Changing the subject reloads the page so the type list matches it.
	p.raw(`<section><h2>`)
	p.text(appI18n.T(ctx, "ExamSettings"))
	p.rawf(`</h2><form method="get" action="%s" class="inline"><label>`, attr(path(ctx, sessionPath(d, ""))))
	p.text(appI18n.T(ctx, "Subject"))
	p.raw(` `)
	p.selectInput("subject", prompts.Subjects, d.Subject)
	p.raw(`</label> `)
	p.button(appI18n.T(ctx, "ChangeSubject"), "secondary")
	p.raw(`</form>`)

	p.form(sessionPath(d, "/review-prompt"), "")
	p.rawf(`<input type="hidden" name="subject" value="%s">`, attr(d.Subject))
	p.raw(`<p><label>`)
	p.text(appI18n.T(ctx, "Grade"))
	p.raw(` `)
	p.selectInput("grade", prompts.Grades, d.Grade)
	p.raw(`</label> <label>`)
	p.text(appI18n.T(ctx, "Mode"))
	p.raw(` `)
	p.selectInput("mode", prompts.Modes, d.Mode)
	p.raw(`</label></p><fieldset><legend>`)
	p.text(appI18n.T(ctx, "QuestionTypes"))
	p.raw(`</legend>`)
	for _, t := range prompts.QuestionTypes(d.Subject) {
		checked := ""
		if prompts.IsOneOf(t, d.Types) {
			checked = " checked"
		}
		p.rawf(`<label><input type="checkbox" name="types" value="%s"%s> `, attr(t), checked)
		p.text(t)
		p.raw(`</label> `)
	}
	p.raw(`</fieldset><h3>`)
	p.text(appI18n.T(ctx, "MaterialText"))
	p.raw(`</h3>`)
	p.textarea("content", 18, d.Session.Content)
	p.raw(`<p>`)
	p.text(appI18n.Tp(ctx, "CharCount", len([]rune(d.Session.Content))))
	p.raw(`</p>`)
	p.button(appI18n.T(ctx, "GenerateReviewPrompt"), "primary")
	p.raw(`</form></section>`)
}

func promptBlock(p *page, d SessionData, prompt, artifact string) {
	p.textarea("prompt", 16, prompt, "readonly", `onclick="this.select()"`)
	p.raw(`<p>`)
	downloadLink(p, d, artifact+".txt", "DownloadPrompt")
	p.raw(` · `)
	downloadLink(p, d, artifact+".json", "DownloadChatRequest")
	p.raw(`</p>`)
}

func downloadLink(p *page, d SessionData, artifact, msgID string) {
	p.rawf(`<a href="%s">`, attr(path(p.ctx, sessionPath(d, "/download/"+artifact))))
	p.text(appI18n.T(p.ctx, msgID))
	p.raw(`</a>`)
}

func reviewPromptPhase(p *page, d SessionData) {
	ctx := p.ctx
	meta := d.Session.Meta

	p.raw(`<h2>`)
	p.text(appI18n.T(ctx, "ReviewPromptTitle"))
	p.raw(`</h2><p>`)
	p.text(fmt.Sprintf("%s · %s · %s · %s", meta.Grade, meta.Subject, meta.Mode, meta.TypeList()))
	p.raw(`</p><p>`)
	p.text(appI18n.T(ctx, "ReviewPromptHint"))
	p.raw(`</p>`)
	promptBlock(p, d, d.ReviewPrompt, "review-prompt")

	p.postButton(sessionPath(d, "/confirm"), appI18n.T(ctx, "ConfirmReviewPrompt"), "primary")
	p.postButton(sessionPath(d, "/back"), appI18n.T(ctx, "Back"), "secondary")
}

func reviewTablePhase(p *page, d SessionData) {
	ctx := p.ctx

	p.raw(`<h2>`)
	p.text(appI18n.T(ctx, "PasteTableTitle"))
	p.raw(`</h2><p>`)
	p.text(appI18n.T(ctx, "PasteTableHint"))
	p.raw(`</p>`)
	p.form(sessionPath(d, "/table"), "")
	p.textarea("markdown", 10, "", `placeholder="| 單元 | 學習目標 | 對應題型 | 預計配分 |"`)
	p.button(appI18n.T(ctx, "ParseTable"), "primary")
	p.raw(`</form>`)

	if rs := d.Session.Table; rs != nil {
		p.raw(`<h2>`)
		p.text(appI18n.T(ctx, "EditTableTitle"))
		p.raw(`</h2>`)
		if total, ok := rubric.Total(rs); ok {
			p.raw(`<p>`)
			p.text(appI18n.Td(ctx, "TotalPoints", map[string]any{"Total": total}))
			p.raw(`</p>`)
		}
		tableEditor(p, d, rs)
		p.raw(`<p>`)
		downloadLink(p, d, "review-table.xlsx", "DownloadXLSX")
		p.raw(`</p><details><summary>`)
		p.text(appI18n.T(ctx, "Preview"))
		p.raw(`</summary><div class="preview">`)
		p.render(Markdown(rubric.Markdown(rs)))
		p.raw(`</div></details>`)
		p.postButton(sessionPath(d, "/question-prompt"), appI18n.T(ctx, "GenerateQuestionPrompt"), "primary")
	}
	p.postButton(sessionPath(d, "/back"), appI18n.T(ctx, "Back"), "secondary")
}

// tableEditor renders the record set as a grid of inputs named cell_<row>_<col>.
func tableEditor(p *page, d SessionData, rs *rubric.RecordSet) {
	ctx := p.ctx
	p.form(sessionPath(d, "/table/edit"), "")
	p.rawf(`<input type="hidden" name="rows" value="%d">`, rs.Len())
	p.raw(`<table class="grid"><thead><tr>`)
	for c, name := range rs.Columns {
		p.rawf(`<th><input type="hidden" name="col_%d" value="%s">`, c, attr(name))
		p.text(name)
		p.raw(`</th>`)
	}
	p.raw(`<th>`)
	p.text(appI18n.T(ctx, "Delete"))
	p.raw(`</th></tr></thead><tbody>`)
	for r, row := range rs.Rows {
		p.raw(`<tr>`)
		for c, v := range row {
			p.rawf(`<td><input name="cell_%d_%d" value="%s"></td>`, r, c, attr(v))
		}
		p.rawf(`<td><input type="checkbox" name="delete_%d" value="1"></td>`, r)
		p.raw(`</tr>`)
	}
	p.raw(`</tbody></table><p><label><input type="checkbox" name="add_row" value="1"> `)
	p.text(appI18n.T(ctx, "AddRow"))
	p.raw(`</label></p>`)
	p.button(appI18n.T(ctx, "SaveTable"), "primary")
	p.raw(`</form>`)
}

func questionPromptPhase(p *page, d SessionData) {
	ctx := p.ctx

	p.raw(`<h2>`)
	p.text(appI18n.T(ctx, "QuestionPromptTitle"))
	p.raw(`</h2>`)
	promptBlock(p, d, d.QuestionPrompt, "question-prompt")

	p.raw(`<h2>`)
	p.text(appI18n.T(ctx, "PasteExamTitle"))
	p.raw(`</h2>`)
	p.form(sessionPath(d, "/exam"), "")
	p.textarea("exam", 14, d.Session.Exam)
	p.button(appI18n.T(ctx, "SaveExam"), "primary")
	p.raw(`</form>`)

	if d.Session.Exam != "" {
		p.raw(`<p>`)
		downloadLink(p, d, "exam.txt", "DownloadExam")
		p.raw(`</p><div class="preview">`)
		p.render(Markdown(d.Session.Exam))
		p.raw(`</div>`)
	}

	p.postButton(sessionPath(d, "/back"), appI18n.T(ctx, "Back"), "secondary")
	p.postButton(sessionPath(d, "/reset"), appI18n.T(ctx, "Reset"), "danger")
}

// IndexPage lists the teacher's drafting sessions.
func IndexPage(sessions []workflow.Session, chatURL string) templ.Component {
	return component(func(p *page) {
		ctx := p.ctx
		title := appI18n.T(ctx, "Sessions")
		p.render(Layout(title, chatURL, component(func(p *page) {
			p.raw(`<h1>`)
			p.text(title)
			p.raw(`</h1><p>`)
			p.text(appI18n.Tp(ctx, "SessionCount", len(sessions)))
			p.raw(`</p>`)
			p.postButton("/sessions", appI18n.T(ctx, "NewSession"), "primary")

			if len(sessions) == 0 {
				p.raw(`<p>`)
				p.text(appI18n.T(ctx, "NoSessions"))
				p.raw(`</p>`)
				return
			}

			p.raw(`<table class="grid"><thead><tr><th>`)
			p.text(appI18n.T(ctx, "Phase"))
			p.raw(`</th><th>`)
			p.text(appI18n.T(ctx, "Subject"))
			p.raw(`</th><th>`)
			p.text(appI18n.T(ctx, "UpdatedAt"))
			p.raw(`</th><th></th></tr></thead><tbody>`)
			for _, s := range sessions {
				p.rawf(`<tr><td><a href="%s">`, attr(path(ctx, "/sessions/"+s.ID)))
				p.text(s.Phase.Step() + " " + appI18n.T(ctx, phaseMsgID(s.Phase)))
				p.raw(`</a></td><td>`)
				p.text(s.Meta.Grade + " " + s.Meta.Subject)
				p.raw(`</td><td>`)
				p.text(s.UpdatedAt.Local().Format(time.DateTime))
				p.raw(`</td><td>`)
				p.postButton("/sessions/"+s.ID+"/delete", appI18n.T(ctx, "Delete"), "danger")
				p.raw(`</td></tr>`)
			}
			p.raw(`</tbody></table>`)
		})))
	})
}
