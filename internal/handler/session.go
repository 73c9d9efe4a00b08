package handler

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examdraft/internal/extract"
	"github.com/pavelanni/examdraft/internal/handler/views"
	appI18n "github.com/pavelanni/examdraft/internal/i18n"
	"github.com/pavelanni/examdraft/internal/model"
	"github.com/pavelanni/examdraft/internal/prompts"
	"github.com/pavelanni/examdraft/internal/rubric"
	"github.com/pavelanni/examdraft/internal/workflow"
)

func (h *Handler) sessionURL(id string) string {
	return h.path("/sessions/" + id)
}

// loadSession fetches the session named in the URL and checks that the
// current user may see it. It writes the error response itself.
func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (workflow.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	ws, err := h.store.GetSession(id)
	if err != nil {
		h.serverError(w, r, "failed to load session", err)
		return workflow.Session{}, false
	}
	user := model.UserFromContext(r.Context())
	if ws == nil || (ws.UserID != user.ID && user.Role != model.UserRoleAdmin) {
		ctx := r.Context()
		render(w, r, http.StatusNotFound, views.ErrorPage(appI18n.T(ctx, "ErrNotFound"), appI18n.T(ctx, "ErrNotFoundHint")))
		return workflow.Session{}, false
	}
	return *ws, true
}

// sessionData prepares the phase page, filling the phase 1 form from the
// session, then from the user's last choices.
func (h *Handler) sessionData(r *http.Request, ws workflow.Session) views.SessionData {
	d := views.SessionData{
		Session:     ws,
		ChatURL:     h.config.ChatURL,
		MaxUploadMB: h.config.MaxUploadMB,
		Grade:       ws.Meta.Grade,
		Subject:     ws.Meta.Subject,
		Mode:        ws.Meta.Mode,
		Types:       ws.Meta.Types,
	}

	if d.Grade == "" && d.Subject == "" {
		last, err := h.store.GetLastMeta(ws.UserID)
		if err != nil {
			slog.Warn("failed to load last exam settings", "user_id", ws.UserID, "error", err)
		}
		d.Grade, d.Subject, d.Mode, d.Types = last.Grade, last.Subject, last.Mode, last.Types
	}
	if s := r.URL.Query().Get("subject"); prompts.IsOneOf(s, prompts.Subjects) && s != d.Subject {
		d.Subject = s
		d.Types = nil
	}
	if d.Subject == "" {
		d.Subject = prompts.Subjects[0]
	}

	var err error
	switch ws.Phase {
	case workflow.PhaseReviewPrompt:
		d.ReviewPrompt, err = prompts.BuildReviewPrompt(ws.Meta, ws.Content)
	case workflow.PhaseQuestionPrompt:
		d.QuestionPrompt, err = prompts.BuildQuestionPrompt(ws.Meta, ws.Table)
	}
	if err != nil {
		slog.Error("failed to build prompt", "session_id", ws.ID, "phase", ws.Phase, "error", err)
		d.Error = appI18n.T(r.Context(), "ErrInternal")
	}
	return d
}

func (h *Handler) renderSession(w http.ResponseWriter, r *http.Request, status int, d views.SessionData) {
	render(w, r, status, views.SessionPage(d))
}

// apply runs one workflow action, persists the result and redirects back to
// the session page. Rejected actions re-render the page with the reason.
func (h *Handler) apply(w http.ResponseWriter, r *http.Request, ws workflow.Session, a workflow.Action) {
	next, err := h.machine.Apply(ws, a)
	if err != nil {
		status, msgID := actionError(err)
		slog.Info("action rejected", "session_id", ws.ID, "action", a.Name(), "phase", ws.Phase, "error", err)
		d := h.sessionData(r, ws)
		d.Error = appI18n.T(r.Context(), msgID)
		h.renderSession(w, r, status, d)
		return
	}
	if err := h.store.SaveSession(next); err != nil {
		h.serverError(w, r, "failed to save session", err)
		return
	}
	slog.Debug("action applied", "session_id", ws.ID, "action", a.Name(), "from", ws.Phase, "to", next.Phase)
	http.Redirect(w, r, h.sessionURL(ws.ID), http.StatusSeeOther)
}

func (h *Handler) handleNewSession(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	ws := workflow.New(user.ID)
	if err := h.store.SaveSession(ws); err != nil {
		h.serverError(w, r, "failed to create session", err)
		return
	}
	slog.Info("created drafting session", "session_id", ws.ID, "user_id", user.ID)
	http.Redirect(w, r, h.sessionURL(ws.ID), http.StatusSeeOther)
}

func (h *Handler) handleSessionPage(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	h.renderSession(w, r, http.StatusOK, h.sessionData(r, ws))
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	// The body was already read and capped by the CSRF middleware.
	if !h.parseForm(w, r) {
		return
	}
	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["files"]
	}
	var total int64
	for _, fh := range headers {
		total += fh.Size
	}
	if total > h.config.MaxUploadMB<<20 {
		d := h.sessionData(r, ws)
		d.Error = appI18n.Td(r.Context(), "ErrUploadTooLarge", map[string]any{"MaxMB": h.config.MaxUploadMB})
		h.renderSession(w, r, http.StatusRequestEntityTooLarge, d)
		return
	}

	var files []extract.File
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.serverError(w, r, "failed to open upload", err)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			h.serverError(w, r, "failed to read upload", err)
			return
		}
		files = append(files, extract.File{Name: fh.Filename, Data: data})
	}
	if len(files) == 0 {
		d := h.sessionData(r, ws)
		d.Error = appI18n.T(r.Context(), "ErrNoFiles")
		h.renderSession(w, r, http.StatusUnprocessableEntity, d)
		return
	}

	text, err := h.extractor.Extract(r.Context(), files)
	if err != nil {
		h.serverError(w, r, "text extraction failed", err)
		return
	}
	slog.Info("extracted teaching materials", "session_id", ws.ID, "files", len(files), "chars", len([]rune(text)))
	h.apply(w, r, ws, workflow.ExtractContent{Text: text})
}

// metaFromForm keeps only values offered by the catalogue.
func metaFromForm(r *http.Request) model.ExamMeta {
	var meta model.ExamMeta
	if v := r.FormValue("grade"); prompts.IsOneOf(v, prompts.Grades) {
		meta.Grade = v
	}
	if v := r.FormValue("subject"); prompts.IsOneOf(v, prompts.Subjects) {
		meta.Subject = v
	}
	if v := r.FormValue("mode"); prompts.IsOneOf(v, prompts.Modes) {
		meta.Mode = v
	}
	allowed := prompts.QuestionTypes(meta.Subject)
	for _, t := range r.Form["types"] {
		if prompts.IsOneOf(t, allowed) && !prompts.IsOneOf(t, meta.Types) {
			meta.Types = append(meta.Types, t)
		}
	}
	return meta
}

func (h *Handler) handleReviewPrompt(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	meta := metaFromForm(r)

	// Keep the teacher's text edits even if the settings are incomplete.
	if content, ok := r.Form["content"]; ok && len(content) > 0 && content[0] != ws.Content {
		edited, err := h.machine.Apply(ws, workflow.EditContent{Text: content[0]})
		if err == nil {
			if err := h.store.SaveSession(edited); err != nil {
				h.serverError(w, r, "failed to save session", err)
				return
			}
			ws = edited
		}
	}

	next, err := h.machine.Apply(ws, workflow.GenerateReviewPrompt{Meta: meta})
	if err != nil {
		status, msgID := actionError(err)
		d := h.sessionData(r, ws)
		d.Grade, d.Subject, d.Mode, d.Types = meta.Grade, meta.Subject, meta.Mode, meta.Types
		if d.Subject == "" {
			d.Subject = prompts.Subjects[0]
		}
		d.Error = appI18n.T(r.Context(), msgID)
		h.renderSession(w, r, status, d)
		return
	}
	if err := h.store.SaveSession(next); err != nil {
		h.serverError(w, r, "failed to save session", err)
		return
	}
	if err := h.store.SetLastMeta(next.UserID, next.Meta); err != nil {
		slog.Warn("failed to remember exam settings", "user_id", next.UserID, "error", err)
	}
	http.Redirect(w, r, h.sessionURL(ws.ID), http.StatusSeeOther)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if ws, ok := h.loadSession(w, r); ok {
		h.apply(w, r, ws, workflow.ConfirmReviewPrompt{})
	}
}

func (h *Handler) handlePasteTable(w http.ResponseWriter, r *http.Request) {
	if ws, ok := h.loadSession(w, r); ok {
		h.apply(w, r, ws, workflow.PasteTable{Markdown: r.FormValue("markdown")})
	}
}

// maxTableRows bounds the rows and columns the table editor accepts.
const maxTableRows = 500

// tableFromForm rebuilds the edited grid posted by the table editor.
func tableFromForm(r *http.Request) (*rubric.RecordSet, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	n, err := strconv.Atoi(r.FormValue("rows"))
	if err != nil || n < 0 || n > maxTableRows {
		return nil, fmt.Errorf("invalid row count %q", r.FormValue("rows"))
	}

	var columns []string
	for c := 0; c < maxTableRows; c++ {
		name, ok := r.Form["col_"+strconv.Itoa(c)]
		if !ok {
			break
		}
		columns = append(columns, strings.TrimSpace(name[0]))
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns")
	}

	var rows [][]string
	for i := 0; i < n; i++ {
		if r.FormValue(fmt.Sprintf("delete_%d", i)) != "" {
			continue
		}
		row := make([]string, len(columns))
		for c := range columns {
			row[c] = strings.TrimSpace(r.FormValue(fmt.Sprintf("cell_%d_%d", i, c)))
		}
		rows = append(rows, row)
	}
	if r.FormValue("add_row") != "" {
		rows = append(rows, make([]string, len(columns)))
	}
	return rubric.NewRecordSet(columns, rows), nil
}

func (h *Handler) handleEditTable(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	rs, err := tableFromForm(r)
	if err != nil {
		slog.Warn("invalid table edit", "session_id", ws.ID, "error", err)
		http.Error(w, "invalid table", http.StatusBadRequest)
		return
	}
	h.apply(w, r, ws, workflow.EditTable{Table: rs})
}

func (h *Handler) handleQuestionPrompt(w http.ResponseWriter, r *http.Request) {
	if ws, ok := h.loadSession(w, r); ok {
		h.apply(w, r, ws, workflow.GenerateQuestionPrompt{})
	}
}

func (h *Handler) handlePasteExam(w http.ResponseWriter, r *http.Request) {
	if ws, ok := h.loadSession(w, r); ok {
		h.apply(w, r, ws, workflow.PasteExam{Text: r.FormValue("exam")})
	}
}

func (h *Handler) handleBack(w http.ResponseWriter, r *http.Request) {
	if ws, ok := h.loadSession(w, r); ok {
		h.apply(w, r, ws, workflow.Back{})
	}
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if ws, ok := h.loadSession(w, r); ok {
		h.apply(w, r, ws, workflow.Reset{})
	}
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteSession(ws.ID); err != nil {
		h.serverError(w, r, "failed to delete session", err)
		return
	}
	slog.Info("deleted drafting session", "session_id", ws.ID)
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}
