package handler

import (
	"bytes"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examdraft/internal/export"
	"github.com/pavelanni/examdraft/internal/handler/views"
	appI18n "github.com/pavelanni/examdraft/internal/i18n"
	"github.com/pavelanni/examdraft/internal/model"
	"github.com/pavelanni/examdraft/internal/prompts"
	"github.com/pavelanni/examdraft/internal/workflow"
)

const (
	textContentType = "text/plain; charset=utf-8"
	jsonContentType = "application/json"
)

// DefaultChatModel is written into downloaded chat requests when none is configured.
const DefaultChatModel = "gpt-4o"

type artifact struct {
	body        []byte
	contentType string
	kind        model.ExportKind
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "artifact")

	a, found, err := h.buildArtifact(ws, name)
	if err != nil {
		h.serverError(w, r, "failed to build download", err)
		return
	}
	if !found {
		ctx := r.Context()
		render(w, r, http.StatusNotFound, views.ErrorPage(appI18n.T(ctx, "ErrNotFound"), appI18n.T(ctx, "ErrArtifactUnavailable")))
		return
	}

	user := model.UserFromContext(r.Context())
	if _, err := h.store.RecordExport(model.ExportRecord{
		SessionID: ws.ID,
		UserID:    user.ID,
		Kind:      a.kind,
		Filename:  name,
		Bytes:     len(a.body),
	}); err != nil {
		slog.Warn("failed to record export", "session_id", ws.ID, "artifact", name, "error", err)
	}

	w.Header().Set("Content-Type", a.contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(a.body)))
	if _, err := w.Write(a.body); err != nil {
		slog.Error("failed to write download", "artifact", name, "error", err)
	}
}

// buildArtifact renders a downloadable file. found is false when the session
// has not reached the point where the file exists.
func (h *Handler) buildArtifact(ws workflow.Session, name string) (artifact, bool, error) {
	chatModel := h.config.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	reviewReady := ws.Phase != workflow.PhaseUpload && ws.Meta.Complete()

	switch name {
	case "review-prompt.txt", "review-prompt.json":
		if !reviewReady {
			return artifact{}, false, nil
		}
		prompt, err := prompts.BuildReviewPrompt(ws.Meta, ws.Content)
		if err != nil {
			return artifact{}, false, err
		}
		if name == "review-prompt.txt" {
			return artifact{[]byte(prompt), textContentType, model.ExportReviewPrompt}, true, nil
		}
		body, err := prompts.ChatRequestJSON(chatModel, prompt)
		return artifact{body, jsonContentType, model.ExportChatRequest}, err == nil, err

	case "question-prompt.txt", "question-prompt.json":
		if ws.Table == nil || ws.Phase != workflow.PhaseQuestionPrompt {
			return artifact{}, false, nil
		}
		prompt, err := prompts.BuildQuestionPrompt(ws.Meta, ws.Table)
		if err != nil {
			return artifact{}, false, err
		}
		if name == "question-prompt.txt" {
			return artifact{[]byte(prompt), textContentType, model.ExportQuestionPrompt}, true, nil
		}
		body, err := prompts.ChatRequestJSON(chatModel, prompt)
		return artifact{body, jsonContentType, model.ExportChatRequest}, err == nil, err

	case "review-table.xlsx":
		if ws.Table == nil {
			return artifact{}, false, nil
		}
		var buf bytes.Buffer
		if err := export.WriteXLSX(&buf, ws.Table); err != nil {
			return artifact{}, false, err
		}
		return artifact{buf.Bytes(), export.ContentType, model.ExportSpreadsheet}, true, nil

	case "exam.txt":
		if ws.Exam == "" {
			return artifact{}, false, nil
		}
		return artifact{[]byte(ws.Exam), textContentType, model.ExportExam}, true, nil
	}

	return artifact{}, false, nil
}
