package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examdraft/internal/extract"
	"github.com/pavelanni/examdraft/internal/handler/views"
	appI18n "github.com/pavelanni/examdraft/internal/i18n"
	"github.com/pavelanni/examdraft/internal/model"
	"github.com/pavelanni/examdraft/internal/rubric"
	"github.com/pavelanni/examdraft/internal/store"
	"github.com/pavelanni/examdraft/internal/workflow"
)

// DefaultMaxUploadMB caps the files of one upload request. The whole request
// body may exceed it by a small allowance for form fields.
const DefaultMaxUploadMB = 32

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	extractor *extract.Extractor
	machine   *workflow.Machine
	config    model.AppConfig
}

// New creates a new Handler.
func New(s *store.Store, x *extract.Extractor, cfg model.AppConfig) (*Handler, error) {
	if s == nil {
		return nil, errors.New("store is required")
	}
	if x == nil {
		x = extract.New(0)
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = DefaultMaxUploadMB
	}
	enforcer := rubric.Enforcer{Apportion: rubric.ParseApportion(cfg.Apportion)}
	return &Handler{
		store:     s,
		extractor: x,
		machine:   workflow.NewMachine(enforcer),
		config:    cfg,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.limitBody)
		r.Use(h.csrfMiddleware)
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.limitBody)
		r.Use(h.requireAuth)
		r.Use(h.csrfMiddleware)

		r.Post("/logout", h.handleLogout)
		r.Get("/", h.handleIndex)
		r.Post("/sessions", h.handleNewSession)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleSessionPage)
			r.Post("/upload", h.handleUpload)
			r.Post("/review-prompt", h.handleReviewPrompt)
			r.Post("/confirm", h.handleConfirm)
			r.Post("/table", h.handlePasteTable)
			r.Post("/table/edit", h.handleEditTable)
			r.Post("/question-prompt", h.handleQuestionPrompt)
			r.Post("/exam", h.handlePasteExam)
			r.Post("/back", h.handleBack)
			r.Post("/reset", h.handleReset)
			r.Post("/delete", h.handleDeleteSession)
			r.Get("/download/{artifact}", h.handleDownload)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireRole(model.UserRoleAdmin))
			r.Get("/admin/users", h.handleAdminUsersPage)
			r.Post("/admin/users", h.handleCreateUser)
			r.Post("/admin/users/{userID}/toggle", h.handleToggleUserActive)
			r.Get("/admin/exports", h.handleAdminExportsPage)
		})
	})
}

// BasePathMiddleware stores the configured base path in the request context
// so views can build links.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "path", r.URL.Path, "error", err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg, "path", r.URL.Path, "error", err)
	render(w, r, http.StatusInternalServerError,
		views.ErrorPage(appI18n.T(r.Context(), "ErrInternal"), appI18n.T(r.Context(), "ErrInternalHint")))
}

// actionError maps a workflow failure to a status code and message ID.
func actionError(err error) (int, string) {
	switch {
	case errors.Is(err, rubric.ErrNotATable):
		return http.StatusUnprocessableEntity, "ErrNotATable"
	case errors.Is(err, workflow.ErrIncompleteMeta):
		return http.StatusUnprocessableEntity, "ErrIncompleteMeta"
	case errors.Is(err, workflow.ErrNoContent):
		return http.StatusUnprocessableEntity, "ErrNoContent"
	case errors.Is(err, workflow.ErrNoTable):
		return http.StatusUnprocessableEntity, "ErrNoTable"
	case errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict, "ErrInvalidTransition"
	}
	return http.StatusInternalServerError, "ErrInternal"
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sessions, err := h.store.ListSessions(user.ID)
	if err != nil {
		h.serverError(w, r, "failed to list sessions", err)
		return
	}
	render(w, r, http.StatusOK, views.IndexPage(sessions, h.config.ChatURL))
}
