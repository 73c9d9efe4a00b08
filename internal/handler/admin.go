package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examdraft/internal/handler/views"
	appI18n "github.com/pavelanni/examdraft/internal/i18n"
	"github.com/pavelanni/examdraft/internal/model"
	"github.com/pavelanni/examdraft/internal/store"
)

func (h *Handler) renderAdminUsers(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	users, err := h.store.ListUsers()
	if err != nil {
		h.serverError(w, r, "failed to list users", err)
		return
	}
	render(w, r, status, views.AdminUsersPage(users, errMsg))
}

func (h *Handler) handleAdminUsersPage(w http.ResponseWriter, r *http.Request) {
	h.renderAdminUsers(w, r, http.StatusOK, "")
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	displayName := strings.TrimSpace(r.FormValue("display_name"))
	password := r.FormValue("password")
	role := model.UserRole(r.FormValue("role"))

	if username == "" || password == "" {
		h.renderAdminUsers(w, r, http.StatusBadRequest, appI18n.T(r.Context(), "ErrUserFields"))
		return
	}
	if role != model.UserRoleAdmin {
		role = model.UserRoleTeacher
	}
	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		h.serverError(w, r, "failed to hash password", err)
		return
	}

	if _, err := h.store.CreateUser(model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	}); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			h.renderAdminUsers(w, r, http.StatusConflict, appI18n.Td(r.Context(), "ErrUserExists", map[string]any{"Username": username}))
			return
		}
		h.serverError(w, r, "failed to create user", err)
		return
	}

	slog.Info("created user via admin", "username", username, "role", role)
	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	if self := model.UserFromContext(r.Context()); self.ID == id {
		h.renderAdminUsers(w, r, http.StatusBadRequest, appI18n.T(r.Context(), "ErrToggleSelf"))
		return
	}

	active, err := h.store.ToggleUserActive(id)
	if errors.Is(err, store.ErrUserNotFound) {
		render(w, r, http.StatusNotFound, views.ErrorPage(appI18n.T(r.Context(), "ErrNotFound"), appI18n.T(r.Context(), "ErrNotFoundHint")))
		return
	}
	if err != nil {
		h.serverError(w, r, "failed to toggle user", err)
		return
	}
	slog.Info("toggled user via admin", "user_id", id, "active", active)

	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}

func (h *Handler) handleAdminExportsPage(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListExports(0)
	if err != nil {
		h.serverError(w, r, "failed to list exports", err)
		return
	}
	users, err := h.store.ListUsers()
	if err != nil {
		h.serverError(w, r, "failed to list users", err)
		return
	}
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Username
	}
	render(w, r, http.StatusOK, views.AdminExportsPage(records, names))
}
