package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examdraft/internal/handler/views"
	appI18n "github.com/pavelanni/examdraft/internal/i18n"
	"github.com/pavelanni/examdraft/internal/model"
	"github.com/pavelanni/examdraft/internal/store"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
	csrfFormField     = "csrf_token"

	// formOverhead is the room left for form fields and multipart framing on
	// top of the upload limit.
	formOverhead = 1 << 20
	// multipartMemory is how much of a multipart body is kept in memory; the
	// rest is spooled to temporary files.
	multipartMemory = 8 << 20
)

// dummyHash keeps the login path equally slow for unknown usernames.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("examdraft"), bcrypt.DefaultCost)

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, maxAge int, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cookiePath(),
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) forbidden(w http.ResponseWriter, r *http.Request, hintID string) {
	ctx := r.Context()
	render(w, r, http.StatusForbidden, views.ErrorPage(appI18n.T(ctx, "ErrForbidden"), appI18n.T(ctx, hintID)))
}

// limitBody caps every request body at the upload limit.
func (h *Handler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit())
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) bodyLimit() int64 {
	return h.config.MaxUploadMB<<20 + formOverhead
}

func (h *Handler) tooLarge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	msg := appI18n.Td(ctx, "ErrUploadTooLarge", map[string]any{"MaxMB": h.config.MaxUploadMB})
	render(w, r, http.StatusRequestEntityTooLarge, views.ErrorPage(appI18n.T(ctx, "UploadMaterials"), msg))
}

// parseForm reads an unsafe request's body once, urlencoded or multipart.
// It reports false after answering an oversized body itself.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if r.ContentLength > h.bodyLimit() {
		slog.Warn("request body too large", "path", r.URL.Path, "length", r.ContentLength)
		h.tooLarge(w, r)
		return false
	}
	var err error
	if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/") {
		err = r.ParseMultipartForm(multipartMemory)
	} else {
		err = r.ParseForm()
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		slog.Warn("request body too large", "path", r.URL.Path, "limit", tooBig.Limit)
		h.tooLarge(w, r)
		return false
	}
	return true
}

// csrfMiddleware implements double-submit tokens: every response rotates the
// cookie, and unsafe requests must echo the cookie in the csrf_token field.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !safeMethod(r.Method) {
			if !h.parseForm(w, r) {
				return
			}
			if !validCSRF(r) {
				slog.Warn("csrf check failed", "method", r.Method, "path", r.URL.Path)
				h.forbidden(w, r, "ErrCSRF")
				return
			}
		}

		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			h.serverError(w, r, "failed to generate csrf token", err)
			return
		}
		token := base64.URLEncoding.EncodeToString(b)
		// Forms read the token from the page, so the cookie stays visible to scripts.
		h.setCookie(w, csrfCookieName, token, 0, false)

		next.ServeHTTP(w, r.WithContext(model.ContextWithCSRFToken(r.Context(), token)))
	})
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

func validCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	form := r.FormValue(csrfFormField)
	return subtle.ConstantTimeCompare([]byte(form), []byte(cookie.Value)) == 1
}

// requireAuth resolves the session cookie to an active user or redirects to
// the login page.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := h.currentUser(r)
		if user == nil {
			http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithUser(r.Context(), user)))
	})
}

func (h *Handler) currentUser(r *http.Request) *model.User {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	sess, err := h.store.GetAuthSession(cookie.Value)
	if err != nil {
		slog.Error("failed to get auth session", "error", err)
		return nil
	}
	if sess == nil {
		return nil
	}
	user, err := h.store.GetUserByID(sess.UserID)
	if err != nil {
		slog.Error("failed to get user", "user_id", sess.UserID, "error", err)
		return nil
	}
	if user == nil || !user.Active {
		return nil
	}
	return user
}

// requireRole rejects users whose role is not in allowed.
func (h *Handler) requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := model.UserFromContext(r.Context()); user != nil {
				for _, role := range allowed {
					if user.Role == role {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			h.forbidden(w, r, "ErrForbiddenHint")
		})
	}
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.currentUser(r) != nil {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return
	}
	render(w, r, http.StatusOK, views.LoginPage(""))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	user, err := h.store.GetUserByUsername(username)
	if err != nil {
		h.serverError(w, r, "failed to get user", err)
		return
	}
	hash := dummyHash
	if user != nil {
		hash = []byte(user.PasswordHash)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil || user == nil || !user.Active {
		slog.Info("login failed", "username", username)
		render(w, r, http.StatusUnauthorized, views.LoginPage(appI18n.T(r.Context(), "LoginError")))
		return
	}

	token, err := h.store.CreateAuthSession(user.ID)
	if err != nil {
		h.serverError(w, r, "failed to create auth session", err)
		return
	}
	h.setCookie(w, sessionCookieName, token, int(store.AuthSessionTTL.Seconds()), true)

	slog.Info("user logged in", "user_id", user.ID, "username", user.Username)
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := h.store.DeleteAuthSession(cookie.Value); err != nil {
			slog.Warn("failed to delete auth session", "error", err)
		}
	}
	h.setCookie(w, sessionCookieName, "", -1, true)
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}
