package model

import (
	"context"
	"strings"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleTeacher prepares exams.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin manages accounts.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// ExamMeta holds the parameters chosen before the review prompt is generated.
type ExamMeta struct {
	Grade   string   `json:"grade"`
	Subject string   `json:"subject"`
	Mode    string   `json:"mode"`
	Types   []string `json:"types"`
}

// Complete reports whether every field needed by the review prompt is set.
func (m ExamMeta) Complete() bool {
	return strings.TrimSpace(m.Grade) != "" &&
		strings.TrimSpace(m.Subject) != "" &&
		strings.TrimSpace(m.Mode) != "" &&
		len(m.Types) > 0
}

// TypeList joins the selected question types with the enumeration comma.
func (m ExamMeta) TypeList() string {
	return strings.Join(m.Types, "、")
}

// ExportKind identifies a downloaded artifact.
type ExportKind string

const (
	ExportReviewPrompt   ExportKind = "review_prompt"
	ExportQuestionPrompt ExportKind = "question_prompt"
	ExportChatRequest    ExportKind = "chat_request"
	ExportSpreadsheet    ExportKind = "spreadsheet"
	ExportExam           ExportKind = "exam"
)

// ExportRecord is an audit entry for a download.
type ExportRecord struct {
	ID        int64      `json:"id"`
	SessionID string     `json:"session_id"`
	UserID    int64      `json:"user_id"`
	Kind      ExportKind `json:"kind"`
	Filename  string     `json:"filename"`
	Bytes     int        `json:"bytes"`
	CreatedAt time.Time  `json:"created_at"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	BasePath      string // URL prefix for sub-path deployments (e.g. "/exam")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	ChatURL       string // Link to the teacher's chat assistant
	ChatModel     string // Model name written into downloaded chat requests
	Apportion     string // Score rounding policy (remainder-to-max, largest-remainder)
	MaxUploadMB   int64  // Upload size limit for teaching materials
}
