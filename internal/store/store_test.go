package store

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/pavelanni/examdraft/internal/model"
	"github.com/pavelanni/examdraft/internal/rubric"
	"github.com/pavelanni/examdraft/internal/workflow"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestUser(t *testing.T, s *Store, username string) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{
		Username:     username,
		DisplayName:  "Teacher " + username,
		PasswordHash: "hash",
		Role:         model.UserRoleTeacher,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("insertTestUser: %v", err)
	}
	return id
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	id := insertTestUser(t, s, "lin")

	u, err := s.GetUserByUsername("lin")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u == nil || u.ID != id || u.Role != model.UserRoleTeacher || !u.Active {
		t.Fatalf("unexpected user: %+v", u)
	}

	// Not found.
	u, err = s.GetUserByUsername("nobody")
	if err != nil || u != nil {
		t.Errorf("expected nil, nil for missing user, got %+v, %v", u, err)
	}

	// Duplicate usernames are rejected.
	_, err = s.CreateUser(model.User{Username: "lin", PasswordHash: "x", Role: model.UserRoleTeacher})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}

	active, err := s.ToggleUserActive(id)
	if err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	u, _ = s.GetUserByID(id)
	if active || u.Active {
		t.Error("expected user to be inactive after toggle")
	}
	if active, _ := s.ToggleUserActive(id); !active {
		t.Error("expected second toggle to reactivate the user")
	}
	if _, err := s.ToggleUserActive(999); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}

	insertTestUser(t, s, "chen")
	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[0].Username != "lin" {
		t.Errorf("unexpected users: %+v", users)
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	uid := insertTestUser(t, s, "lin")

	token, err := s.CreateAuthSession(uid)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char hex token, got %d chars", len(token))
	}

	sess, err := s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess == nil || sess.UserID != uid {
		t.Fatalf("unexpected auth session: %+v", sess)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, err = s.GetAuthSession(token)
	if err != nil || sess != nil {
		t.Errorf("expected deleted session to be gone, got %+v, %v", sess, err)
	}

	// Expired sessions are not returned.
	past := time.Now().Add(-time.Hour)
	if _, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		"old", uid, past, past,
	); err != nil {
		t.Fatalf("insert expired: %v", err)
	}
	sess, err = s.GetAuthSession("old")
	if err != nil || sess != nil {
		t.Errorf("expected expired session to be nil, got %+v, %v", sess, err)
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	s := newTestStore(t)
	uid := insertTestUser(t, s, "lin")

	past := time.Now().Add(-time.Hour)
	for _, id := range []string{"old1", "old2"} {
		if _, err := s.db.Exec(
			`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			id, uid, past, past,
		); err != nil {
			t.Fatalf("insert expired: %v", err)
		}
	}
	live, err := s.CreateAuthSession(uid)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}

	n, err := s.CleanupExpiredSessions()
	if err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d sessions, want 2", n)
	}
	if sess, _ := s.GetAuthSession(live); sess == nil {
		t.Error("live session was removed")
	}
}

func TestDeactivateSignsOut(t *testing.T) {
	s := newTestStore(t)
	uid := insertTestUser(t, s, "lin")

	token, err := s.CreateAuthSession(uid)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if _, err := s.ToggleUserActive(uid); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	if sess, err := s.GetAuthSession(token); err != nil || sess != nil {
		t.Errorf("expected deactivated user to be signed out, got %+v, %v", sess, err)
	}
}

func testSession(userID int64) workflow.Session {
	ws := workflow.New(userID)
	ws.Phase = workflow.PhaseReviewTable
	ws.Meta = model.ExamMeta{Grade: "三年級", Subject: "數學", Mode: "模式 A：適中", Types: []string{"單選題", "填充題"}}
	ws.Content = "=== 檔案：lesson.txt ===\n分數"
	ws.Table = rubric.NewRecordSet(
		[]string{"單元", "對應題型", "預計配分"},
		[][]string{{"1", "單選題", "40"}, {"2", "填充題", "60"}},
	)
	ws.UpdatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return ws
}

func TestWorkflowSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	uid := insertTestUser(t, s, "lin")

	ws := testSession(uid)
	if err := s.SaveSession(ws); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := s.GetSession(ws.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.Phase != ws.Phase || got.Content != ws.Content || got.UserID != uid {
		t.Errorf("unexpected session: %+v", got)
	}
	if !reflect.DeepEqual(got.Meta, ws.Meta) {
		t.Errorf("Meta = %+v, want %+v", got.Meta, ws.Meta)
	}
	if !reflect.DeepEqual(got.Table, ws.Table) {
		t.Errorf("Table = %+v, want %+v", got.Table, ws.Table)
	}
	if !got.UpdatedAt.Equal(ws.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, ws.UpdatedAt)
	}

	// Saving again updates in place.
	ws.Phase = workflow.PhaseQuestionPrompt
	ws.Exam = "一、選擇題"
	ws.Table = nil
	if err := s.SaveSession(ws); err != nil {
		t.Fatalf("SaveSession update: %v", err)
	}
	got, _ = s.GetSession(ws.ID)
	if got.Phase != workflow.PhaseQuestionPrompt || got.Exam != "一、選擇題" || got.Table != nil {
		t.Errorf("update not applied: %+v", got)
	}
	count, _ := s.SessionCount()
	if count != 1 {
		t.Errorf("expected 1 session, got %d", count)
	}

	// Missing.
	got, err = s.GetSession("missing")
	if err != nil || got != nil {
		t.Errorf("expected nil, nil for missing session, got %+v, %v", got, err)
	}
}

func TestListAndDeleteSessions(t *testing.T) {
	s := newTestStore(t)
	lin := insertTestUser(t, s, "lin")
	chen := insertTestUser(t, s, "chen")

	older := testSession(lin)
	newer := testSession(lin)
	newer.UpdatedAt = older.UpdatedAt.Add(time.Hour)
	other := testSession(chen)
	for _, ws := range []workflow.Session{older, newer, other} {
		if err := s.SaveSession(ws); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	list, err := s.ListSessions(lin)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	if list[0].ID != newer.ID {
		t.Errorf("expected newest session first, got %s", list[0].ID)
	}

	if err := s.DeleteSession(newer.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	list, _ = s.ListSessions(lin)
	if len(list) != 1 || list[0].ID != older.ID {
		t.Errorf("unexpected sessions after delete: %+v", list)
	}
}

func TestExports(t *testing.T) {
	s := newTestStore(t)
	lin := insertTestUser(t, s, "lin")
	chen := insertTestUser(t, s, "chen")

	recs := []model.ExportRecord{
		{SessionID: "a", UserID: lin, Kind: model.ExportReviewPrompt, Filename: "review.txt", Bytes: 120},
		{SessionID: "a", UserID: lin, Kind: model.ExportSpreadsheet, Filename: "review.xlsx", Bytes: 6000},
		{SessionID: "b", UserID: chen, Kind: model.ExportExam, Filename: "exam.txt", Bytes: 40},
	}
	for _, r := range recs {
		if _, err := s.RecordExport(r); err != nil {
			t.Fatalf("RecordExport: %v", err)
		}
	}

	mine, err := s.ListExports(lin)
	if err != nil {
		t.Fatalf("ListExports: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 exports, got %d", len(mine))
	}
	if mine[0].Kind != model.ExportSpreadsheet || mine[0].Bytes != 6000 {
		t.Errorf("expected newest export first, got %+v", mine[0])
	}
	if mine[0].CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	all, _ := s.ListExports(0)
	if len(all) != 3 {
		t.Errorf("expected 3 exports in total, got %d", len(all))
	}
}

func TestLastMeta(t *testing.T) {
	s := newTestStore(t)

	meta, err := s.GetLastMeta(1)
	if err != nil {
		t.Fatalf("GetLastMeta: %v", err)
	}
	if meta.Complete() {
		t.Errorf("expected empty meta, got %+v", meta)
	}

	want := model.ExamMeta{Grade: "五年級", Subject: "英語", Mode: "模式 B：困難", Types: []string{"單選題"}}
	if err := s.SetLastMeta(1, want); err != nil {
		t.Fatalf("SetLastMeta: %v", err)
	}
	got, err := s.GetLastMeta(1)
	if err != nil {
		t.Fatalf("GetLastMeta: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GetLastMeta = %+v, want %+v", got, want)
	}

	// Metadata upsert.
	if err := s.SetMetadata("k", "v1"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata("k", "v2"); err != nil {
		t.Fatalf("SetMetadata update: %v", err)
	}
	if v, _ := s.GetMetadata("k"); v != "v2" {
		t.Errorf("expected v2, got %q", v)
	}
}
