package handler

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/examdraft/internal/i18n"
	"github.com/pavelanni/examdraft/internal/model"
	"github.com/pavelanni/examdraft/internal/rubric"
	"github.com/pavelanni/examdraft/internal/store"
	"github.com/pavelanni/examdraft/internal/workflow"
)

const testCSRF = "test-csrf-token"

type testEnv struct {
	t       *testing.T
	store   *store.Store
	router  http.Handler
	session string
	userID  int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvConfig(t, model.AppConfig{ChatURL: "https://chat.example.com", ChatModel: "test-model"})
}

func newTestEnvConfig(t *testing.T, cfg model.AppConfig) *testEnv {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h, err := New(s, nil, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	r.Use(h.BasePathMiddleware)
	h.Routes(r)

	return &testEnv{t: t, store: s, router: r}
}

func createUser(t *testing.T, s *store.Store, username, password string, role model.UserRole) int64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	id, err := s.CreateUser(model.User{
		Username: username, DisplayName: username, PasswordHash: string(hash), Role: role, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

// loginAs creates a user and an auth session used by later requests.
func (e *testEnv) loginAs(username string, role model.UserRole) {
	e.t.Helper()
	e.userID = createUser(e.t, e.store, username, "secret", role)
	token, err := e.store.CreateAuthSession(e.userID)
	if err != nil {
		e.t.Fatalf("CreateAuthSession: %v", err)
	}
	e.session = token
}

func (e *testEnv) send(req *http.Request) *httptest.ResponseRecorder {
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRF})
	if e.session != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: e.session})
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.send(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) post(path string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", testCSRF)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.send(req)
}

func (e *testEnv) upload(path string, files map[string]string) *httptest.ResponseRecorder {
	return e.send(e.uploadRequest(path, files))
}

func (e *testEnv) uploadRequest(path string, files map[string]string) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("csrf_token", testCSRF)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			e.t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = fw.Write([]byte(content))
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (e *testEnv) newSession() string {
	e.t.Helper()
	rec := e.post("/sessions", nil)
	if rec.Code != http.StatusSeeOther {
		e.t.Fatalf("POST /sessions: status %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/sessions/") {
		e.t.Fatalf("unexpected redirect %q", loc)
	}
	return loc
}

func (e *testEnv) loadSession(path string) workflow.Session {
	e.t.Helper()
	ws, err := e.store.GetSession(strings.TrimPrefix(path, "/sessions/"))
	if err != nil || ws == nil {
		e.t.Fatalf("GetSession(%s): %v", path, err)
	}
	return *ws
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body:\n%s", rec.Code, want, rec.Body.String())
	}
}

func TestRequiresLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/")
	expectStatus(t, rec, http.StatusSeeOther)
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	createUser(t, env.store, "lin", "secret", model.UserRoleTeacher)

	rec := env.post("/login", url.Values{"username": {"lin"}, "password": {"wrong"}})
	expectStatus(t, rec, http.StatusUnauthorized)
	if !strings.Contains(rec.Body.String(), "Invalid username or password.") {
		t.Error("expected localized login error")
	}

	rec = env.post("/login", url.Values{"username": {"lin"}, "password": {"secret"}})
	expectStatus(t, rec, http.StatusSeeOther)
	var token string
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			token = c.Value
		}
	}
	if token == "" {
		t.Fatal("expected session cookie")
	}

	env.session = token
	expectStatus(t, env.get("/"), http.StatusOK)
	expectStatus(t, env.get("/login"), http.StatusSeeOther)

	expectStatus(t, env.post("/logout", nil), http.StatusSeeOther)
	expectStatus(t, env.get("/"), http.StatusSeeOther)
}

func TestCSRFRequired(t *testing.T) {
	env := newTestEnv(t)
	env.loginAs("lin", model.UserRoleTeacher)

	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: env.session})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusForbidden)
}

const pastedTable = `好的，以下是審核表：

| 單元 | 學習目標 | 對應題型 | 預計配分 |
|---|---|---|---|
| 第一單元 | 認識分數 | 單選題、是非題 | 30 |
| 第二單元 | 分數加法 | 填充題 | 30 |
| 第三單元 | 分數減法 | 簡答題或填充題 | 50 |
`

func TestDraftingFlow(t *testing.T) {
	env := newTestEnv(t)
	env.loginAs("lin", model.UserRoleTeacher)
	path := env.newSession()

	// Phase 1: upload and settings.
	expectStatus(t, env.upload(path+"/upload", map[string]string{"lesson.txt": "分數的意義\n\n\n\n分母與分子"}), http.StatusSeeOther)
	ws := env.loadSession(path)
	if !strings.HasPrefix(ws.Content, "=== 檔案：lesson.txt ===") || !strings.Contains(ws.Content, "分母與分子") {
		t.Fatalf("unexpected content %q", ws.Content)
	}

	rec := env.post(path+"/review-prompt", url.Values{
		"grade": {"三年級"}, "subject": {"數學"}, "mode": {"模式 A：適中"},
		"types":   {"單選題", "填充題", "不存在的題型"},
		"content": {ws.Content},
	})
	expectStatus(t, rec, http.StatusSeeOther)
	ws = env.loadSession(path)
	if ws.Phase != workflow.PhaseReviewPrompt {
		t.Fatalf("phase = %s, want review_prompt", ws.Phase)
	}
	if got := ws.Meta.TypeList(); got != "單選題、填充題" {
		t.Errorf("types = %q, unknown types should be dropped", got)
	}

	page := env.get(path)
	expectStatus(t, page, http.StatusOK)
	if !strings.Contains(page.Body.String(), "學習目標審核表") {
		t.Error("review prompt not shown")
	}

	rec = env.get(path + "/download/review-prompt.txt")
	expectStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "review-prompt.txt") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	rec = env.get(path + "/download/review-prompt.json")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"model": "test-model"`) {
		t.Errorf("chat request missing model:\n%s", rec.Body.String())
	}

	// Phase 2: table.
	expectStatus(t, env.post(path+"/confirm", nil), http.StatusSeeOther)

	rec = env.post(path+"/table", url.Values{"markdown": {"sorry, no table here"}})
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if !strings.Contains(rec.Body.String(), "No Markdown table found") {
		t.Error("expected localized ErrNotATable message")
	}

	expectStatus(t, env.post(path+"/table", url.Values{"markdown": {pastedTable}}), http.StatusSeeOther)
	ws = env.loadSession(path)
	if total, ok := rubric.Total(ws.Table); !ok || total != 100 {
		t.Fatalf("table total = %d, %v, want 100", total, ok)
	}
	if got := ws.Table.Rows[0][2]; got != "單選題" {
		t.Errorf("type cell = %q, want single type", got)
	}

	rec = env.get(path + "/download/review-table.xlsx")
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}

	// Edit: delete the third row and change a score; totals are re-enforced.
	form := url.Values{"rows": {"3"}, "delete_2": {"1"}}
	for c, name := range ws.Table.Columns {
		form.Set(fmt.Sprintf("col_%d", c), name)
	}
	for r, row := range ws.Table.Rows {
		for c, v := range row {
			form.Set(fmt.Sprintf("cell_%d_%d", r, c), v)
		}
	}
	form.Set("cell_0_3", "10")
	form.Set("cell_1_3", "30")
	expectStatus(t, env.post(path+"/table/edit", form), http.StatusSeeOther)
	ws = env.loadSession(path)
	if ws.Table.Len() != 2 || ws.Table.Rows[0][3] != "25" || ws.Table.Rows[1][3] != "75" {
		t.Errorf("edited table = %q", ws.Table.Rows)
	}

	// Phase 3.
	expectStatus(t, env.post(path+"/question-prompt", nil), http.StatusSeeOther)
	page = env.get(path)
	if !strings.Contains(page.Body.String(), "審核通過的審核表") {
		t.Error("question prompt not shown")
	}
	expectStatus(t, env.get(path+"/download/question-prompt.txt"), http.StatusOK)

	expectStatus(t, env.get(path+"/download/exam.txt"), http.StatusNotFound)
	expectStatus(t, env.post(path+"/exam", url.Values{"exam": {"# 三年級數學\n1. 選擇題"}}), http.StatusSeeOther)
	rec = env.get(path + "/download/exam.txt")
	expectStatus(t, rec, http.StatusOK)
	if rec.Body.String() != "# 三年級數學\n1. 選擇題" {
		t.Errorf("exam body = %q", rec.Body.String())
	}

	exports, err := env.store.ListExports(env.userID)
	if err != nil {
		t.Fatalf("ListExports: %v", err)
	}
	if len(exports) != 5 {
		t.Errorf("expected 5 recorded downloads, got %d", len(exports))
	}

	// Back to the table, then reset.
	expectStatus(t, env.post(path+"/back", nil), http.StatusSeeOther)
	if ws = env.loadSession(path); ws.Phase != workflow.PhaseReviewTable {
		t.Errorf("phase after back = %s", ws.Phase)
	}
	expectStatus(t, env.post(path+"/reset", nil), http.StatusSeeOther)
	if ws = env.loadSession(path); ws.Phase != workflow.PhaseUpload || ws.Table != nil || ws.Content != "" {
		t.Errorf("session not reset: %+v", ws)
	}

	// Settings are remembered for the next session.
	next := env.newSession()
	if !strings.Contains(env.get(next).Body.String(), `value="三年級" selected`) {
		t.Error("expected last grade to be preselected")
	}
}

func TestInvalidTransition(t *testing.T) {
	env := newTestEnv(t)
	env.loginAs("lin", model.UserRoleTeacher)
	path := env.newSession()

	rec := env.post(path+"/confirm", nil)
	expectStatus(t, rec, http.StatusConflict)

	rec = env.post(path+"/review-prompt", url.Values{"grade": {"三年級"}})
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if !strings.Contains(rec.Body.String(), "Upload materials or enter the material text first.") {
		t.Error("expected ErrNoContent message")
	}

	rec = env.post(path+"/review-prompt", url.Values{"grade": {"三年級"}, "content": {"教材"}})
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if ws := env.loadSession(path); ws.Content != "教材" {
		t.Errorf("edited content should be kept, got %q", ws.Content)
	}

	expectStatus(t, env.upload(path+"/upload", nil), http.StatusUnprocessableEntity)
	expectStatus(t, env.get(path+"/download/review-table.xlsx"), http.StatusNotFound)
	expectStatus(t, env.get(path+"/download/unknown.bin"), http.StatusNotFound)
}

func TestSessionOwnership(t *testing.T) {
	env := newTestEnv(t)
	env.loginAs("lin", model.UserRoleTeacher)
	path := env.newSession()

	env.loginAs("chen", model.UserRoleTeacher)
	expectStatus(t, env.get(path), http.StatusNotFound)
	expectStatus(t, env.post(path+"/delete", nil), http.StatusNotFound)

	env.loginAs("root", model.UserRoleAdmin)
	expectStatus(t, env.get(path), http.StatusOK)
	expectStatus(t, env.get("/sessions/does-not-exist"), http.StatusNotFound)
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	env.loginAs("lin", model.UserRoleTeacher)
	path := env.newSession()

	expectStatus(t, env.post(path+"/delete", nil), http.StatusSeeOther)
	if n, _ := env.store.SessionCount(); n != 0 {
		t.Errorf("expected no sessions, got %d", n)
	}
}

func TestAdminPages(t *testing.T) {
	env := newTestEnv(t)
	env.loginAs("lin", model.UserRoleTeacher)
	expectStatus(t, env.get("/admin/users"), http.StatusForbidden)

	env.loginAs("root", model.UserRoleAdmin)
	expectStatus(t, env.get("/admin/users"), http.StatusOK)
	expectStatus(t, env.get("/admin/exports"), http.StatusOK)

	rec := env.post("/admin/users", url.Values{"username": {"wang"}, "password": {"pw"}, "role": {"superuser"}})
	expectStatus(t, rec, http.StatusSeeOther)
	u, err := env.store.GetUserByUsername("wang")
	if err != nil || u == nil {
		t.Fatalf("user not created: %v", err)
	}
	if u.Role != model.UserRoleTeacher {
		t.Errorf("unknown role should fall back to teacher, got %q", u.Role)
	}

	expectStatus(t, env.post("/admin/users", url.Values{"username": {"wang"}, "password": {"pw"}}), http.StatusConflict)
	expectStatus(t, env.post("/admin/users", url.Values{"username": {""}}), http.StatusBadRequest)

	expectStatus(t, env.post("/admin/users/"+strconv.FormatInt(env.userID, 10)+"/toggle", nil), http.StatusBadRequest)
	expectStatus(t, env.post("/admin/users/"+strconv.FormatInt(u.ID, 10)+"/toggle", nil), http.StatusSeeOther)
	u, _ = env.store.GetUserByID(u.ID)
	if u.Active {
		t.Error("expected user to be disabled")
	}
	expectStatus(t, env.post("/admin/users/9999/toggle", nil), http.StatusNotFound)
}

func TestUploadSizeLimit(t *testing.T) {
	env := newTestEnvConfig(t, model.AppConfig{MaxUploadMB: 1})
	env.loginAs("lin", model.UserRoleTeacher)
	path := env.newSession()

	// Files over the limit but within the form allowance are rejected by the upload handler.
	rec := env.upload(path+"/upload", map[string]string{"big.txt": strings.Repeat("a", 1<<20+512<<10)})
	expectStatus(t, rec, http.StatusRequestEntityTooLarge)
	if !strings.Contains(rec.Body.String(), "The upload exceeds 1 MB.") {
		t.Errorf("expected upload limit message, got:\n%s", rec.Body.String())
	}

	huge := map[string]string{"huge.txt": strings.Repeat("a", 3<<20)}

	// Declared length over the cap is refused before reading.
	expectStatus(t, env.upload(path+"/upload", huge), http.StatusRequestEntityTooLarge)

	// Unknown length stops reading at the cap.
	req := env.uploadRequest(path+"/upload", huge)
	req.ContentLength = -1
	expectStatus(t, env.send(req), http.StatusRequestEntityTooLarge)

	// Oversized urlencoded forms are capped too.
	form := url.Values{"csrf_token": {testCSRF}, "markdown": {strings.Repeat("a", 3<<20)}}
	req = httptest.NewRequest(http.MethodPost, path+"/table", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.ContentLength = -1
	expectStatus(t, env.send(req), http.StatusRequestEntityTooLarge)

	if ws := env.loadSession(path); ws.Phase != workflow.PhaseUpload || ws.Content != "" {
		t.Errorf("rejected uploads changed the session: %+v", ws)
	}

	expectStatus(t, env.upload(path+"/upload", map[string]string{"small.txt": "分數"}), http.StatusSeeOther)
}

func TestTableFromForm(t *testing.T) {
	form := url.Values{
		"rows":     {"2"},
		"col_0":    {"單元"},
		"col_1":    {" 配分 "},
		"cell_0_0": {"A"},
		"cell_0_1": {"40"},
		"cell_1_0": {"B"},
		"add_row":  {"1"},
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rs, err := tableFromForm(req)
	if err != nil {
		t.Fatalf("tableFromForm: %v", err)
	}
	want := [][]string{{"A", "40"}, {"B", ""}, {"", ""}}
	if rs.Columns[1] != "配分" || len(rs.Rows) != 3 {
		t.Fatalf("unexpected table %v %q", rs.Columns, rs.Rows)
	}
	for i := range want {
		for j := range want[i] {
			if rs.Rows[i][j] != want[i][j] {
				t.Errorf("cell %d,%d = %q, want %q", i, j, rs.Rows[i][j], want[i][j])
			}
		}
	}

	for _, rows := range []string{"x", "-1", "501", "2000000000"} {
		t.Run("rows="+rows, func(t *testing.T) {
			bad := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("col_0=a&rows="+rows))
			bad.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			done := make(chan error, 1)
			go func() {
				_, err := tableFromForm(bad)
				done <- err
			}()
			select {
			case err := <-done:
				if err == nil {
					t.Error("expected error for invalid row count")
				}
			case <-time.After(3 * time.Second):
				t.Fatal("tableFromForm did not return")
			}
		})
	}
}
