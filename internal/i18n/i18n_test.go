package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "Exam Drafting Assistant" {
		t.Errorf("T(AppTitle) = %q, want 'Exam Drafting Assistant'", got)
	}

	got = T(ctx, "Back")
	if got != "Back" {
		t.Errorf("T(Back) = %q, want 'Back'", got)
	}
}

func TestTranslateTraditionalChinese(t *testing.T) {
	ctx := initLang(t, "zh-TW")

	got := T(ctx, "AppTitle")
	if got != "AI 命題助手" {
		t.Errorf("T(AppTitle) = %q, want 'AI 命題助手'", got)
	}

	got = T(ctx, "Back")
	if got != "上一步" {
		t.Errorf("T(Back) = %q, want '上一步'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "SessionCount", 1); got != "1 session" {
		t.Errorf("Tp(SessionCount, 1) = %q, want '1 session'", got)
	}
	if got := Tp(ctx, "SessionCount", 5); got != "5 sessions" {
		t.Errorf("Tp(SessionCount, 5) = %q, want '5 sessions'", got)
	}

	ctx = initLang(t, "zh-TW")
	if got := Tp(ctx, "SessionCount", 1); got != "共 1 筆" {
		t.Errorf("Tp(SessionCount, 1) = %q, want '共 1 筆'", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "TotalPoints", map[string]any{"Total": 100})
	if got != "Total: 100 points" {
		t.Errorf("Td(TotalPoints, Total=100) = %q, want 'Total: 100 points'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestFallbackToDefault(t *testing.T) {
	if err := Init("zh-TW"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := T(context.Background(), "Back"); got != "上一步" {
		t.Errorf("T without localizer = %q, want default language", got)
	}
}

func TestLocalesHaveSameKeys(t *testing.T) {
	initLang(t, "en")
	en := NewLocalizer("en")
	zh := NewLocalizer("zh-TW")

	if len(Supported()) != 2 {
		t.Fatalf("expected 2 locales, got %v", Supported())
	}
	for _, id := range []string{"AppTitle", "ErrNotATable", "ReminderPrivacy", "StepReviewTable", "DownloadXLSX"} {
		a := T(WithLocalizer(context.Background(), en), id)
		b := T(WithLocalizer(context.Background(), zh), id)
		if a == id || b == id {
			t.Errorf("%s missing in a locale (en=%q, zh-TW=%q)", id, a, b)
		}
	}
}

func TestMiddlewareNegotiates(t *testing.T) {
	if err := Init("zh-TW"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	tests := []struct {
		name   string
		url    string
		accept string
		want   string
	}{
		{"default", "/", "", "上一步"},
		{"accept language", "/", "en-US,en;q=0.9", "Back"},
		{"query wins", "/?lang=zh-TW", "en-US", "上一步"},
		{"unknown falls back", "/", "fr-FR", "上一步"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := Middleware("zh-TW")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = T(r.Context(), "Back")
			}))
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("T(Back) = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLang(t *testing.T) {
	ctx := initLang(t, "zh-TW")
	if got := Lang(ctx); got != "zh-TW" {
		t.Errorf("Lang() = %q, want zh-TW", got)
	}

	en := WithLocalizer(context.Background(), NewLocalizer("en-US,en;q=0.9"))
	if got := Lang(en); got != "en" {
		t.Errorf("Lang() = %q, want en", got)
	}

	if got := Lang(context.Background()); got != "zh-TW" {
		t.Errorf("Lang() without localizer = %q, want default zh-TW", got)
	}
}
