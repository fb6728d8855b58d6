package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/astropulse/internal/metrics"
	"github.com/hitoshi/astropulse/internal/middleware"
)

type stubValidator struct {
	ok bool
}

func (v stubValidator) Validate(string, map[string]string, string) bool { return v.ok }

func newTestRouter(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = newTestLogger(&bytes.Buffer{})
	}
	if deps.Engine == nil {
		deps.Engine = &mockEngine{}
	}
	if deps.ReportDir == "" {
		deps.ReportDir = t.TempDir()
	}
	return NewRouter(deps)
}

func TestNewRouter_Routes(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.RecordMessage("initial")

	router := newTestRouter(t, &RouterDeps{Gatherer: reg})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"health", http.MethodGet, "/health", http.StatusOK, "ok"},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "astropulse_messages_total"},
		{"unknown static", http.MethodGet, "/static/nothing.pdf", http.StatusNotFound, ""},
		{"webhook GET", http.MethodGet, "/bot", http.StatusMethodNotAllowed, ""},
		{"unknown path", http.MethodGet, "/api/feeds", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("%s %s body does not contain %q", tt.method, tt.path, tt.wantBody)
			}
		})
	}
}

func TestNewRouter_Webhook(t *testing.T) {
	engine := &mockEngine{}
	router := newTestRouter(t, &RouterDeps{Engine: engine})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newWebhookRequest(url.Values{"From": {"whatsapp:+911234567890"}, "Body": {"hi"}}))

	if rec.Code != http.StatusOK || rec.Body.String() != "success" {
		t.Errorf("POST /bot = %d %q, want 200 success", rec.Code, rec.Body.String())
	}
	if len(engine.calls) != 1 || engine.calls[0].sender != "whatsapp:+911234567890" {
		t.Errorf("calls = %+v", engine.calls)
	}
}

func TestNewRouter_StaticHasSecurityHeaders(t *testing.T) {
	dir := t.TempDir()
	name := writeReport(t, dir)
	router := newTestRouter(t, &RouterDeps{ReportDir: dir})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/"+name, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected X-Content-Type-Options header on static route")
	}
}

func TestNewRouter_SignatureValidation(t *testing.T) {
	engine := &mockEngine{}
	router := newTestRouter(t, &RouterDeps{
		Engine:             engine,
		SignatureValidator: stubValidator{ok: false},
		WebhookURL:         "https://astro.example.com/bot",
	})

	req := newWebhookRequest(url.Values{"From": {"whatsapp:+911234567890"}, "Body": {"hi"}})
	req.Header.Set("X-Twilio-Signature", "forged")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if len(engine.calls) != 0 {
		t.Errorf("engine should not be called, got %d calls", len(engine.calls))
	}
}

func TestNewRouter_RateLimitPerSender(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:            rate.Limit(0.01),
		Burst:           1,
		CleanupInterval: time.Minute,
	}, newTestLogger(&bytes.Buffer{}))
	defer rl.Stop()

	engine := &mockEngine{}
	router := newTestRouter(t, &RouterDeps{Engine: engine, RateLimiter: rl})

	send := func(from string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, newWebhookRequest(url.Values{"From": {from}, "Body": {"hi"}}))
		return rec
	}

	if rec := send("whatsapp:+911111111111"); rec.Code != http.StatusOK || rec.Body.String() != "success" {
		t.Fatalf("first request = %d %q, want 200 success", rec.Code, rec.Body.String())
	}
	// 制限超過もHTTP 200で応答し、本文で失敗を示す
	if rec := send("whatsapp:+911111111111"); rec.Code != http.StatusOK || rec.Body.String() != "error" {
		t.Errorf("second request = %d %q, want 200 error", rec.Code, rec.Body.String())
	}
	if rec := send("whatsapp:+922222222222"); rec.Code != http.StatusOK || rec.Body.String() != "success" {
		t.Errorf("other sender = %d %q, want 200 success", rec.Code, rec.Body.String())
	}
	if len(engine.calls) != 2 {
		t.Errorf("engine calls = %d, want 2", len(engine.calls))
	}
}

func TestNewRouter_RecoversEnginePanic(t *testing.T) {
	engine := &mockEngine{
		handleMessageFn: func(ctx context.Context, sender, body string) error {
			panic("unexpected")
		},
	}
	router := newTestRouter(t, &RouterDeps{Engine: engine})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newWebhookRequest(url.Values{"From": {"whatsapp:+911234567890"}, "Body": {"hi"}}))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
