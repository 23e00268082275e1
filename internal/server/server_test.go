package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"market-tracker/internal/models"
	"market-tracker/internal/resilience"
)

type staticAlerts []models.Alert

func (a staticAlerts) List(context.Context) []models.Alert { return a }

func newTestServer(t *testing.T, alerts AlertLister) http.Handler {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>dashboard</html>"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "static"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "static", "app.js"), []byte("console.log(1)"), 0644); err != nil {
		t.Fatal(err)
	}
	return New(Config{Addr: ":0", StaticDir: dir}, alerts, zerolog.Nop()).Handler()
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestSecurityHeaders(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(h, http.MethodGet, "/")

	want := map[string]string{
		"Strict-Transport-Security":    "max-age=63072000; includeSubDomains; preload",
		"X-Frame-Options":              "DENY",
		"X-Content-Type-Options":       "nosniff",
		"Referrer-Policy":              "strict-origin-when-cross-origin",
		"Access-Control-Allow-Methods": "GET",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "connect-src 'self' https://finnhub.io") {
		t.Errorf("CSP = %q", csp)
	}
	if pp := rec.Header().Get("Permissions-Policy"); !strings.Contains(pp, "camera=()") {
		t.Errorf("Permissions-Policy = %q", pp)
	}
}

func TestServesStaticFiles(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(h, http.MethodGet, "/static/app.js")
	if rec.Code != http.StatusOK || rec.Body.String() != "console.log(1)" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestSPAFallback(t *testing.T) {
	h := newTestServer(t, nil)
	for _, p := range []string{"/", "/alerts", "/charts/bitcoin", "/static"} {
		rec := do(h, http.MethodGet, p)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d", p, rec.Code)
			continue
		}
		body, _ := io.ReadAll(rec.Body)
		if string(body) != "<html>dashboard</html>" {
			t.Errorf("%s: body %q", p, body)
		}
	}
}

func TestRejectsWrites(t *testing.T) {
	h := newTestServer(t, staticAlerts{})
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rec := do(h, m, "/api/alerts")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: status %d", m, rec.Code)
		}
		if rec.Header().Get("Allow") != "GET, HEAD" {
			t.Errorf("%s: Allow = %q", m, rec.Header().Get("Allow"))
		}
	}
	if rec := do(h, http.MethodHead, "/"); rec.Code != http.StatusOK {
		t.Errorf("HEAD: status %d", rec.Code)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	alerts := staticAlerts{
		{ID: "a1", Symbol: "BINANCE:BTCUSDT", Name: "Bitcoin", Type: models.AlertAbove, Price: 60000},
	}
	h := newTestServer(t, alerts)
	rec := do(h, http.MethodGet, "/api/alerts")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type %q", ct)
	}
	var got []models.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a1" || got[0].TriggeredAt != nil {
		t.Errorf("alerts = %+v", got)
	}
}

func TestAlertsEndpointEmpty(t *testing.T) {
	h := newTestServer(t, staticAlerts(nil))
	rec := do(h, http.MethodGet, "/api/alerts")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestNoIndexIsNotFound(t *testing.T) {
	h := New(Config{StaticDir: t.TempDir()}, nil, zerolog.Nop()).Handler()
	if rec := do(h, http.MethodGet, "/anything"); rec.Code != http.StatusNotFound {
		t.Errorf("status %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := resilience.NewHealthMonitor(nil)
	h.Register("storage", func(context.Context) resilience.ComponentHealth {
		return resilience.ComponentHealth{Status: resilience.HealthStatusUnhealthy, Message: "down"}
	})
	handler := New(Config{StaticDir: t.TempDir(), Health: h}, nil, zerolog.Nop()).Handler()

	rec := do(handler, http.MethodGet, "/api/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
	var report resilience.HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Status != resilience.HealthStatusUnhealthy || len(report.Components) != 1 {
		t.Errorf("report = %+v", report)
	}
}
