// Package integration provides end-to-end tests for the market tracker.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-tracker/internal/config"
	"market-tracker/internal/models"
	"market-tracker/internal/monitor"
	"market-tracker/internal/notify"
	"market-tracker/internal/quotes"
	"market-tracker/internal/resilience"
	"market-tracker/internal/scheduler"
	"market-tracker/internal/security"
	"market-tracker/internal/server"
	"market-tracker/internal/store"
)

// fakeFinnhub serves /quote from a mutable price table and records the
// token header it was called with.
type fakeFinnhub struct {
	mu     sync.Mutex
	prices map[string]float64
	tokens map[string]int
	calls  int
}

func newFakeFinnhub(prices map[string]float64) *fakeFinnhub {
	return &fakeFinnhub{prices: prices, tokens: make(map[string]int)}
}

func (f *fakeFinnhub) set(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

func (f *fakeFinnhub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls++
	f.tokens[r.Header.Get("X-Finnhub-Token")]++
	price, ok := f.prices[r.URL.Query().Get("symbol")]
	f.mu.Unlock()

	if r.URL.Path != "/quote" {
		http.NotFound(w, r)
		return
	}
	if r.URL.Query().Get("token") != "" {
		http.Error(w, "token in query", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		io.WriteString(w, `{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`)
		return
	}
	json.NewEncoder(w).Encode(map[string]float64{"c": price, "o": price, "h": price, "l": price, "pc": price})
}

// webhookSink collects webhook payloads.
type webhookSink struct {
	mu       sync.Mutex
	payloads []map[string]interface{}
}

func (s *webhookSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.payloads = append(s.payloads, body)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *webhookSink) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.payloads))
	for _, p := range s.payloads {
		title, _ := p["title"].(string)
		out = append(out, title)
	}
	return out
}

type harness struct {
	upstream *fakeFinnhub
	sink     *webhookSink
	kv       *store.SQLiteKV
	alerts   *store.AlertStore
	limiter  *resilience.Limiter
	cycle    *monitor.Cycle
}

func newHarness(t *testing.T, dbPath string, limits resilience.Limits) *harness {
	t.Helper()
	logger := zerolog.Nop()

	upstream := newFakeFinnhub(map[string]float64{
		"BINANCE:BTCUSDT": 60000,
		"AAPL":            190.25,
	})
	api := httptest.NewServer(upstream)
	t.Cleanup(api.Close)

	sink := &webhookSink{}
	hook := httptest.NewServer(sink)
	t.Cleanup(hook.Close)

	kv, err := store.NewSQLiteKV(dbPath)
	if err != nil {
		t.Fatalf("Failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	alerts := store.NewAlertStore(kv, logger)
	limiter := resilience.NewLimiter(limits, nil, logger)
	client := quotes.NewFinnhubClient(quotes.ClientConfig{
		BaseURL: api.URL,
		Token:   "integration-secret-token",
		Timeout: 5 * time.Second,
	}, logger)
	fetcher := quotes.NewFetcher(client, security.NewValidator(nil, nil), limiter, logger)

	notifier := notify.NewMultiNotifier(config.NotificationConfig{
		Level:   string(notify.LevelAll),
		Webhook: config.WebhookConfig{Enabled: true, URL: hook.URL},
	})

	symbols := models.NewSymbolTable(
		models.SymbolEntry{Name: "Bitcoin", Symbol: "BINANCE:BTCUSDT", Kind: models.KindCrypto},
		models.SymbolEntry{Name: "Apple", Symbol: "AAPL", Kind: models.KindIndex},
		models.SymbolEntry{Name: "Delisted", Symbol: "GONE", Kind: models.KindIndex},
	)

	evaluator := monitor.NewEvaluator(alerts, logger)
	cycle := monitor.NewCycle(fetcher, symbols, evaluator, notifier, logger)

	return &harness{
		upstream: upstream,
		sink:     sink,
		kv:       kv,
		alerts:   alerts,
		limiter:  limiter,
		cycle:    cycle,
	}
}

// TestEndToEndAlertLifecycle drives a create, fire, persist, reset cycle
// through the real SQLite backend and HTTP clients.
func TestEndToEndAlertLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	h := newHarness(t, filepath.Join(t.TempDir(), "tracker.db"), resilience.DefaultLimits())

	above, err := h.alerts.Append(ctx, models.AlertDraft{Symbol: "BINANCE:BTCUSDT", Name: "Bitcoin", Type: models.AlertAbove, Price: 60500})
	if err != nil {
		t.Fatalf("Failed to create alert: %v", err)
	}
	below, err := h.alerts.Append(ctx, models.AlertDraft{Symbol: "AAPL", Name: "Apple", Type: models.AlertBelow, Price: 180})
	if err != nil {
		t.Fatalf("Failed to create alert: %v", err)
	}

	// Nothing crosses yet.
	res, err := h.cycle.Run(ctx)
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if len(res.Triggered) != 0 {
		t.Fatalf("Expected no triggers, got %d", len(res.Triggered))
	}
	if len(res.Prices) != 2 {
		t.Errorf("Expected 2 prices, got %d", len(res.Prices))
	}
	if len(res.Failures) != 1 || res.Failures[0].Name != "Delisted" {
		t.Errorf("Expected the zero quote to be reported as a failure, got %+v", res.Failures)
	}

	h.upstream.set("BINANCE:BTCUSDT", 60500)
	res, err = h.cycle.Run(ctx)
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if len(res.Triggered) != 1 || res.Triggered[0].ID != above.ID {
		t.Fatalf("Expected only the Bitcoin alert to fire, got %+v", res.Triggered)
	}

	titles := h.sink.titles()
	if len(titles) != 1 || titles[0] != "Price alert: Bitcoin" {
		t.Fatalf("Unexpected webhook payloads: %v", titles)
	}

	// A second cycle above the threshold must not notify again.
	if _, err := h.cycle.Run(ctx); err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if n := len(h.sink.titles()); n != 1 {
		t.Errorf("Expected a single notification, got %d", n)
	}

	stored, ok := h.alerts.Get(ctx, above.ID)
	if !ok || !stored.Triggered || stored.TriggeredAt == nil {
		t.Fatalf("Expected persisted triggered state, got %+v", stored)
	}
	if other, _ := h.alerts.Get(ctx, below.ID); other.Triggered {
		t.Errorf("Apple alert must stay armed")
	}

	if err := h.alerts.Reset(ctx, above.ID); err != nil {
		t.Fatalf("Failed to reset: %v", err)
	}
	res, err = h.cycle.Run(ctx)
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if len(res.Triggered) != 1 {
		t.Errorf("Expected the reset alert to fire again, got %d", len(res.Triggered))
	}

	h.upstream.mu.Lock()
	defer h.upstream.mu.Unlock()
	if h.upstream.tokens["integration-secret-token"] != h.upstream.calls {
		t.Errorf("Expected every upstream call to carry the token header")
	}
}

// TestAlertsSurviveReopen checks that the persisted collection is read back
// by a fresh store on the same database file.
func TestAlertsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "tracker.db")

	kv, err := store.NewSQLiteKV(dbPath)
	if err != nil {
		t.Fatalf("Failed to open sqlite store: %v", err)
	}
	first := store.NewAlertStore(kv, zerolog.Nop())
	created, err := first.Append(ctx, models.AlertDraft{Symbol: "AAPL", Name: "Apple", Type: models.AlertAbove, Price: 200})
	if err != nil {
		t.Fatalf("Failed to create alert: %v", err)
	}
	kv.Close()

	kv2, err := store.NewSQLiteKV(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen sqlite store: %v", err)
	}
	defer kv2.Close()

	raw, ok, err := kv2.Get(ctx, store.DefaultAlertsKey)
	if err != nil || !ok {
		t.Fatalf("Expected blob under %q, ok=%v err=%v", store.DefaultAlertsKey, ok, err)
	}
	if !strings.Contains(raw, created.ID) {
		t.Errorf("Expected blob to contain the alert id")
	}

	second := store.NewAlertStore(kv2, zerolog.Nop())
	got := second.List(ctx)
	if len(got) != 1 || got[0].ID != created.ID || got[0].Price != 200 {
		t.Fatalf("Unexpected alerts after reopen: %+v", got)
	}
}

// TestRateLimitedCycle exhausts the quote budget and checks the cycle keeps
// going with partial data instead of failing.
func TestRateLimitedCycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, filepath.Join(t.TempDir(), "tracker.db"), resilience.Limits{
		Quotes:  2,
		Candles: 1,
		Window:  time.Hour,
	})

	res, err := h.cycle.Run(ctx)
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if got := len(res.Prices) + len(res.Failures); got != 3 {
		t.Fatalf("Expected every symbol accounted for, got %d", got)
	}

	res, err = h.cycle.Run(ctx)
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if len(res.Prices) != 0 {
		t.Errorf("Expected no prices with an exhausted budget, got %d", len(res.Prices))
	}
	if len(res.Failures) != 3 {
		t.Errorf("Expected 3 failures, got %d", len(res.Failures))
	}

	w, _ := h.limiter.Snapshot(resilience.CategoryQuotes)
	if w.Count != 2 {
		t.Errorf("Denied requests must not consume budget, count=%d", w.Count)
	}
}

// TestSchedulerWithServer runs the scheduler against the real stack and
// reads the result back through the HTTP API.
func TestSchedulerWithServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	h := newHarness(t, filepath.Join(t.TempDir(), "tracker.db"), resilience.DefaultLimits())
	if _, err := h.alerts.Append(ctx, models.AlertDraft{Symbol: "AAPL", Name: "Apple", Type: models.AlertAbove, Price: 190}); err != nil {
		t.Fatalf("Failed to create alert: %v", err)
	}

	results := make(chan monitor.Result, 4)
	sched := scheduler.New(h.cycle, scheduler.Config{
		Interval:     time.Hour,
		CycleTimeout: 10 * time.Second,
		OnResult: func(r monitor.Result, err error) {
			if err == nil {
				results <- r
			}
		},
	}, zerolog.Nop())
	sched.Start(ctx)
	defer sched.Stop()

	select {
	case r := <-results:
		if len(r.Triggered) != 1 {
			t.Fatalf("Expected the first cycle to fire the Apple alert, got %d", len(r.Triggered))
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for the first cycle")
	}

	health := resilience.NewHealthMonitor(nil)
	health.Register("storage", func(ctx context.Context) resilience.ComponentHealth {
		if err := h.alerts.Ping(ctx); err != nil {
			return resilience.ComponentHealth{Status: resilience.HealthStatusUnhealthy, Message: err.Error()}
		}
		return resilience.ComponentHealth{Status: resilience.HealthStatusHealthy}
	})

	srv := server.New(server.Config{Health: health}, h.alerts, zerolog.Nop())
	api := httptest.NewServer(srv.Handler())
	defer api.Close()

	resp, err := http.Get(api.URL + "/api/alerts")
	if err != nil {
		t.Fatalf("GET /api/alerts: %v", err)
	}
	defer resp.Body.Close()
	var listed []models.Alert
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("Failed to decode alerts: %v", err)
	}
	if len(listed) != 1 || !listed[0].Triggered {
		t.Fatalf("Expected the triggered alert from the API, got %+v", listed)
	}

	hr, err := http.Get(api.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	hr.Body.Close()
	if hr.StatusCode != http.StatusOK {
		t.Errorf("Expected healthy status, got %d", hr.StatusCode)
	}
}
