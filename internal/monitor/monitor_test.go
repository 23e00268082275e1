package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	apperrors "market-tracker/internal/errors"
	"market-tracker/internal/models"
	"market-tracker/internal/notify"
	"market-tracker/internal/quotes"
	"market-tracker/internal/resilience"
	"market-tracker/internal/security"
	"market-tracker/internal/store"
)

var evalNow = time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)

// countingKV counts writes so tests can assert when the store persisted.
type countingKV struct {
	*store.MemoryKV
	mu   sync.Mutex
	sets int
	fail bool
}

func newCountingKV() *countingKV { return &countingKV{MemoryKV: store.NewMemoryKV()} }

func (c *countingKV) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	c.sets++
	fail := c.fail
	c.mu.Unlock()
	if fail {
		return errors.New("write refused")
	}
	return c.MemoryKV.Set(ctx, key, value)
}

func (c *countingKV) writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func newEvaluator(kv store.KV) (*Evaluator, *store.AlertStore) {
	s := store.NewAlertStore(kv, zerolog.Nop())
	return NewEvaluator(s, zerolog.Nop(), WithClock(func() time.Time { return evalNow })), s
}

func mustAppend(t *testing.T, s *store.AlertStore, d models.AlertDraft) models.Alert {
	t.Helper()
	a, err := s.Append(context.Background(), d)
	if err != nil {
		t.Fatalf("Append(%+v): %v", d, err)
	}
	return a
}

func q(price float64) models.Quote { return models.Quote{Current: price} }

func TestEvaluateBitcoinAbove(t *testing.T) {
	kv := newCountingKV()
	ev, s := newEvaluator(kv)
	ctx := context.Background()
	a := mustAppend(t, s, models.AlertDraft{Symbol: "BINANCE:BTCUSDT", Name: "Bitcoin", Type: models.AlertAbove, Price: 60000})
	before := kv.writes()

	fired := ev.Evaluate(ctx, map[string]models.Quote{"Bitcoin": q(60500)})
	if len(fired) != 1 || fired[0].ID != a.ID {
		t.Fatalf("fired = %+v", fired)
	}
	if !fired[0].Triggered || fired[0].TriggeredAt == nil || !fired[0].TriggeredAt.Equal(evalNow) {
		t.Errorf("fired alert not stamped: %+v", fired[0])
	}
	if kv.writes() != before+1 {
		t.Errorf("expected exactly one write, got %d", kv.writes()-before)
	}

	stored, ok := s.Get(ctx, a.ID)
	if !ok || !stored.Triggered {
		t.Errorf("trigger was not persisted: %+v", stored)
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	kv := newCountingKV()
	ev, s := newEvaluator(kv)
	ctx := context.Background()
	mustAppend(t, s, models.AlertDraft{Symbol: "BINANCE:BTCUSDT", Name: "Bitcoin", Type: models.AlertAbove, Price: 60000})

	prices := map[string]models.Quote{"Bitcoin": q(61000)}
	if got := ev.Evaluate(ctx, prices); len(got) != 1 {
		t.Fatalf("first evaluation fired %d", len(got))
	}
	writes := kv.writes()
	if got := ev.Evaluate(ctx, prices); len(got) != 0 {
		t.Fatalf("second evaluation fired %d", len(got))
	}
	if kv.writes() != writes {
		t.Errorf("second evaluation wrote to the store")
	}
}

func TestEvaluateInclusiveBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		typ   models.AlertType
		price float64
		want  bool
	}{
		{"above equal", models.AlertAbove, 100, true},
		{"above over", models.AlertAbove, 100.01, true},
		{"above under", models.AlertAbove, 99.99, false},
		{"below equal", models.AlertBelow, 100, true},
		{"below under", models.AlertBelow, 99.99, true},
		{"below over", models.AlertBelow, 100.01, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, s := newEvaluator(store.NewMemoryKV())
			mustAppend(t, s, models.AlertDraft{Symbol: "^GSPC", Name: "S&P 500", Type: tt.typ, Price: 100})
			fired := ev.Evaluate(context.Background(), map[string]models.Quote{"S&P 500": q(tt.price)})
			if (len(fired) == 1) != tt.want {
				t.Errorf("fired = %d, want trigger %v", len(fired), tt.want)
			}
		})
	}
}

func TestEvaluateSkipsMissingAndKeepsOrder(t *testing.T) {
	ev, s := newEvaluator(store.NewMemoryKV())
	first := mustAppend(t, s, models.AlertDraft{Symbol: "^FCHI", Name: "CAC 40", Type: models.AlertBelow, Price: 8000})
	mustAppend(t, s, models.AlertDraft{Symbol: "^N225", Name: "Nikkei 225", Type: models.AlertAbove, Price: 1})
	third := mustAppend(t, s, models.AlertDraft{Symbol: "BINANCE:ETHUSDT", Name: "Ethereum", Type: models.AlertAbove, Price: 3000})

	fired := ev.Evaluate(context.Background(), map[string]models.Quote{
		"Ethereum": q(3200),
		"CAC 40":   q(7500),
	})
	if len(fired) != 2 || fired[0].ID != first.ID || fired[1].ID != third.ID {
		t.Fatalf("fired = %+v", fired)
	}
}

func TestEvaluateBelowAlertAtZeroPrice(t *testing.T) {
	kv := newCountingKV()
	ev, s := newEvaluator(kv)
	a := mustAppend(t, s, models.AlertDraft{Symbol: "AAPL", Name: "Apple", Type: models.AlertBelow, Price: 100})
	up := mustAppend(t, s, models.AlertDraft{Symbol: "MSFT", Name: "Microsoft", Type: models.AlertAbove, Price: 100})
	before := kv.writes()

	fired := ev.Evaluate(context.Background(), map[string]models.Quote{
		"Apple":     q(0),
		"Microsoft": q(0),
	})
	if len(fired) != 1 || fired[0].ID != a.ID {
		t.Fatalf("expected the below alert to fire at c=0, got %+v", fired)
	}
	if kv.writes() != before+1 {
		t.Errorf("expected one write, got %d", kv.writes()-before)
	}
	if got, _ := s.Get(context.Background(), up.ID); got.Triggered {
		t.Errorf("above alert must not fire at c=0")
	}
}

func TestEvaluateReturnsTriggersWhenWriteFails(t *testing.T) {
	kv := newCountingKV()
	ev, s := newEvaluator(kv)
	mustAppend(t, s, models.AlertDraft{Symbol: "BINANCE:BTCUSDT", Name: "Bitcoin", Type: models.AlertAbove, Price: 60000})
	kv.fail = true

	fired := ev.Evaluate(context.Background(), map[string]models.Quote{"Bitcoin": q(60500)})
	if len(fired) != 1 {
		t.Fatalf("expected in-memory result despite write failure, got %d", len(fired))
	}
}

func TestProperty_EvaluateEmptyBatchNeverWrites(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("empty batch performs no write and fires nothing", prop.ForAll(
		func(prices []float64) bool {
			kv := newCountingKV()
			ev, s := newEvaluator(kv)
			for _, p := range prices {
				if _, err := s.Append(context.Background(), models.AlertDraft{
					Symbol: "BINANCE:BTCUSDT", Name: "Bitcoin", Type: models.AlertAbove, Price: p,
				}); err != nil {
					return false
				}
			}
			before := kv.writes()
			fired := ev.Evaluate(context.Background(), map[string]models.Quote{})
			return len(fired) == 0 && kv.writes() == before
		},
		gen.SliceOfN(5, gen.Float64Range(0.01, 100000)),
	))

	properties.Property("untriggered set shrinks by exactly the fired alerts", prop.ForAll(
		func(thresholds []float64, price float64) bool {
			ev, s := newEvaluator(store.NewMemoryKV())
			ctx := context.Background()
			for _, p := range thresholds {
				if _, err := s.Append(ctx, models.AlertDraft{
					Symbol: "BINANCE:BTCUSDT", Name: "Bitcoin", Type: models.AlertAbove, Price: p,
				}); err != nil {
					return false
				}
			}
			fired := ev.Evaluate(ctx, map[string]models.Quote{"Bitcoin": q(price)})
			want := 0
			for _, p := range thresholds {
				if price >= p {
					want++
				}
			}
			again := ev.Evaluate(ctx, map[string]models.Quote{"Bitcoin": q(price)})
			return len(fired) == want && len(again) == 0
		},
		gen.SliceOfN(8, gen.Float64Range(1, 1000)),
		gen.Float64Range(1, 1000),
	))

	properties.TestingRun(t)
}

// stubSource answers quotes from a fixed map.
type stubSource struct {
	prices map[string]float64
}

func (s stubSource) Name() string { return "stub" }

func (s stubSource) Quote(_ context.Context, symbol string) (models.Quote, error) {
	p, ok := s.prices[symbol]
	if !ok {
		return models.Quote{}, apperrors.NewUpstreamError("/quote", 404, apperrors.ErrSymbolNotFound)
	}
	return models.Quote{Current: p}, nil
}

func (s stubSource) Candles(context.Context, string, string, int64, int64) (models.CandleSeries, error) {
	return models.CandleSeries{}, nil
}

func (s stubSource) News(context.Context, string) ([]models.NewsItem, error) { return nil, nil }

func (s stubSource) IndexConstituents(context.Context, string) (models.IndexConstituents, error) {
	return models.IndexConstituents{}, nil
}

type capturedAlert struct {
	alert models.Alert
	price float64
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []capturedAlert
}

func (r *recordingNotifier) Send(context.Context, notify.Notification) error { return nil }

func (r *recordingNotifier) SendAlert(_ context.Context, a models.Alert, price float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, capturedAlert{a, price})
	return nil
}

func newTestCycle(t *testing.T, prices map[string]float64, n *recordingNotifier) (*Cycle, *store.AlertStore) {
	t.Helper()
	clock := func() time.Time { return evalNow }
	fetcher := quotes.NewFetcher(
		stubSource{prices: prices},
		security.NewValidator(clock, nil),
		resilience.NewLimiter(resilience.DefaultLimits(), clock, zerolog.Nop()),
		zerolog.Nop(),
	)
	ev, s := newEvaluator(store.NewMemoryKV())
	return NewCycle(fetcher, models.DefaultSymbolTable(), ev, n, zerolog.Nop()), s
}

func TestCycleBitcoinEndToEnd(t *testing.T) {
	n := &recordingNotifier{}
	c, s := newTestCycle(t, map[string]float64{
		"BINANCE:BTCUSDT": 60500,
		"^GSPC":           5100,
	}, n)
	a := mustAppend(t, s, models.AlertDraft{Symbol: "BINANCE:BTCUSDT", Name: "Bitcoin", Type: models.AlertAbove, Price: 60000})

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Prices) != 2 {
		t.Errorf("prices = %v", res.Prices)
	}
	if len(res.Failures) != models.DefaultSymbolTable().Len()-2 {
		t.Errorf("failures = %d", len(res.Failures))
	}
	if len(res.Triggered) != 1 || res.Triggered[0].ID != a.ID {
		t.Fatalf("triggered = %+v", res.Triggered)
	}
	if len(n.got) != 1 || n.got[0].price != 60500 || n.got[0].alert.ID != a.ID {
		t.Errorf("notifications = %+v", n.got)
	}

	res, err = c.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(res.Triggered) != 0 || len(n.got) != 1 {
		t.Errorf("alert fired twice")
	}
}

func TestCycleCancelledContext(t *testing.T) {
	n := &recordingNotifier{}
	c, _ := newTestCycle(t, map[string]float64{"BINANCE:BTCUSDT": 1}, n)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
