package models

import (
	"testing"
	"time"
)

func TestAlertCrossesInclusive(t *testing.T) {
	tests := []struct {
		name  string
		alert Alert
		price float64
		want  bool
	}{
		{"above at threshold", Alert{Type: AlertAbove, Price: 100}, 100, true},
		{"above over", Alert{Type: AlertAbove, Price: 100}, 100.01, true},
		{"above under", Alert{Type: AlertAbove, Price: 100}, 99.99, false},
		{"below at threshold", Alert{Type: AlertBelow, Price: 100}, 100, true},
		{"below under", Alert{Type: AlertBelow, Price: 100}, 42, true},
		{"below over", Alert{Type: AlertBelow, Price: 100}, 100.5, false},
		{"below at zero", Alert{Type: AlertBelow, Price: 100}, 0, true},
		{"above at zero", Alert{Type: AlertAbove, Price: 100}, 0, false},
		{"unknown type", Alert{Type: "sideways", Price: 100}, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.alert.Crosses(tt.price); got != tt.want {
				t.Errorf("Crosses(%v) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestAlertTriggerAndReset(t *testing.T) {
	a := Alert{Type: AlertAbove, Price: 1}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.Trigger(now)
	if !a.Triggered || a.TriggeredAt == nil || !a.TriggeredAt.Equal(now) {
		t.Fatalf("trigger did not set state: %+v", a)
	}
	a.Reset()
	if a.Triggered || a.TriggeredAt != nil {
		t.Fatalf("reset did not clear state: %+v", a)
	}
}

func TestCandleSeriesCandles(t *testing.T) {
	s := CandleSeries{
		Status: CandleStatusOK,
		Time:   []int64{1700000000, 1700086400},
		Open:   []float64{1, 2},
		High:   []float64{3, 4},
		Low:    []float64{0.5, 1.5},
		Close:  []float64{2, 3},
		Volume: []float64{10},
	}
	got := s.Candles()
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
	if !got[0].Time.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected time %v", got[0].Time)
	}
	if got[1].Volume != 0 || got[0].Volume != 10 {
		t.Errorf("unexpected volumes %v %v", got[0].Volume, got[1].Volume)
	}
}

func TestCandleSeriesWithoutData(t *testing.T) {
	for _, s := range []CandleSeries{
		{Status: "no_data"},
		{Status: CandleStatusOK},
		{Status: CandleStatusOK, Time: []int64{1}},
	} {
		if got := s.Candles(); len(got) != 0 {
			t.Errorf("expected empty series for %+v, got %d", s, len(got))
		}
	}
}

func TestSymbolTableLookup(t *testing.T) {
	table := DefaultSymbolTable()
	if table.Len() != 12 {
		t.Fatalf("expected 12 entries, got %d", table.Len())
	}
	e, ok := table.ByName("bitcoin")
	if !ok || e.Symbol != "BINANCE:BTCUSDT" {
		t.Fatalf("bitcoin lookup failed: %+v", e)
	}
	e, ok = table.Resolve("^gspc")
	if !ok || e.Name != "S&P 500" {
		t.Fatalf("resolve by symbol failed: %+v", e)
	}
	if len(table.Kind(KindCrypto)) != 6 {
		t.Errorf("expected 6 crypto entries")
	}
	if !IsCryptoSymbol("binance:ethusdt") || IsCryptoSymbol("^FCHI") {
		t.Errorf("IsCryptoSymbol misclassified")
	}
}

func TestSymbolTableKeepsFirstDuplicate(t *testing.T) {
	table := NewSymbolTable(
		SymbolEntry{Name: "X", Symbol: "A"},
		SymbolEntry{Name: "X", Symbol: "B"},
	)
	if table.Len() != 1 {
		t.Fatalf("expected duplicate to be dropped")
	}
	if e, _ := table.ByName("X"); e.Symbol != "A" {
		t.Errorf("expected first entry to win, got %s", e.Symbol)
	}
}
