package quotes

import (
	"context"
	"hash/fnv"
	"math/rand"
	"net/http"
	"time"

	apperrors "market-tracker/internal/errors"
	"market-tracker/internal/models"
)

// demoQuotes is the canned snapshot used without an API token.
var demoQuotes = map[string]models.Quote{
	"^FCHI":           {Current: 8120.75, Change: 32.45, ChangePercent: 0.42, High: 8145.12, Low: 8088.54, Open: 8095.20, PreviousClose: 8088.30},
	"^GSPC":           {Current: 5225.18, Change: 12.65, ChangePercent: 0.24, High: 5230.15, Low: 5210.25, Open: 5215.33, PreviousClose: 5212.53},
	"^IXIC":           {Current: 16350.45, Change: -42.12, ChangePercent: -0.26, High: 16450.30, Low: 16320.10, Open: 16415.60, PreviousClose: 16392.57},
	"^FTSE":           {Current: 7935.11, Change: 15.32, ChangePercent: 0.19, High: 7940.75, Low: 7920.44, Open: 7925.20, PreviousClose: 7919.79},
	"^GDAXI":          {Current: 17680.28, Change: 54.80, ChangePercent: 0.31, High: 17698.52, Low: 17625.48, Open: 17630.25, PreviousClose: 17625.48},
	"^N225":           {Current: 38914.25, Change: -102.35, ChangePercent: -0.26, High: 39118.45, Low: 38850.32, Open: 39025.76, PreviousClose: 39016.60},
	"BINANCE:BTCUSDT": {Current: 62135.45, Change: 952.30, ChangePercent: 1.56, High: 62500.00, Low: 61050.25, Open: 61183.15, PreviousClose: 61183.15},
	"BINANCE:ETHUSDT": {Current: 3450.72, Change: 45.18, ChangePercent: 1.32, High: 3470.50, Low: 3410.25, Open: 3415.20, PreviousClose: 3405.54},
	"BINANCE:BNBUSDT": {Current: 570.45, Change: -5.80, ChangePercent: -1.01, High: 580.15, Low: 565.20, Open: 576.25, PreviousClose: 576.25},
	"BINANCE:SOLUSDT": {Current: 142.85, Change: 3.25, ChangePercent: 2.32, High: 145.00, Low: 139.50, Open: 140.10, PreviousClose: 139.60},
	"BINANCE:ADAUSDT": {Current: 0.62, Change: 0.015, ChangePercent: 2.48, High: 0.63, Low: 0.61, Open: 0.61, PreviousClose: 0.605},
	"BINANCE:XRPUSDT": {Current: 0.56, Change: -0.02, ChangePercent: -3.45, High: 0.58, Low: 0.55, Open: 0.58, PreviousClose: 0.58},
}

// DemoSource serves fixed quotes and synthetic history so the tracker can run
// without credentials.
type DemoSource struct{}

// NewDemoSource creates a demo source.
func NewDemoSource() *DemoSource { return &DemoSource{} }

// Name identifies the source.
func (d *DemoSource) Name() string { return "demo" }

// Quote returns the canned quote for a known symbol.
func (d *DemoSource) Quote(_ context.Context, symbol string) (models.Quote, error) {
	q, ok := demoQuotes[symbol]
	if !ok {
		return models.Quote{}, apperrors.NewUpstreamError("/quote", http.StatusNotFound, apperrors.ErrSymbolNotFound)
	}
	return q, nil
}

// Candles builds a reproducible random walk ending near the demo price.
func (d *DemoSource) Candles(_ context.Context, symbol, resolution string, from, to int64) (models.CandleSeries, error) {
	q, ok := demoQuotes[symbol]
	if !ok {
		return models.CandleSeries{Status: "no_data"}, nil
	}
	step := resolutionStep(resolution)
	n := int((to - from) / int64(step/time.Second))
	if n <= 0 {
		return models.CandleSeries{Status: "no_data"}, nil
	}
	if n > 1000 {
		n = 1000
	}

	h := fnv.New64a()
	h.Write([]byte(symbol + resolution))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	series := models.CandleSeries{Status: models.CandleStatusOK}
	value := q.Current
	// Walk backwards from the current price so the last close matches it.
	closes := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		closes[i] = value
		value = value / (1 + (rng.Float64()-0.5)*0.01 + 0.0005)
	}
	for i := 0; i < n; i++ {
		open := closes[i]
		if i > 0 {
			open = closes[i-1]
		}
		high, low := open, closes[i]
		if low > high {
			high, low = low, high
		}
		series.Time = append(series.Time, to-int64(n-1-i)*int64(step/time.Second))
		series.Open = append(series.Open, open)
		series.High = append(series.High, high*1.002)
		series.Low = append(series.Low, low*0.998)
		series.Close = append(series.Close, closes[i])
		series.Volume = append(series.Volume, float64(1000+rng.Intn(9000)))
	}
	return series, nil
}

// News has no demo headlines.
func (d *DemoSource) News(_ context.Context, _ string) ([]models.NewsItem, error) {
	return []models.NewsItem{}, nil
}

// IndexConstituents has no demo membership data.
func (d *DemoSource) IndexConstituents(_ context.Context, symbol string) (models.IndexConstituents, error) {
	return models.IndexConstituents{Symbol: symbol, Constituents: []string{}}, nil
}

func resolutionStep(resolution string) time.Duration {
	switch resolution {
	case "1":
		return time.Minute
	case "5":
		return 5 * time.Minute
	case "15":
		return 15 * time.Minute
	case "30":
		return 30 * time.Minute
	case "60":
		return time.Hour
	case "W":
		return 7 * 24 * time.Hour
	case "M":
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
