package models

import "time"

// Quote is a point-in-time price snapshot as returned by the quote API.
type Quote struct {
	Current       float64 `json:"c"`
	Open          float64 `json:"o"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	PreviousClose float64 `json:"pc"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	Timestamp     int64   `json:"t,omitempty"`
}

// CandleStatusOK is the status value of a candle response that carries data.
const CandleStatusOK = "ok"

// CandleSeries is the column-oriented candle payload of the quote API.
type CandleSeries struct {
	Status string    `json:"s"`
	Time   []int64   `json:"t"`
	Open   []float64 `json:"o"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Close  []float64 `json:"c"`
	Volume []float64 `json:"v"`
}

// Empty reports whether the series carries no usable data.
func (s CandleSeries) Empty() bool {
	return s.Status != CandleStatusOK || len(s.Time) == 0 || len(s.Close) == 0
}

// Candle is one OHLCV row.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Candles converts the columns into rows. A series without data yields an
// empty slice; ragged columns are cut to the shortest of t and c, with any
// other missing column reading as zero.
func (s CandleSeries) Candles() []Candle {
	if s.Empty() {
		return []Candle{}
	}
	n := len(s.Time)
	if len(s.Close) < n {
		n = len(s.Close)
	}
	out := make([]Candle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Candle{
			Time:   time.UnixMilli(s.Time[i] * 1000).UTC(),
			Open:   at(s.Open, i),
			High:   at(s.High, i),
			Low:    at(s.Low, i),
			Close:  s.Close[i],
			Volume: at(s.Volume, i),
		})
	}
	return out
}

func at(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

// NewsItem is a market news headline.
type NewsItem struct {
	ID       int64  `json:"id"`
	Category string `json:"category"`
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Image    string `json:"image"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// IndexConstituents lists the members of an index.
type IndexConstituents struct {
	Symbol       string   `json:"symbol"`
	Constituents []string `json:"constituents"`
}

// HasPrice reports whether the quote carries a usable current price. The API
// answers unknown symbols with an all-zero quote.
func (q Quote) HasPrice() bool {
	return q.Current > 0
}
