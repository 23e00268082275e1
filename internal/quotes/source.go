// Package quotes fetches quotes, candles and news from the market-data API
// behind input validation and the request limiter.
package quotes

import (
	"context"

	"market-tracker/internal/models"
)

// Source is a raw market-data backend. Implementations perform no validation
// or throttling of their own; Fetcher does that.
type Source interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	Candles(ctx context.Context, symbol, resolution string, from, to int64) (models.CandleSeries, error)
	News(ctx context.Context, category string) ([]models.NewsItem, error)
	IndexConstituents(ctx context.Context, symbol string) (models.IndexConstituents, error)
	Name() string
}

// NewsCategories are the accepted news feeds.
var NewsCategories = []string{"general", "forex", "crypto", "merger"}

func isNewsCategory(c string) bool {
	for _, n := range NewsCategories {
		if n == c {
			return true
		}
	}
	return false
}
