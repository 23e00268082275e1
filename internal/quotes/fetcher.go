package quotes

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "market-tracker/internal/errors"
	"market-tracker/internal/logging"
	"market-tracker/internal/models"
	"market-tracker/internal/resilience"
	"market-tracker/internal/security"
)

// Fetcher validates every request, charges it against the limiter, and only
// then hands it to the Source. Validation and rate-limit failures are
// returned before any I/O. Nothing is retried here.
type Fetcher struct {
	source    Source
	validator *security.Validator
	limiter   *resilience.Limiter
	audit     *security.AuditLogger
	now       func() time.Time
	logger    zerolog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithAudit records limiter denials in the audit log.
func WithAudit(audit *security.AuditLogger) FetcherOption {
	return func(f *Fetcher) { f.audit = audit }
}

// WithClock overrides the wall clock used for history windows.
func WithClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) { f.now = now }
}

// NewFetcher creates a fetcher.
func NewFetcher(source Source, validator *security.Validator, limiter *resilience.Limiter, logger zerolog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		source:    source,
		validator: validator,
		limiter:   limiter,
		now:       time.Now,
		logger:    logging.WithComponent(logger, "fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SourceName reports which backend serves requests.
func (f *Fetcher) SourceName() string {
	return f.source.Name()
}

// GetQuote fetches one quote.
func (f *Fetcher) GetQuote(ctx context.Context, rawSymbol string) (models.Quote, error) {
	symbol, err := f.validator.Symbol(ctx, rawSymbol)
	if err != nil {
		return models.Quote{}, err
	}
	if err := f.admit(ctx, resilience.CategoryQuotes, symbol); err != nil {
		return models.Quote{}, err
	}
	return f.source.Quote(ctx, symbol)
}

// GetCandles fetches candles for an explicit range. A response without data
// yields an empty series rather than an error.
func (f *Fetcher) GetCandles(ctx context.Context, rawSymbol, resolution string, from, to int64) (models.CandleSeries, error) {
	symbol, err := f.validator.Symbol(ctx, rawSymbol)
	if err != nil {
		return models.CandleSeries{}, err
	}
	if err := f.validator.Resolution(ctx, resolution); err != nil {
		return models.CandleSeries{}, err
	}
	if err := f.validator.CandleRange(ctx, from, to); err != nil {
		return models.CandleSeries{}, err
	}
	if err := f.admit(ctx, resilience.CategoryCandles, symbol); err != nil {
		return models.CandleSeries{}, err
	}

	series, err := f.source.Candles(ctx, symbol, resolution, from, to)
	if err != nil {
		return models.CandleSeries{}, err
	}
	if series.Empty() {
		return models.CandleSeries{Status: series.Status}, nil
	}
	return series, nil
}

// GetHistory fetches the candles of a period preset as rows.
func (f *Fetcher) GetHistory(ctx context.Context, rawSymbol string, period Period) ([]models.Candle, error) {
	resolution, from, to, err := HistoryWindow(period, f.now())
	if err != nil {
		return nil, err
	}
	series, err := f.GetCandles(ctx, rawSymbol, resolution, from, to)
	if err != nil {
		return nil, err
	}
	return series.Candles(), nil
}

// News fetches headlines. News shares the quote budget.
func (f *Fetcher) News(ctx context.Context, category string) ([]models.NewsItem, error) {
	if category == "" {
		category = "general"
	}
	if !isNewsCategory(category) {
		return nil, apperrors.NewValidationError("category", category, "unsupported news category")
	}
	if err := f.admit(ctx, resilience.CategoryQuotes, ""); err != nil {
		return nil, err
	}
	return f.source.News(ctx, category)
}

// IndexConstituents fetches the members of an index.
func (f *Fetcher) IndexConstituents(ctx context.Context, rawSymbol string) (models.IndexConstituents, error) {
	symbol, err := f.validator.Symbol(ctx, rawSymbol)
	if err != nil {
		return models.IndexConstituents{}, err
	}
	if err := f.admit(ctx, resilience.CategoryQuotes, symbol); err != nil {
		return models.IndexConstituents{}, err
	}
	return f.source.IndexConstituents(ctx, symbol)
}

// FetchFailure records a symbol left out of a batch.
type FetchFailure struct {
	Name   string
	Symbol string
	Err    error
}

// FetchAll fetches every entry independently and returns the quotes keyed
// by display name. A failing entry, or one whose quote carries no price, is
// logged and left out; it never aborts the batch.
func (f *Fetcher) FetchAll(ctx context.Context, entries []models.SymbolEntry) (map[string]models.Quote, []FetchFailure) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		prices   = make(map[string]models.Quote, len(entries))
		failures []FetchFailure
	)

	for _, e := range entries {
		wg.Add(1)
		go func(e models.SymbolEntry) {
			defer wg.Done()
			q, err := f.GetQuote(ctx, e.Symbol)
			if err == nil && !q.HasPrice() {
				err = apperrors.NewUpstreamError("/quote", 0, apperrors.ErrSymbolNotFound)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger := logging.WithSymbol(f.logger, e.Symbol)
				logger.Warn().
					Err(err).
					Str("name", e.Name).
					Msg("Quote unavailable this cycle")
				failures = append(failures, FetchFailure{Name: e.Name, Symbol: e.Symbol, Err: err})
				return
			}
			prices[e.Name] = q
		}(e)
	}
	wg.Wait()

	return prices, failures
}

func (f *Fetcher) admit(ctx context.Context, category resilience.Category, symbol string) error {
	if f.limiter.Allow(category) {
		return nil
	}
	logging.LogRateLimited(f.logger, string(category), symbol)
	if f.audit != nil {
		_ = f.audit.LogRateLimited(ctx, string(category), symbol)
	}
	return apperrors.NewRateLimitError(string(category))
}
