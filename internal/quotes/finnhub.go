package quotes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	apperrors "market-tracker/internal/errors"
	"market-tracker/internal/logging"
	"market-tracker/internal/models"
	"market-tracker/internal/security"
)

// DefaultBaseURL is the public Finnhub REST endpoint.
const DefaultBaseURL = "https://finnhub.io/api/v1"

// maxBodySize bounds how much of a response is read.
const maxBodySize = 4 << 20

// ClientConfig configures a FinnhubClient.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// FinnhubClient talks to the Finnhub REST API. The token travels in the
// X-Finnhub-Token header and never appears in a URL or log line.
type FinnhubClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
	safe       *security.SafeLogger
}

// NewFinnhubClient creates a client.
func NewFinnhubClient(cfg ClientConfig, logger zerolog.Logger) *FinnhubClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger = logging.WithComponent(logger, "finnhub")
	return &FinnhubClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		safe:       security.NewSafeLogger(logger),
	}
}

// Name identifies the source.
func (c *FinnhubClient) Name() string { return "finnhub" }

// Quote fetches the latest quote for symbol.
func (c *FinnhubClient) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	var q models.Quote
	err := c.get(ctx, "/quote", url.Values{"symbol": {symbol}}, &q)
	return q, err
}

// Candles fetches OHLCV columns. A "no_data" status is returned as is.
func (c *FinnhubClient) Candles(ctx context.Context, symbol, resolution string, from, to int64) (models.CandleSeries, error) {
	var s models.CandleSeries
	err := c.get(ctx, "/stock/candle", url.Values{
		"symbol":     {symbol},
		"resolution": {resolution},
		"from":       {strconv.FormatInt(from, 10)},
		"to":         {strconv.FormatInt(to, 10)},
	}, &s)
	return s, err
}

// News fetches market headlines for a category.
func (c *FinnhubClient) News(ctx context.Context, category string) ([]models.NewsItem, error) {
	var items []models.NewsItem
	if err := c.get(ctx, "/news", url.Values{"category": {category}}, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// IndexConstituents fetches the members of an index.
func (c *FinnhubClient) IndexConstituents(ctx context.Context, symbol string) (models.IndexConstituents, error) {
	var ic models.IndexConstituents
	err := c.get(ctx, "/index/constituents", url.Values{"symbol": {symbol}}, &ic)
	return ic, err
}

func (c *FinnhubClient) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + endpoint + "?" + params.Encode()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("X-Finnhub-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.LogAPICall(c.logger, http.MethodGet, endpoint, 0, time.Since(start), err)
		return apperrors.NewUpstreamError(endpoint, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return apperrors.NewUpstreamError(endpoint, resp.StatusCode, fmt.Errorf("reading body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.safe.Warn().
			URL("url", reqURL).
			Int("status", resp.StatusCode).
			Msg("Upstream returned non-success status")
		return apperrors.NewUpstreamError(endpoint, resp.StatusCode, nil)
	}

	if err := sonic.Unmarshal(body, out); err != nil {
		return apperrors.NewUpstreamError(endpoint, resp.StatusCode, fmt.Errorf("decoding response: %w", err))
	}

	logging.LogAPICall(c.logger, http.MethodGet, endpoint, resp.StatusCode, time.Since(start), nil)
	return nil
}
