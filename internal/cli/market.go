package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "market-tracker/internal/errors"
	"market-tracker/internal/models"
	"market-tracker/internal/quotes"
	"market-tracker/internal/security"
	"market-tracker/pkg/utils"
)

// addMarketDataCommands adds quote, chart and news commands.
func addMarketDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newQuoteCmd(app))
	rootCmd.AddCommand(newCandlesCmd(app))
	rootCmd.AddCommand(newSymbolsCmd(app))
	rootCmd.AddCommand(newNewsCmd(app))
	rootCmd.AddCommand(newConstituentsCmd(app))
}

// resolveRef maps a display name or identifier to a table entry. Unknown
// references pass through as raw identifiers so any valid ticker can be
// queried; the fetcher still validates them.
func resolveRef(app *App, ref string) models.SymbolEntry {
	if entry, ok := app.Symbols.Resolve(ref); ok {
		return entry
	}
	return models.SymbolEntry{Name: ref, Symbol: ref}
}

type quoteRow struct {
	Name   string       `json:"name"`
	Symbol string       `json:"symbol"`
	Quote  models.Quote `json:"quote"`
}

func newQuoteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote [name|symbol...]",
		Short: "Show current quotes",
		Long: `Show current quotes for the given names or symbols, or for every tracked
symbol when none is given. --retries re-attempts upstream failures with
backoff; validation errors and rate-limit denials are never retried.`,
		Example: `  tracker quote
  tracker quote Bitcoin ^GSPC
  tracker quote BINANCE:ETHUSDT --retries 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			fetcher := app.fetcher()
			retries, _ := cmd.Flags().GetInt("retries")

			var rows []quoteRow
			if len(args) == 0 {
				entries := app.Symbols.Entries()
				prices, failures := fetcher.FetchAll(ctx, entries)
				for _, e := range entries {
					if q, ok := prices[e.Name]; ok {
						rows = append(rows, quoteRow{Name: e.Name, Symbol: e.Symbol, Quote: q})
					}
				}
				for _, f := range failures {
					output.Dim("%s: no data (%v)", f.Name, f.Err)
				}
			} else {
				retryCfg := utils.DefaultRetryConfig()
				retryCfg.MaxAttempts = retries + 1
				retryCfg.ShouldRetry = apperrors.IsRetryable

				for _, ref := range args {
					entry := resolveRef(app, ref)
					q, err := utils.RetryWithResult(ctx, retryCfg, func() (models.Quote, error) {
						return fetcher.GetQuote(ctx, entry.Symbol)
					})
					if err != nil {
						output.Error("%s: %v", security.SanitizeText(entry.Name), err)
						if len(args) == 1 {
							return err
						}
						continue
					}
					rows = append(rows, quoteRow{Name: entry.Name, Symbol: entry.Symbol, Quote: q})
				}
			}

			if output.IsJSON() {
				return output.JSON(rows)
			}
			if fetcher.SourceName() == "demo" {
				output.Dim("Demo data (no API token configured)")
			}
			renderQuotes(output, rows)
			return nil
		},
	}
	cmd.Flags().Int("retries", 0, "retry upstream failures up to n times")
	return cmd
}

func renderQuotes(output *Output, rows []quoteRow) {
	table := NewTable(output, "Name", "Symbol", "Price", "Change", "Change %", "High", "Low")
	for _, r := range rows {
		crypto := models.IsCryptoSymbol(r.Symbol)
		q := r.Quote
		change := utils.FormatNumber(q.Change, crypto, 2)
		if q.Change > 0 {
			change = "+" + change
		}
		table.AddRow(
			r.Name,
			r.Symbol,
			utils.FormatPrice(q.Current, crypto),
			output.Change(q.Change, change),
			output.Change(q.ChangePercent, utils.FormatPercent(q.ChangePercent)),
			utils.FormatPrice(q.High, crypto),
			utils.FormatPrice(q.Low, crypto),
		)
	}
	table.Render()
}

func newCandlesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candles <name|symbol>",
		Short: "Show historical candles",
		Long: `Show OHLCV candles for a period preset (1M, 6M, 1Y, ALL) or an explicit
range. Dates are YYYY-MM-DD or unix seconds.`,
		Example: `  tracker candles Bitcoin --period 6M
  tracker candles ^GSPC --resolution D --from 2026-01-01 --to 2026-02-01`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			entry := resolveRef(app, args[0])
			fetcher := app.fetcher()

			resolution, _ := cmd.Flags().GetString("resolution")
			var (
				candles []models.Candle
				err     error
			)
			if resolution != "" {
				fromRaw, _ := cmd.Flags().GetString("from")
				toRaw, _ := cmd.Flags().GetString("to")
				from, ferr := parseTime("from", fromRaw)
				if ferr != nil {
					return ferr
				}
				to, terr := parseTime("to", toRaw)
				if terr != nil {
					return terr
				}
				var series models.CandleSeries
				series, err = fetcher.GetCandles(ctx, entry.Symbol, resolution, from, to)
				candles = series.Candles()
			} else {
				periodRaw, _ := cmd.Flags().GetString("period")
				period, perr := quotes.ParsePeriod(periodRaw)
				if perr != nil {
					return perr
				}
				candles, err = fetcher.GetHistory(ctx, entry.Symbol, period)
			}
			if err != nil {
				output.Error("%s: %v", security.SanitizeText(entry.Name), err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(candles)
			}
			if len(candles) == 0 {
				output.Dim("No data for %s in this range", entry.Name)
				return nil
			}

			crypto := models.IsCryptoSymbol(entry.Symbol)
			table := NewTable(output, "Date", "Open", "High", "Low", "Close", "Volume")
			for _, c := range candles {
				table.AddRow(
					c.Time.Format("2006-01-02"),
					utils.FormatPrice(c.Open, crypto),
					utils.FormatPrice(c.High, crypto),
					utils.FormatPrice(c.Low, crypto),
					utils.FormatPrice(c.Close, crypto),
					utils.FormatNumber(c.Volume, false, 0),
				)
			}
			table.Render()

			first, last := candles[0].Close, candles[len(candles)-1].Close
			pct := utils.PercentChange(last, first)
			output.Println()
			output.Printf("  %s over %d candles: %s\n", entry.Name, len(candles),
				output.Change(pct, utils.FormatPercent(pct)))
			return nil
		},
	}
	cmd.Flags().StringP("period", "p", string(quotes.Period1M), "period preset: 1M, 6M, 1Y or ALL")
	cmd.Flags().StringP("resolution", "r", "", "explicit resolution: "+strings.Join(security.Resolutions(), ", "))
	cmd.Flags().String("from", "", "range start (with --resolution)")
	cmd.Flags().String("to", "", "range end (with --resolution, default now)")
	return cmd
}

// parseTime accepts unix seconds or a YYYY-MM-DD date. An empty "to" means
// now. Numeric input must be a whole, positive second no more than a day
// ahead.
func parseTime(field, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if field == "to" {
			return time.Now().Unix(), nil
		}
		return 0, apperrors.NewValidationError(field, raw, "required with --resolution")
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		if !security.IsValidTimestampValue(v, time.Now()) {
			return 0, apperrors.NewValidationError(field, security.SanitizeText(raw), "timestamp out of range")
		}
		return int64(v), nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return 0, apperrors.NewValidationError(field, security.SanitizeText(raw), "expected YYYY-MM-DD or unix seconds")
	}
	return t.Unix(), nil
}

func newSymbolsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "List tracked symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			kind, _ := cmd.Flags().GetString("kind")

			entries := app.Symbols.Entries()
			if kind != "" {
				entries = app.Symbols.Kind(models.AssetKind(strings.ToLower(kind)))
			}

			if output.IsJSON() {
				return output.JSON(entries)
			}
			table := NewTable(output, "Name", "Symbol", "Kind")
			for _, e := range entries {
				table.AddRow(e.Name, e.Symbol, string(e.Kind))
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("kind", "", "only index or crypto symbols")
	return cmd
}

func newNewsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "news",
		Short: "Show market news",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			category, _ := cmd.Flags().GetString("category")
			limit, _ := cmd.Flags().GetInt("limit")

			items, err := app.fetcher().News(ctx, category)
			if err != nil {
				output.Error("News unavailable: %v", err)
				return err
			}
			sort.SliceStable(items, func(i, j int) bool { return items[i].Datetime > items[j].Datetime })
			if limit > 0 && len(items) > limit {
				items = items[:limit]
			}

			if output.IsJSON() {
				return output.JSON(items)
			}
			if len(items) == 0 {
				output.Dim("No news")
				return nil
			}
			for _, n := range items {
				output.Bold("%s", n.Headline)
				output.Dim("  %s · %s", n.Source, time.Unix(n.Datetime, 0).Local().Format("2006-01-02 15:04"))
				if n.URL != "" {
					output.Printf("  %s\n", n.URL)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringP("category", "c", "general", "category: "+strings.Join(quotes.NewsCategories, ", "))
	cmd.Flags().IntP("limit", "n", 10, "maximum headlines")
	return cmd
}

func newConstituentsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "constituents <index>",
		Short: "List the members of an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			entry := resolveRef(app, args[0])
			ic, err := app.fetcher().IndexConstituents(ctx, entry.Symbol)
			if err != nil {
				output.Error("%s: %v", security.SanitizeText(entry.Name), err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(ic)
			}
			output.Bold("%s (%d members)", entry.Name, len(ic.Constituents))
			output.Println(strings.Join(ic.Constituents, " "))
			return nil
		},
	}
}

// describeFailure renders a per-symbol fetch error for watch output.
func describeFailure(err error) string {
	switch {
	case apperrors.Is(err, apperrors.ErrRateLimited):
		return "rate limited"
	case apperrors.Is(err, apperrors.ErrInputValidation):
		return "invalid symbol"
	default:
		var up *apperrors.UpstreamError
		if apperrors.As(err, &up) && up.Status != 0 {
			return fmt.Sprintf("upstream status %d", up.Status)
		}
		return "unavailable"
	}
}
