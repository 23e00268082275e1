package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"market-tracker/internal/logging"
	"market-tracker/internal/models"
	"market-tracker/internal/notify"
	"market-tracker/internal/quotes"
)

// Result summarizes one cycle.
type Result struct {
	StartedAt time.Time
	Duration  time.Duration
	Prices    map[string]models.Quote
	Triggered []models.Alert
	Failures  []quotes.FetchFailure
}

// Cycle fetches every tracked symbol, evaluates alerts and notifies.
type Cycle struct {
	fetcher   *quotes.Fetcher
	symbols   *models.SymbolTable
	evaluator *Evaluator
	notifier  notify.Notifier
	logger    zerolog.Logger
	seq       uint64
}

// NewCycle creates a cycle runner. A nil notifier discards notifications.
func NewCycle(fetcher *quotes.Fetcher, symbols *models.SymbolTable, evaluator *Evaluator, notifier notify.Notifier, logger zerolog.Logger) *Cycle {
	if notifier == nil {
		notifier = notify.NewNoOpNotifier()
	}
	return &Cycle{
		fetcher:   fetcher,
		symbols:   symbols,
		evaluator: evaluator,
		notifier:  notifier,
		logger:    logging.WithComponent(logger, "cycle"),
	}
}

// Run performs one cycle. Per-symbol fetch failures are reported in the
// result, not as an error; the returned error is only the context's.
// Callers must not run cycles concurrently.
func (c *Cycle) Run(ctx context.Context) (Result, error) {
	c.seq++
	logger := c.logger.With().Uint64(string(logging.CycleIDKey), c.seq).Logger()
	ctx = logging.WithLogger(ctx, logger)

	res := Result{StartedAt: time.Now()}
	res.Prices, res.Failures = c.fetcher.FetchAll(ctx, c.symbols.Entries())
	if err := ctx.Err(); err != nil {
		res.Duration = time.Since(res.StartedAt)
		return res, err
	}

	res.Triggered = c.evaluator.Evaluate(ctx, res.Prices)

	for _, a := range res.Triggered {
		if err := c.notifier.SendAlert(ctx, a, res.Prices[a.Name].Current); err != nil {
			logger.Warn().Err(err).Str("alert_id", a.ID).Msg("Notification delivery failed")
		}
	}

	res.Duration = time.Since(res.StartedAt)
	logger.Debug().
		Int("prices", len(res.Prices)).
		Int("failures", len(res.Failures)).
		Int("triggered", len(res.Triggered)).
		Dur("duration", res.Duration).
		Msg("Cycle completed")
	return res, nil
}
