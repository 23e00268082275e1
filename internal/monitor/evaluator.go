// Package monitor matches live prices against stored alerts and runs the
// fetch-evaluate-notify cycle.
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"market-tracker/internal/logging"
	"market-tracker/internal/models"
	"market-tracker/internal/security"
	"market-tracker/internal/store"
)

// Evaluator triggers alerts whose threshold the current price has crossed.
type Evaluator struct {
	store  *store.AlertStore
	audit  *security.AuditLogger
	now    func() time.Time
	logger zerolog.Logger
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithClock overrides the trigger timestamp source.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// WithAudit records every trigger in the audit trail.
func WithAudit(audit *security.AuditLogger) EvaluatorOption {
	return func(e *Evaluator) { e.audit = audit }
}

// NewEvaluator creates an Evaluator over the given store.
func NewEvaluator(s *store.AlertStore, logger zerolog.Logger, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		store:  s,
		now:    time.Now,
		logger: logging.WithComponent(logger, "evaluator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks every untriggered alert against prices, keyed by display
// name, and returns the alerts that fired on this call in store order.
// Alerts without a price in the batch are skipped. The collection is written
// back only when something fired.
func (e *Evaluator) Evaluate(ctx context.Context, prices map[string]models.Quote) []models.Alert {
	if len(prices) == 0 {
		return nil
	}

	at := e.now()
	var fired []models.Alert

	logger := logging.FromContext(ctx, e.logger)
	_, err := e.store.Mutate(ctx, func(alerts []models.Alert) ([]models.Alert, bool) {
		for i := range alerts {
			a := &alerts[i]
			if a.Triggered {
				continue
			}
			q, ok := prices[a.Name]
			if !ok {
				continue
			}
			if !a.Crosses(q.Current) {
				continue
			}
			a.Trigger(at)
			fired = append(fired, *a)
		}
		return alerts, len(fired) > 0
	})
	if err != nil {
		logger.Error().Err(err).Int("triggered", len(fired)).Msg("Triggered alerts were not persisted")
	}

	for _, a := range fired {
		price := prices[a.Name].Current
		logging.LogAlert(logger, a.ID, a.Name, string(a.Type), a.Price, price)
		if e.audit != nil {
			_ = e.audit.LogAlertTriggered(ctx, a.ID, a.Symbol, a.Price, price)
		}
	}
	return fired
}
