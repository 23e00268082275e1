package store

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "market-tracker/internal/errors"
	"market-tracker/internal/logging"
	"market-tracker/internal/models"
	"market-tracker/internal/security"
)

// DefaultAlertsKey is the key the alert collection is stored under.
const DefaultAlertsKey = "marketAlerts"

// AlertStore owns the alert collection. The whole collection lives as one
// JSON array under a single key and every mutation is a serialized
// read-modify-write of that blob.
type AlertStore struct {
	kv     KV
	key    string
	now    func() time.Time
	newID  func() (string, error)
	logger zerolog.Logger

	mu sync.Mutex
}

// AlertStoreOption configures an AlertStore.
type AlertStoreOption func(*AlertStore)

// WithKey overrides the storage key.
func WithKey(key string) AlertStoreOption {
	return func(s *AlertStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithClock overrides the clock used for createdAt.
func WithClock(now func() time.Time) AlertStoreOption {
	return func(s *AlertStore) { s.now = now }
}

// WithIDGenerator overrides alert id generation.
func WithIDGenerator(gen func() (string, error)) AlertStoreOption {
	return func(s *AlertStore) { s.newID = gen }
}

// NewAlertStore creates a store over kv.
func NewAlertStore(kv KV, logger zerolog.Logger, opts ...AlertStoreOption) *AlertStore {
	s := &AlertStore{
		kv:     kv,
		key:    DefaultAlertsKey,
		now:    time.Now,
		newID:  newAlertID,
		logger: logging.WithComponent(logger, "alert_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newAlertID returns a time-ordered UUID so ids sort in creation order.
func newAlertID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Key returns the storage key.
func (s *AlertStore) Key() string {
	return s.key
}

// List returns all alerts in creation order. A missing, unreadable or
// corrupt collection reads as empty.
func (s *AlertStore) List(ctx context.Context) []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Get returns one alert by id.
func (s *AlertStore) Get(ctx context.Context, id string) (models.Alert, bool) {
	for _, a := range s.List(ctx) {
		if a.ID == id {
			return a, true
		}
	}
	return models.Alert{}, false
}

// ForSymbol returns the alerts on one upstream symbol.
func (s *AlertStore) ForSymbol(ctx context.Context, symbol string) []models.Alert {
	var out []models.Alert
	for _, a := range s.List(ctx) {
		if a.Symbol == symbol {
			out = append(out, a)
		}
	}
	return out
}

// Append validates draft, assigns its identity and persists it. On a write
// failure the created alert is still returned together with the error.
func (s *AlertStore) Append(ctx context.Context, draft models.AlertDraft) (models.Alert, error) {
	if err := validateDraft(draft); err != nil {
		return models.Alert{}, err
	}
	symbol, _ := security.SanitizeSymbol(draft.Symbol)

	id, err := s.newID()
	if err != nil {
		return models.Alert{}, apperrors.Wrap(err, "generating alert id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alert := models.Alert{
		ID:        id,
		Symbol:    symbol,
		Name:      draft.Name,
		Type:      draft.Type,
		Price:     draft.Price,
		CreatedAt: s.now().UTC(),
	}
	alerts := append(s.load(ctx), alert)
	return alert, s.save(ctx, alerts)
}

// Remove deletes the alert with id. A missing id is a no-op.
func (s *AlertStore) Remove(ctx context.Context, id string) error {
	_, err := s.Mutate(ctx, func(alerts []models.Alert) ([]models.Alert, bool) {
		for i, a := range alerts {
			if a.ID == id {
				return append(alerts[:i:i], alerts[i+1:]...), true
			}
		}
		return alerts, false
	})
	return err
}

// Reset re-arms a triggered alert. A missing id is a no-op.
func (s *AlertStore) Reset(ctx context.Context, id string) error {
	_, err := s.Mutate(ctx, func(alerts []models.Alert) ([]models.Alert, bool) {
		for i := range alerts {
			if alerts[i].ID == id {
				alerts[i].Reset()
				return alerts, true
			}
		}
		return alerts, false
	})
	return err
}

// Ping reports whether the backend answers a read of the alerts key.
func (s *AlertStore) Ping(ctx context.Context) error {
	if _, _, err := s.kv.Get(ctx, s.key); err != nil {
		return apperrors.NewStorageError("get", s.key, err)
	}
	return nil
}

// ReplaceAll overwrites the whole collection.
func (s *AlertStore) ReplaceAll(ctx context.Context, alerts []models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, alerts)
}

// Mutate runs fn on the current collection under the store lock and
// persists the result when fn reports a change. It returns the collection as
// fn left it, even when the write fails.
func (s *AlertStore) Mutate(ctx context.Context, fn func([]models.Alert) ([]models.Alert, bool)) ([]models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts, changed := fn(s.load(ctx))
	if !changed {
		return alerts, nil
	}
	return alerts, s.save(ctx, alerts)
}

func (s *AlertStore) load(ctx context.Context) []models.Alert {
	raw, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.logger.Error().
			Err(apperrors.NewStorageError("get", s.key, err)).
			Msg("Failed to read alerts, continuing with an empty collection")
		return []models.Alert{}
	}
	if !found || raw == "" {
		return []models.Alert{}
	}

	var alerts []models.Alert
	if err := json.Unmarshal([]byte(raw), &alerts); err != nil {
		s.logger.Error().
			Err(apperrors.NewStorageError("decode", s.key, err)).
			Msg("Stored alerts are corrupt, continuing with an empty collection")
		return []models.Alert{}
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return alerts
}

func (s *AlertStore) save(ctx context.Context, alerts []models.Alert) error {
	if alerts == nil {
		alerts = []models.Alert{}
	}
	raw, err := json.Marshal(alerts)
	if err != nil {
		serr := apperrors.NewStorageError("encode", s.key, err)
		s.logger.Error().Err(serr).Msg("Failed to encode alerts")
		return serr
	}
	if err := s.kv.Set(ctx, s.key, string(raw)); err != nil {
		serr := apperrors.NewStorageError("set", s.key, err)
		s.logger.Error().Err(serr).Int("alerts", len(alerts)).Msg("Failed to persist alerts")
		return serr
	}
	return nil
}

func validateDraft(d models.AlertDraft) error {
	if d.Name == "" {
		return apperrors.NewValidationError("name", d.Name, "name is required")
	}
	if _, ok := security.SanitizeSymbol(d.Symbol); !ok {
		return apperrors.NewValidationError("symbol", security.SanitizeText(d.Symbol), "invalid symbol format")
	}
	if !d.Type.Valid() {
		return apperrors.NewValidationError("type", d.Type, "type must be above or below")
	}
	if math.IsNaN(d.Price) || math.IsInf(d.Price, 0) || d.Price <= 0 {
		return apperrors.NewValidationError("price", d.Price, "price must be a positive number")
	}
	return nil
}
