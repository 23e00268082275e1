// Package resilience provides the process-wide request throttle that guards
// the quote API, and component health checks.
package resilience

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Category names a class of outbound request with its own budget.
type Category string

const (
	CategoryQuotes  Category = "quotes"
	CategoryCandles Category = "candles"
)

// Limits holds per-category capacities for one window.
type Limits struct {
	Quotes  int
	Candles int
	Window  time.Duration
}

// DefaultLimits returns 60 quote and 30 candle requests per minute.
func DefaultLimits() Limits {
	return Limits{
		Quotes:  60,
		Candles: 30,
		Window:  time.Minute,
	}
}

// Window is the counter state of one category.
type Window struct {
	Count     int
	Capacity  int
	ResetTime time.Time
}

// Remaining returns how many requests the current window still admits.
func (w Window) Remaining() int {
	if r := w.Capacity - w.Count; r > 0 {
		return r
	}
	return 0
}

// Limiter is a fixed-window counter per category. Up to twice the capacity
// can pass across a window boundary.
type Limiter struct {
	mu      sync.Mutex
	now     func() time.Time
	window  time.Duration
	windows map[Category]*Window
	logger  zerolog.Logger
}

// NewLimiter creates a limiter. now may be nil to use the wall clock.
func NewLimiter(limits Limits, now func() time.Time, logger zerolog.Logger) *Limiter {
	if now == nil {
		now = time.Now
	}
	if limits.Window <= 0 {
		limits.Window = time.Minute
	}
	return &Limiter{
		now:    now,
		window: limits.Window,
		windows: map[Category]*Window{
			CategoryQuotes:  {Capacity: limits.Quotes},
			CategoryCandles: {Capacity: limits.Candles},
		},
		logger: logger,
	}
}

// Allow consumes one request from category and reports whether it may
// proceed. A denied call does not change the counter. Unknown categories are
// always denied.
func (l *Limiter) Allow(category Category) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[category]
	if !ok {
		l.logger.Warn().Str("category", string(category)).Msg("Unknown rate limit category")
		return false
	}

	now := l.now()
	if now.After(w.ResetTime) {
		w.Count = 0
		w.ResetTime = now.Add(l.window)
	}

	if w.Count >= w.Capacity {
		return false
	}
	w.Count++
	return true
}

// Snapshot returns a copy of a category's window.
func (l *Limiter) Snapshot(category Category) (Window, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[category]
	if !ok {
		return Window{}, false
	}
	return *w, true
}
