// Package models provides domain models for the market tracker.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertType is the direction an alert watches.
type AlertType string

const (
	AlertAbove AlertType = "above"
	AlertBelow AlertType = "below"
)

// Valid reports whether t is a supported alert direction.
func (t AlertType) Valid() bool {
	return t == AlertAbove || t == AlertBelow
}

// Alert represents a persisted price alert.
//
// TriggeredAt is non-nil exactly when Triggered is true. Once triggered an
// alert stays triggered until it is explicitly reset.
type Alert struct {
	ID          string     `json:"id"`
	Symbol      string     `json:"symbol"`
	Name        string     `json:"name"`
	Type        AlertType  `json:"type"`
	Price       float64    `json:"price"`
	CreatedAt   time.Time  `json:"createdAt"`
	Triggered   bool       `json:"triggered"`
	TriggeredAt *time.Time `json:"triggeredAt"`
}

// AlertDraft is the user-supplied part of an alert before the store assigns
// its identity and timestamps.
type AlertDraft struct {
	Symbol string
	Name   string
	Type   AlertType
	Price  float64
}

// Crosses reports whether price satisfies the alert threshold. Both
// directions are inclusive and compared in decimal.
func (a Alert) Crosses(price float64) bool {
	p := decimal.NewFromFloat(price)
	threshold := decimal.NewFromFloat(a.Price)
	switch a.Type {
	case AlertAbove:
		return p.GreaterThanOrEqual(threshold)
	case AlertBelow:
		return p.LessThanOrEqual(threshold)
	}
	return false
}

// Trigger marks the alert as fired at the given instant.
func (a *Alert) Trigger(at time.Time) {
	a.Triggered = true
	a.TriggeredAt = &at
}

// Reset re-arms a triggered alert.
func (a *Alert) Reset() {
	a.Triggered = false
	a.TriggeredAt = nil
}
