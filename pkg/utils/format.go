// Package utils provides formatting and retry helpers shared by the CLI and
// notifiers.
package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	thousand = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
)

// FormatNumber renders a price for display: thousands separators, a fixed
// number of decimals, at least three decimals for crypto prices below one,
// and M / Mrd suffixes for millions and billions.
func FormatNumber(value float64, isCrypto bool, decimals int32) string {
	d := decimal.NewFromFloat(value)

	if isCrypto && d.IsPositive() && d.LessThan(decimal.NewFromInt(1)) {
		if decimals < 3 {
			decimals = 3
		}
		return d.StringFixed(decimals)
	}

	abs := d.Abs()
	switch {
	case abs.GreaterThanOrEqual(billion):
		return groupThousands(d.Div(billion).StringFixed(2)) + " Mrd"
	case abs.GreaterThanOrEqual(thousand):
		return groupThousands(d.Div(thousand).StringFixed(2)) + " M"
	}
	return groupThousands(d.StringFixed(decimals))
}

// FormatPrice formats a price with two decimals, or crypto precision below one.
func FormatPrice(value float64, isCrypto bool) string {
	return FormatNumber(value, isCrypto, 2)
}

// FormatPercent formats a percentage with an explicit sign.
func FormatPercent(value float64) string {
	s := decimal.NewFromFloat(value).StringFixed(2) + "%"
	if value > 0 {
		return "+" + s
	}
	return s
}

// PercentChange returns the change from previous to current in percent.
// A zero previous value yields zero.
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	prev := decimal.NewFromFloat(previous)
	change := decimal.NewFromFloat(current).Sub(prev).Div(prev.Abs()).Mul(decimal.NewFromInt(100))
	f, _ := change.Float64()
	return f
}

// groupThousands inserts commas into the integer part of a plain decimal string.
func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := b.String() + frac
	if neg {
		return "-" + out
	}
	return out
}
