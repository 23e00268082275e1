// Package security provides input sanitization, audit logging, log masking,
// and encrypted storage of the API token.
package security

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	apperrors "market-tracker/internal/errors"
)

// Validation patterns
var (
	// Tickers and caret-prefixed index codes.
	tickerPattern = regexp.MustCompile(`^[A-Z0-9.^-]{1,20}$`)

	// Exchange crypto pairs quoted in USDT.
	cryptoPairPattern = regexp.MustCompile(`^BINANCE:[A-Z]{2,10}USDT$`)

	// API key patterns for detection (not validation)
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(api[_-]?key|apikey|token|access[_-]?token|auth[_-]?token|bearer)[=:\s]+["']?([A-Za-z0-9_\-\.]{8,})["']?`),
		regexp.MustCompile(`([A-Za-z0-9]{20,})`),
	}
)

// validResolutions is the closed set of candle resolutions.
var validResolutions = map[string]bool{
	"1": true, "5": true, "15": true, "30": true, "60": true,
	"D": true, "W": true, "M": true,
}

// MaxTimestampSkew is how far into the future a request timestamp may point.
const MaxTimestampSkew = 24 * time.Hour

// SanitizeSymbol trims and upper-cases raw and returns it if it is a ticker,
// an index code, or a supported crypto pair. Anything else is rejected.
func SanitizeSymbol(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	if tickerPattern.MatchString(s) || cryptoPairPattern.MatchString(s) {
		return s, true
	}
	return "", false
}

// IsValidResolution reports whether value is one of 1, 5, 15, 30, 60, D, W, M.
func IsValidResolution(value string) bool {
	return validResolutions[value]
}

// Resolutions returns the accepted resolution codes in ascending order.
func Resolutions() []string {
	return []string{"1", "5", "15", "30", "60", "D", "W", "M"}
}

// IsValidTimestamp reports whether ts (unix seconds) is positive and no more
// than a day ahead of now.
func IsValidTimestamp(ts int64, now time.Time) bool {
	return ts > 0 && ts <= now.Add(MaxTimestampSkew).Unix()
}

// IsValidTimestampValue is IsValidTimestamp for values of unknown provenance;
// non-integral and non-finite values are rejected.
func IsValidTimestampValue(v float64, now time.Time) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return false
	}
	if v > math.MaxInt64/2 {
		return false
	}
	return IsValidTimestamp(int64(v), now)
}

// Validator applies the predicates and turns rejections into
// ValidationErrors, recording each rejection in the audit log.
type Validator struct {
	now   func() time.Time
	audit *AuditLogger
}

// NewValidator creates a validator. audit may be nil.
func NewValidator(now func() time.Time, audit *AuditLogger) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now, audit: audit}
}

// Symbol returns the sanitized symbol or a ValidationError.
func (v *Validator) Symbol(ctx context.Context, raw string) (string, error) {
	s, ok := SanitizeSymbol(raw)
	if !ok {
		return "", v.reject(ctx, "symbol", raw, "invalid symbol format")
	}
	return s, nil
}

// Resolution validates a candle resolution.
func (v *Validator) Resolution(ctx context.Context, res string) error {
	if !IsValidResolution(res) {
		return v.reject(ctx, "resolution", res, "unsupported resolution")
	}
	return nil
}

// Timestamp validates a single request timestamp.
func (v *Validator) Timestamp(ctx context.Context, field string, ts int64) error {
	if !IsValidTimestamp(ts, v.now()) {
		return v.reject(ctx, field, fmt.Sprintf("%d", ts), "timestamp out of range")
	}
	return nil
}

// CandleRange validates both ends of a candle request and their order.
func (v *Validator) CandleRange(ctx context.Context, from, to int64) error {
	if err := v.Timestamp(ctx, "from", from); err != nil {
		return err
	}
	if err := v.Timestamp(ctx, "to", to); err != nil {
		return err
	}
	if from > to {
		return v.reject(ctx, "from", fmt.Sprintf("%d", from), "range start is after range end")
	}
	return nil
}

func (v *Validator) reject(ctx context.Context, field, value, reason string) error {
	if v.audit != nil {
		_ = v.audit.LogInputValidation(ctx, field, value, reason)
	}
	return apperrors.NewValidationError(field, MaskSensitive(SanitizeText(value)), reason)
}

// SanitizeText removes control characters from free-form text.
func SanitizeText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// MaskSensitive masks token-like data in a string.
func MaskSensitive(input string) string {
	result := input
	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if len(match) > 8 {
				return match[:4] + strings.Repeat("*", len(match)-8) + match[len(match)-4:]
			}
			return strings.Repeat("*", len(match))
		})
	}
	return result
}

// MaskCredential masks a credential value for display.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
