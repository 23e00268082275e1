package quotes

import (
	"fmt"
	"strings"
	"time"

	apperrors "market-tracker/internal/errors"
)

// Period is a chart range preset.
type Period string

const (
	Period1M  Period = "1M"
	Period6M  Period = "6M"
	Period1Y  Period = "1Y"
	PeriodAll Period = "ALL"
)

const day = 24 * time.Hour

type periodSpec struct {
	resolution string
	span       time.Duration
}

var periods = map[Period]periodSpec{
	Period1M:  {"D", 30 * day},
	Period6M:  {"W", 180 * day},
	Period1Y:  {"W", 365 * day},
	PeriodAll: {"M", 5 * 365 * day},
}

// ParsePeriod accepts a preset name case-insensitively.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := periods[p]; !ok {
		return "", apperrors.NewValidationError("period", s, fmt.Sprintf("expected one of %s, %s, %s, %s", Period1M, Period6M, Period1Y, PeriodAll))
	}
	return p, nil
}

// HistoryWindow returns the resolution and the [from, to] range in unix
// seconds covering period up to now.
func HistoryWindow(p Period, now time.Time) (resolution string, from, to int64, err error) {
	spec, ok := periods[p]
	if !ok {
		return "", 0, 0, apperrors.NewValidationError("period", string(p), "unknown period")
	}
	to = now.Unix()
	from = now.Add(-spec.span).Unix()
	return spec.resolution, from, to, nil
}
