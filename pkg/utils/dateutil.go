// Package utils provides small shared helpers: date parsing for the
// upstream tables' mixed formats and reporting-period arithmetic.
package utils

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are the formats observed in upstream date columns, tried
// in order.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
}

// openEndSentinel is the placeholder some directory exports use for a
// still-active definition instead of a null end date.
const openEndSentinel = "9999-12-31"

// ParseDate parses an upstream date string. The time component, if any,
// is discarded; the result is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseEndDate parses a validity end date. Empty, "null", and the
// 9999-12-31 sentinel all mean "still active" and return nil.
func ParseEndDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || s == openEndSentinel {
		return nil, nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// QuarterEnd returns the last day of the calendar quarter containing d.
func QuarterEnd(d time.Time) time.Time {
	q := (int(d.Month()) - 1) / 3
	firstOfNext := time.Date(d.Year(), time.Month(q*3+4), 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.AddDate(0, 0, -1)
}

// IsQuarterEnd reports whether d is the last day of a calendar quarter.
// FR Y-9C reporting periods always fall on quarter ends.
func IsQuarterEnd(d time.Time) bool {
	return d.Equal(QuarterEnd(d))
}

// FormatDate renders a date in the canonical YYYY-MM-DD form used across
// the API and CSV output.
func FormatDate(d time.Time) string {
	return d.Format("2006-01-02")
}
