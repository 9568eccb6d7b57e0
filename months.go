package ard

import (
	"fmt"
	"strings"
	"time"
)

var referenceLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-1-2 15:4:5",
	"2006-1-2 15:4",
	"2006-1-2",
}

// ParseTimeUnits splits CF time units such as "months since 1955-01-01
// 00:00:00" into the unit and the reference date
func ParseTimeUnits(units string) (unit string, ref time.Time, err error) {
	parts := strings.Split(units, "since")
	if len(parts) != 2 {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimeUnits, units)
	}
	unit = strings.TrimSpace(parts[0])
	fields := strings.Fields(parts[1])
	if unit == "" || len(fields) == 0 {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimeUnits, units)
	}

	// a trailing time zone name such as "UTC" is ignored
	candidates := []string{fields[0]}
	if len(fields) > 1 {
		candidates = append([]string{fields[0] + " " + fields[1]}, candidates...)
	}
	for _, s := range candidates {
		for _, layout := range referenceLayouts {
			if ref, err = time.Parse(layout, s); err == nil {
				return unit, ref, nil
			}
		}
	}
	return "", time.Time{}, fmt.Errorf("%w: cannot parse reference date in %q", ErrMalformedTimeUnits, units)
}

// MonthStarts returns n consecutive month starts, beginning with ref when it
// is the first of a month at midnight and with the following month otherwise
func MonthStarts(ref time.Time, n int) []time.Time {
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	if start.Before(ref) {
		start = start.AddDate(0, 1, 0)
	}
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, i, 0)
	}
	return out
}

// MonthLabels names the twelve months following the reference date of CF
// time units
func MonthLabels(units string) ([]string, error) {
	_, ref, err := ParseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	return monthNames(MonthStarts(ref, 12)), nil
}

// CalendarMonths is January through December
func CalendarMonths() []string {
	return monthNames(MonthStarts(time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC), 12))
}

func monthNames(ts []time.Time) []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Month().String()
	}
	return names
}
