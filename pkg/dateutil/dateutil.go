package dateutil

import (
	"fmt"
	"strings"
	"time"
)

// DayLayout is the calendar-date layout used on the wire and as set keys
const DayLayout = "2006-01-02"

// ParseDay parses a strict YYYY-MM-DD calendar date. The result is midnight UTC,
// so day arithmetic never crosses a DST boundary.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid calendar date %q: %w", s, err)
	}
	return t, nil
}

// FormatDay formats the date part as YYYY-MM-DD
func FormatDay(date time.Time) string {
	return date.Format(DayLayout)
}

// ParseDate parses date string in various formats and truncates it to the calendar day
// Timestamps keep their own offset: "2025-01-15T23:30:00+05:30" is 2025-01-15.
func ParseDate(dateStr string) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)

	formats := []string{
		DayLayout,
		"02.01.2006",
		"2006-01-02T15:04:05",
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05-0700",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %q", dateStr)
}

// DaysInMonth returns the number of Gregorian days in the month
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsSunday returns true if the date falls on a Sunday
func IsSunday(date time.Time) bool {
	return date.Weekday() == time.Sunday
}

// TodayIn returns today's calendar date as seen in loc
func TodayIn(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return FormatDay(now.In(loc))
}
