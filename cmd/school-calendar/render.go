package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/vidhyam/school-calendar/internal/attendance"
	"github.com/vidhyam/school-calendar/internal/calendar"
	"github.com/vidhyam/school-calendar/pkg/dateutil"
)

var weekdayHeader = []string{"Su", "Mo", "Tu", "We", "Th", "Fr", "Sa"}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderMonth prints a Sunday-first grid. "*" marks a holiday, "<" marks today.
func renderMonth(w io.Writer, info *calendar.MonthInfo) {
	fmt.Fprintf(w, "%s %d\n", info.Month, info.Year)
	for _, name := range weekdayHeader {
		fmt.Fprintf(w, "%-5s", name)
	}
	fmt.Fprintln(w)

	for i, cell := range info.Cells {
		if cell == nil {
			fmt.Fprint(w, strings.Repeat(" ", 5))
		} else {
			fmt.Fprintf(w, "%2d%s%s ", cell.Day, mark(cell.IsHoliday, "*"), mark(cell.IsToday, "<"))
		}
		if i%7 == 6 {
			fmt.Fprintln(w)
		}
	}
	if len(info.Cells)%7 != 0 {
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\nSchool days: %d  Sundays: %d  Holidays: %d\n", info.SchoolDays, info.Sundays, info.Holidays)
}

func mark(on bool, symbol string) string {
	if on {
		return symbol
	}
	return " "
}

func renderSummary(w io.Writer, s *attendance.Summary) {
	if s.From == "" {
		fmt.Fprintf(w, "No attendance recorded for %s %s\n", s.Role, s.UserID)
		return
	}

	note := ""
	if s.Inferred {
		note = ", from first record"
	}
	fmt.Fprintf(w, "Attendance for %s %s (%s .. %s%s)\n", s.Role, s.UserID, s.From, s.To, note)
	fmt.Fprintln(w, strings.Repeat("=", 48))
	fmt.Fprintf(w, "  Present:   %d\n", s.Stats.Present)
	fmt.Fprintf(w, "  Absent:    %d\n", s.Stats.Absent)
	fmt.Fprintf(w, "  Holiday:   %d\n", s.Stats.Holiday)
	fmt.Fprintf(w, "  Total:     %d\n", s.Stats.Total)
	if s.Stats.Unmarked > 0 {
		fmt.Fprintf(w, "  Unmarked:  %d school day(s) without a record\n", s.Stats.Unmarked)
	}
	if s.Stats.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped:   %d record(s) with malformed dates\n", s.Stats.Skipped)
	}
	if rate, ok := attendanceRate(s.Stats); ok {
		fmt.Fprintf(w, "  Rate:      %.1f%% of marked school days\n", rate)
	}
}

// attendanceRate is present / (present + absent) as a percentage
func attendanceRate(s calendar.Stats) (float64, bool) {
	marked := s.Present + s.Absent
	if marked == 0 {
		return 0, false
	}
	return float64(s.Present) * 100 / float64(marked), true
}

func renderTimeline(w io.Writer, days []calendar.DayRecord) {
	if len(days) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, d := range days {
		weekday := "   "
		if t, err := dateutil.ParseDay(d.Date); err == nil {
			weekday = t.Weekday().String()[:3]
		}
		fmt.Fprintf(w, "  %s %s  %s\n", d.Date, weekday, d.Status)
	}
}

func renderCheck(w io.Writer, c calendar.HolidayCheck) {
	if !c.IsHoliday {
		fmt.Fprintf(w, "%s: school day\n", c.Date)
		return
	}
	fmt.Fprintf(w, "%s: holiday (%s)\n", c.Date, c.Reason)
}
