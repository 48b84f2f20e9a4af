package calendar

import (
	"fmt"
	"time"

	"github.com/vidhyam/school-calendar/pkg/dateutil"
)

// Cell is one day slot of a month grid
type Cell struct {
	Day       int    `json:"day"`
	Date      string `json:"date"`
	IsSunday  bool   `json:"isSunday"`
	IsHoliday bool   `json:"isHoliday"` // Sunday or declared holiday
	IsToday   bool   `json:"isToday"`
}

// MonthInfo represents calendar information for a month
type MonthInfo struct {
	Year       int        `json:"year"`
	Month      time.Month `json:"month"`
	SchoolDays int        `json:"schoolDays"`
	Sundays    int        `json:"sundays"`
	Holidays   int        `json:"holidays"` // declared holidays not falling on a Sunday
	Cells      []*Cell    `json:"cells"`    // nil entries are leading placeholders
}

// BuildMonthGrid lays out a Sunday-first month grid.
//
// The result starts with one nil placeholder per weekday before the 1st, followed by
// exactly one cell per day of the month; no trailing padding is added. month uses
// time.Month numbering (January == 1). today is a YYYY-MM-DD date supplied by the
// caller so the grid stays deterministic.
func BuildMonthGrid(year int, month time.Month, holidayDates DateSet, today string) ([]*Cell, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMonth, int(month))
	}
	if year < 1 || year > 9999 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidYear, year)
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	firstWeekday := int(first.Weekday())
	daysInMonth := dateutil.DaysInMonth(year, month)

	cells := make([]*Cell, firstWeekday, firstWeekday+daysInMonth)

	for day := 1; day <= daysInMonth; day++ {
		date := first.AddDate(0, 0, day-1)
		dateStr := dateutil.FormatDay(date)
		isSunday := dateutil.IsSunday(date)

		cells = append(cells, &Cell{
			Day:       day,
			Date:      dateStr,
			IsSunday:  isSunday,
			IsHoliday: isSunday || holidayDates.Has(dateStr),
			IsToday:   dateStr == today,
		})
	}

	return cells, nil
}

// NewMonthInfo summarizes a grid produced by BuildMonthGrid
func NewMonthInfo(year int, month time.Month, cells []*Cell) *MonthInfo {
	info := &MonthInfo{
		Year:  year,
		Month: month,
		Cells: cells,
	}

	for _, c := range cells {
		switch {
		case c == nil:
		case c.IsSunday:
			info.Sundays++
		case c.IsHoliday:
			info.Holidays++
		default:
			info.SchoolDays++
		}
	}

	return info
}
