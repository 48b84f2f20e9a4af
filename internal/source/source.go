// Package source provides the holiday and attendance data sources the calendar
// engine is fed from: the school REST API (see schoolapi), JSON fixture files,
// PostgreSQL, and a Redis cache in front of any holiday source.
package source

import (
	"context"

	"github.com/vidhyam/school-calendar/internal/calendar"
)

// HolidaySource lists a school's declared holidays
type HolidaySource interface {
	ListHolidays(ctx context.Context, schoolID string) ([]calendar.Holiday, error)
}

// AttendanceSource lists the attendance log of one student or employee
type AttendanceSource interface {
	ListAttendance(ctx context.Context, schoolID string, role calendar.Role, userID string) ([]calendar.AttendanceEvent, error)
}
