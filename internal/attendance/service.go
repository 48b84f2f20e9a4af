// Package attendance ties the data sources to the calendar engine for one school.
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/vidhyam/school-calendar/internal/calendar"
	"github.com/vidhyam/school-calendar/internal/source"
	"github.com/vidhyam/school-calendar/pkg/dateutil"
	"go.uber.org/zap"
)

// Service answers calendar and attendance questions for one school
type Service struct {
	schoolID   string
	holidays   source.HolidaySource
	attendance source.AttendanceSource
	location   *time.Location
	now        func() time.Time
	logger     *zap.Logger
}

// Summary is the attendance breakdown of one subject over a date range
type Summary struct {
	Role     calendar.Role  `json:"role"`
	UserID   string         `json:"userId"`
	From     string         `json:"from,omitempty"`
	To       string         `json:"to,omitempty"`
	Inferred bool           `json:"inferred"` // From was taken from the earliest record
	Stats    calendar.Stats `json:"stats"`
}

// Report is a Summary plus, optionally, its timeline
type Report struct {
	Summary *Summary             `json:"summary"`
	Days    []calendar.DayRecord `json:"days,omitempty"`
}

// NewService creates a new attendance service. "Today" is evaluated in loc.
func NewService(
	schoolID string,
	holidays source.HolidaySource,
	attendance source.AttendanceSource,
	loc *time.Location,
	logger *zap.Logger,
) *Service {
	if loc == nil {
		loc = time.Local
	}

	return &Service{
		schoolID:   schoolID,
		holidays:   holidays,
		attendance: attendance,
		location:   loc,
		now:        time.Now,
		logger:     logger,
	}
}

// Now returns the current time at the school
func (s *Service) Now() time.Time {
	return s.now().In(s.location)
}

// Today returns the current calendar date at the school
func (s *Service) Today() string {
	return dateutil.TodayIn(s.now(), s.location)
}

// loadHolidays fetches holidays and reports defective records
func (s *Service) loadHolidays(ctx context.Context) ([]calendar.Holiday, error) {
	holidays, err := s.holidays.ListHolidays(ctx, s.schoolID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holidays: %w", err)
	}

	for _, h := range holidays {
		if err := calendar.ValidateHoliday(h); err != nil {
			s.logger.Warn("Defective holiday record",
				zap.String("school_id", s.schoolID),
				zap.String("holiday_id", h.ID),
				zap.Error(err))
		}
	}

	return holidays, nil
}

// MonthCalendar builds the month grid with Sundays and declared holidays marked
func (s *Service) MonthCalendar(ctx context.Context, year int, month time.Month) (*calendar.MonthInfo, error) {
	holidays, err := s.loadHolidays(ctx)
	if err != nil {
		return nil, err
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	dates := calendar.BuildHolidayDateSetWithin(holidays, first, first.AddDate(0, 1, -1))

	cells, err := calendar.BuildMonthGrid(year, month, dates, s.Today())
	if err != nil {
		return nil, err
	}

	info := calendar.NewMonthInfo(year, month, cells)

	s.logger.Info("Month calendar built",
		zap.Int("year", year),
		zap.String("month", month.String()),
		zap.Int("school_days", info.SchoolDays),
		zap.Int("sundays", info.Sundays),
		zap.Int("holidays", info.Holidays))

	return info, nil
}

// resolveRange fills in an empty from with the earliest record date and an empty
// to with today. ok is false when from is empty and the log has no usable dates.
func (s *Service) resolveRange(events []calendar.AttendanceEvent, from, to string) (string, string, bool, bool) {
	today := s.Today()
	inferred := false

	if from == "" {
		start, _, ok := calendar.InferRange(events, today)
		if !ok {
			return "", "", false, false
		}
		from = start
		inferred = true
	}
	if to == "" {
		to = today
	}

	return from, to, inferred, true
}

func (s *Service) load(ctx context.Context, role calendar.Role, userID string) ([]calendar.AttendanceEvent, []calendar.Holiday, error) {
	events, err := s.attendance.ListAttendance(ctx, s.schoolID, role, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load attendance for %s %s: %w", role, userID, err)
	}

	holidays, err := s.loadHolidays(ctx)
	if err != nil {
		return nil, nil, err
	}

	return events, holidays, nil
}

// Summary computes the attendance buckets for one subject.
// Empty from defaults to the earliest record, empty to defaults to today.
func (s *Service) Summary(ctx context.Context, role calendar.Role, userID, from, to string) (*Summary, error) {
	report, err := s.Report(ctx, role, userID, from, to, false)
	if err != nil {
		return nil, err
	}
	return report.Summary, nil
}

// Report computes Summary and, when withDays is set, the day-by-day timeline
// behind it, from a single fetch of attendance and holidays.
func (s *Service) Report(ctx context.Context, role calendar.Role, userID, from, to string, withDays bool) (*Report, error) {
	events, holidays, err := s.load(ctx, role, userID)
	if err != nil {
		return nil, err
	}

	report := &Report{Summary: &Summary{Role: role, UserID: userID}}

	from, to, inferred, ok := s.resolveRange(events, from, to)
	if !ok {
		s.logger.Info("No attendance recorded", zap.String("role", string(role)), zap.String("user_id", userID))
		return report, nil
	}

	stats, err := calendar.ComputeAttendanceStats(events, holidays, from, to)
	if err != nil {
		return nil, err
	}
	if stats.Skipped > 0 {
		s.logger.Warn("Skipped attendance records with malformed dates",
			zap.String("user_id", userID),
			zap.Int("skipped", stats.Skipped))
	}

	report.Summary.From = from
	report.Summary.To = to
	report.Summary.Inferred = inferred
	report.Summary.Stats = stats

	if withDays {
		report.Days, err = calendar.Timeline(events, holidays, from, to)
		if err != nil {
			return nil, err
		}
	}

	s.logger.Info("Attendance summary computed",
		zap.String("role", string(role)),
		zap.String("user_id", userID),
		zap.String("from", from),
		zap.String("to", to),
		zap.Int("present", stats.Present),
		zap.Int("absent", stats.Absent),
		zap.Int("holiday", stats.Holiday))

	return report, nil
}

// CheckHoliday reports whether date is a day off for subject. An empty date means today.
func (s *Service) CheckHoliday(ctx context.Context, date string, subject calendar.Subject) (calendar.HolidayCheck, error) {
	if date == "" {
		date = s.Today()
	}

	holidays, err := s.loadHolidays(ctx)
	if err != nil {
		return calendar.HolidayCheck{}, err
	}

	return calendar.CheckHoliday(holidays, date, subject)
}
