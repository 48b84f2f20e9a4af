package calendar

import (
	"fmt"
	"time"

	"github.com/vidhyam/school-calendar/pkg/dateutil"
)

// Stats aggregates a date range into mutually exclusive buckets.
// Total is Present+Absent+Holiday; Unmarked school days and Skipped records are
// reported separately and never counted in Total.
type Stats struct {
	Present  int `json:"present"`
	Absent   int `json:"absent"`
	Holiday  int `json:"holiday"`
	Total    int `json:"total"`
	Unmarked int `json:"unmarked"`
	Skipped  int `json:"skipped"` // events with malformed dates
}

// DayRecord is one day of a materialized attendance timeline
type DayRecord struct {
	Date     string           `json:"date"`
	Status   DayStatus        `json:"status"`
	IsSunday bool             `json:"isSunday"`
	Event    *AttendanceEvent `json:"event,omitempty"`
}

// eventLog is the date -> event lookup built from a sparse attendance log
type eventLog struct {
	byDate  map[string]AttendanceEvent
	skipped int
}

// indexEvents keeps the last event with a recognized status per date.
// Events with malformed dates are counted and dropped.
func indexEvents(events []AttendanceEvent) eventLog {
	log := eventLog{byDate: make(map[string]AttendanceEvent, len(events))}

	for _, ev := range events {
		day, err := dateutil.ParseDay(ev.Date)
		if err != nil {
			log.skipped++
			continue
		}
		if ev.NormalizedStatus() == StatusUnknown {
			continue
		}
		log.byDate[dateutil.FormatDay(day)] = ev
	}

	return log
}

// ClassifyDay resolves one date. An explicit present/absent record outranks the
// calendar; without one, an explicit holiday record, a Sunday or a declared
// holiday makes the day a holiday; anything else is an unmarked school day.
func ClassifyDay(day time.Time, status Status, holidayDates DateSet) DayStatus {
	switch status {
	case StatusPresent:
		return DayPresent
	case StatusAbsent:
		return DayAbsent
	case StatusHoliday:
		return DayHoliday
	}

	if dateutil.IsSunday(day) || holidayDates.Has(dateutil.FormatDay(day)) {
		return DayHoliday
	}
	return DayUnmarked
}

// walkRange visits every day of [rangeStart, rangeEnd] in order
func walkRange(events []AttendanceEvent, holidays []Holiday, rangeStart, rangeEnd string, visit func(DayRecord)) (int, error) {
	start, err := dateutil.ParseDay(rangeStart)
	if err != nil {
		return 0, fmt.Errorf("%w: range start %q", ErrMalformedDate, rangeStart)
	}
	end, err := dateutil.ParseDay(rangeEnd)
	if err != nil {
		return 0, fmt.Errorf("%w: range end %q", ErrMalformedDate, rangeEnd)
	}

	log := indexEvents(events)
	if end.Before(start) {
		return log.skipped, nil
	}

	holidayDates := holidaySetWithin(holidays, start, end)

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := dateutil.FormatDay(d)
		rec := DayRecord{Date: key, IsSunday: dateutil.IsSunday(d)}

		status := StatusUnknown
		if ev, ok := log.byDate[key]; ok {
			ev := ev
			rec.Event = &ev
			status = ev.NormalizedStatus()
		}
		rec.Status = ClassifyDay(d, status, holidayDates)

		visit(rec)
	}

	return log.skipped, nil
}

// ComputeAttendanceStats reconciles a sparse attendance log against the dense range
// [rangeStart, rangeEnd]. Events outside the range are ignored; an inverted range
// yields zero buckets. Only unparsable range bounds produce an error.
func ComputeAttendanceStats(events []AttendanceEvent, holidays []Holiday, rangeStart, rangeEnd string) (Stats, error) {
	var stats Stats

	skipped, err := walkRange(events, holidays, rangeStart, rangeEnd, func(rec DayRecord) {
		switch rec.Status {
		case DayPresent:
			stats.Present++
		case DayAbsent:
			stats.Absent++
		case DayHoliday:
			stats.Holiday++
		default:
			stats.Unmarked++
		}
	})
	if err != nil {
		return Stats{}, err
	}

	stats.Skipped = skipped
	stats.Total = stats.Present + stats.Absent + stats.Holiday

	return stats, nil
}

// Timeline materializes the dense day-by-day view behind ComputeAttendanceStats
func Timeline(events []AttendanceEvent, holidays []Holiday, rangeStart, rangeEnd string) ([]DayRecord, error) {
	var days []DayRecord

	_, err := walkRange(events, holidays, rangeStart, rangeEnd, func(rec DayRecord) {
		days = append(days, rec)
	})
	if err != nil {
		return nil, err
	}

	return days, nil
}

// InferRange returns the span from the earliest well-formed event date to today.
// ok is false when no event carries a parsable date.
func InferRange(events []AttendanceEvent, today string) (start, end string, ok bool) {
	var earliest time.Time

	for _, ev := range events {
		day, err := dateutil.ParseDay(ev.Date)
		if err != nil {
			continue
		}
		if !ok || day.Before(earliest) {
			earliest = day
			ok = true
		}
	}

	if !ok {
		return "", "", false
	}

	return dateutil.FormatDay(earliest), today, true
}
