package calendar

import (
	"fmt"
	"time"

	"github.com/vidhyam/school-calendar/pkg/dateutil"
)

// HolidayCheck is the outcome of a subject-specific holiday lookup
type HolidayCheck struct {
	Date      string `json:"date"`
	IsHoliday bool   `json:"isHoliday"`
	IsSunday  bool   `json:"isSunday"`
	HolidayID string `json:"holidayId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// bounds parses the holiday's inclusive range. ok is false when fromDate is unusable.
// A malformed or inverted toDate collapses the range to fromDate and is reported in err.
func (h Holiday) bounds() (from, to time.Time, ok bool, err error) {
	from, err = dateutil.ParseDay(h.FromDate)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("%w: holiday %q fromDate %q", ErrMalformedDate, h.Title, h.FromDate)
	}

	to, err = dateutil.ParseDay(h.EndDate())
	if err != nil {
		return from, from, true, fmt.Errorf("%w: holiday %q toDate %q", ErrMalformedDate, h.Title, h.ToDate)
	}

	if to.Before(from) {
		return from, from, true, fmt.Errorf("%w: holiday %q %s..%s", ErrInvertedRange, h.Title, h.FromDate, h.ToDate)
	}

	return from, to, true, nil
}

// ExpandHolidayDates returns every date of the holiday's inclusive range in ascending order.
//
// A malformed fromDate yields no dates. A malformed or inverted toDate yields the
// single day fromDate. In both cases the error describes the defect.
func ExpandHolidayDates(h Holiday) ([]string, error) {
	from, to, ok, err := h.bounds()
	if !ok {
		return nil, err
	}

	dates := make([]string, 0, int(to.Sub(from).Hours()/24)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, dateutil.FormatDay(d))
	}

	return dates, err
}

// BuildHolidayDateSet is the union of every holiday's dates.
//
// Class scoping and exemptions are not applied: the result is the school-wide
// "is this day off" view. Defective records contribute what they can and their
// errors are returned alongside the set.
func BuildHolidayDateSet(holidays []Holiday) (DateSet, []error) {
	set := make(DateSet)
	var errs []error

	for _, h := range holidays {
		dates, err := ExpandHolidayDates(h)
		if err != nil {
			errs = append(errs, err)
		}
		for _, d := range dates {
			set.Add(d)
		}
	}

	return set, errs
}

// BuildHolidayDateSetWithin is BuildHolidayDateSet clipped to the days [from, to].
// Its cost depends on the window, not on how far a holiday's range extends.
// from and to are calendar days; their clock and zone are ignored.
func BuildHolidayDateSetWithin(holidays []Holiday, from, to time.Time) DateSet {
	lo := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	hi := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return holidaySetWithin(holidays, lo, hi)
}

// holidaySetWithin builds the holiday set clipped to [lo, hi]
func holidaySetWithin(holidays []Holiday, lo, hi time.Time) DateSet {
	set := make(DateSet)

	for _, h := range holidays {
		from, to, ok, _ := h.bounds()
		if !ok || to.Before(lo) || from.After(hi) {
			continue
		}
		if from.Before(lo) {
			from = lo
		}
		if to.After(hi) {
			to = hi
		}
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			set.Add(dateutil.FormatDay(d))
		}
	}

	return set
}

// CheckHoliday answers "is date a day off for this subject".
//
// Sunday is a holiday for everyone. Otherwise the first declared holiday covering
// the date that applies to the subject's class and does not exempt the subject wins.
// Class scoping only applies to students with a known class.
func CheckHoliday(holidays []Holiday, date string, subject Subject) (HolidayCheck, error) {
	day, err := dateutil.ParseDay(date)
	if err != nil {
		return HolidayCheck{}, fmt.Errorf("%w: %q", ErrMalformedDate, date)
	}

	check := HolidayCheck{Date: dateutil.FormatDay(day)}

	if dateutil.IsSunday(day) {
		check.IsHoliday = true
		check.IsSunday = true
		check.Reason = "Sunday"
		return check, nil
	}

	for _, h := range holidays {
		from, to, ok, _ := h.bounds()
		if !ok || day.Before(from) || day.After(to) {
			continue
		}
		if subject.Role == RoleStudent && !h.AppliesToClass(subject.Class) {
			continue
		}
		if h.IsExempt(subject) {
			continue
		}

		check.IsHoliday = true
		check.HolidayID = h.ID
		check.Reason = h.Title
		return check, nil
	}

	return check, nil
}
