// Package calendar is the holiday-aware school calendar engine.
//
// Every function in this package is pure: inputs are already-fetched holiday and
// attendance records, outputs are freshly allocated values. Nothing here performs
// I/O, logs, caches or reads the wall clock; "today" is always passed in by the caller.
package calendar

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedDate is returned for a date string that is not a YYYY-MM-DD calendar date
	ErrMalformedDate = errors.New("malformed calendar date")

	// ErrInvertedRange is returned for a holiday whose toDate precedes its fromDate
	ErrInvertedRange = errors.New("holiday toDate precedes fromDate")

	// ErrInvalidMonth is returned for a month outside 1..12
	ErrInvalidMonth = errors.New("month must be between 1 and 12")

	// ErrInvalidYear is returned for a year outside 1..9999
	ErrInvalidYear = errors.New("year must be between 1 and 9999")

	// ErrInvalidHoliday wraps validation failures of a holiday record
	ErrInvalidHoliday = errors.New("invalid holiday")
)

// AllClasses is the classes sentinel meaning "every class"
const AllClasses = "All"

// Holiday is a school-declared non-attendance date range
type Holiday struct {
	ID              string   `json:"id,omitempty"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	FromDate        string   `json:"fromDate" validate:"required,datetime=2006-01-02"`
	ToDate          string   `json:"toDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Classes         []string `json:"classes,omitempty" validate:"dive,required"`
	ExemptEmployees []string `json:"exemptEmployees,omitempty" validate:"dive,required"`
	ExemptStudents  []string `json:"exemptStudents,omitempty" validate:"dive,required"`
	CreatedAt       string   `json:"createdAt,omitempty"`
}

// EndDate returns toDate, defaulting to fromDate when empty
func (h Holiday) EndDate() string {
	if strings.TrimSpace(h.ToDate) == "" {
		return h.FromDate
	}
	return h.ToDate
}

// IsAllClasses reports whether the holiday carries the "All" classes sentinel
func (h Holiday) IsAllClasses() bool {
	for _, c := range h.Classes {
		if strings.EqualFold(strings.TrimSpace(c), AllClasses) {
			return true
		}
	}
	return false
}

// AppliesToClass reports whether the holiday covers the given class.
// An empty class list, the "All" sentinel or an unknown class all mean school-wide.
func (h Holiday) AppliesToClass(class string) bool {
	class = strings.TrimSpace(class)
	if class == "" || len(h.Classes) == 0 || h.IsAllClasses() {
		return true
	}
	for _, c := range h.Classes {
		if strings.TrimSpace(c) == class {
			return true
		}
	}
	return false
}

// IsExempt reports whether the subject is named in the holiday's exemption list for its role
func (h Holiday) IsExempt(subject Subject) bool {
	var ids []string
	switch subject.Role {
	case RoleEmployee:
		ids = h.ExemptEmployees
	case RoleStudent:
		ids = h.ExemptStudents
	default:
		return false
	}

	for _, id := range ids {
		if id == subject.ID {
			return true
		}
	}
	return false
}

// Status is a normalized attendance status
type Status string

const (
	StatusUnknown Status = ""
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusHoliday Status = "holiday"
)

// AttendanceEvent is one date-stamped attendance record for a single subject
type AttendanceEvent struct {
	Date   string                 `json:"date"`
	Status string                 `json:"status,omitempty"`
	Action string                 `json:"action,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// NormalizedStatus maps the producer-specific status/action fields onto Status.
// A recognized action marker wins; otherwise the explicit status field is trusted.
func (e AttendanceEvent) NormalizedStatus() Status {
	if st := normalizeMarker(e.Action); st != StatusUnknown {
		return st
	}
	return normalizeMarker(e.Status)
}

func normalizeMarker(v string) Status {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "present", "present_marked":
		return StatusPresent
	case "absent", "absent_marked":
		return StatusAbsent
	case "holiday", "holiday_marked":
		return StatusHoliday
	default:
		return StatusUnknown
	}
}

// DayStatus is the resolved status of one day in a materialized timeline
type DayStatus int

const (
	DayUnmarked DayStatus = iota + 1
	DayPresent
	DayAbsent
	DayHoliday
)

// String returns the lowercase status name
func (s DayStatus) String() string {
	switch s {
	case DayPresent:
		return "present"
	case DayAbsent:
		return "absent"
	case DayHoliday:
		return "holiday"
	case DayUnmarked:
		return "unmarked"
	default:
		return fmt.Sprintf("DayStatus(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler
func (s DayStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Role identifies whose attendance is being looked at
type Role string

const (
	RoleStudent  Role = "student"
	RoleEmployee Role = "employee"
)

// ParseRole validates a role name
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleEmployee:
		return RoleEmployee, nil
	default:
		return "", fmt.Errorf("invalid role %q: must be 'student' or 'employee'", s)
	}
}

// Subject is a student or employee for subject-specific holiday checks
type Subject struct {
	Role  Role
	ID    string
	Class string // students only; empty means unknown
}

// DateSet is a set of YYYY-MM-DD dates
type DateSet map[string]struct{}

// Has reports whether the date is in the set
func (s DateSet) Has(date string) bool {
	_, ok := s[date]
	return ok
}

// Add inserts the date
func (s DateSet) Add(date string) {
	s[date] = struct{}{}
}
