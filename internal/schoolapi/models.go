package schoolapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vidhyam/school-calendar/internal/calendar"
	"github.com/vidhyam/school-calendar/pkg/dateutil"
)

// envelope is the {success, data} wrapper every operations endpoint returns
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) failureMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Error != "" {
		return e.Error
	}
	return "request was not successful"
}

// FlexibleID handles both string and number IDs
// Rows created by different backends carry UUID strings or serial integers.
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler for FlexibleID
func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexibleID(s)
		return nil
	}

	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = FlexibleID(strconv.FormatInt(n, 10))
		return nil
	}

	if string(b) == "null" {
		*f = ""
		return nil
	}

	return fmt.Errorf("FlexibleID: cannot unmarshal %s", string(b))
}

// String returns string representation
func (f FlexibleID) String() string {
	return string(f)
}

// IDList accepts a JSON array of IDs, a single ID, or a comma-separated string
type IDList []string

// UnmarshalJSON implements json.Unmarshaler for IDList
func (l *IDList) UnmarshalJSON(b []byte) error {
	var ids []FlexibleID
	if err := json.Unmarshal(b, &ids); err == nil {
		out := make(IDList, 0, len(ids))
		for _, id := range ids {
			if s := strings.TrimSpace(id.String()); s != "" {
				out = append(out, s)
			}
		}
		*l = out
		return nil
	}

	var single FlexibleID
	if err := single.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("IDList: cannot unmarshal %s", string(b))
	}

	var out IDList
	for _, part := range strings.Split(single.String(), ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// Holiday is the wire form of a school holiday
type Holiday struct {
	ID              FlexibleID `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	FromDate        string     `json:"fromDate"`
	ToDate          string     `json:"toDate"`
	Classes         IDList     `json:"classes"`
	ExemptEmployees IDList     `json:"exemptEmployees"`
	ExemptStudents  IDList     `json:"exemptStudents"`
	CreatedAt       string     `json:"createdAt"`
}

// ToCalendar converts the wire holiday, truncating timestamp dates to the calendar day
func (h Holiday) ToCalendar() calendar.Holiday {
	return calendar.Holiday{
		ID:              h.ID.String(),
		Title:           h.Title,
		Description:     h.Description,
		FromDate:        calendarDay(h.FromDate),
		ToDate:          calendarDay(h.ToDate),
		Classes:         h.Classes,
		ExemptEmployees: h.ExemptEmployees,
		ExemptStudents:  h.ExemptStudents,
		CreatedAt:       h.CreatedAt,
	}
}

// AttendanceRecord is the wire form of one attendance log entry
type AttendanceRecord struct {
	Date        string                 `json:"date"`
	Status      string                 `json:"status"`
	Action      string                 `json:"action"`
	Data        map[string]interface{} `json:"data"`
	InTime      interface{}            `json:"inTime"`
	OutTime     interface{}            `json:"outTime"`
	TotalTime   interface{}            `json:"totalTime"`
	Reason      string                 `json:"reason"`
	Description string                 `json:"description"`
}

// ToCalendar converts the wire record. Top-level timing and reason fields are
// folded into Data so no producer-specific payload is lost.
func (r AttendanceRecord) ToCalendar() calendar.AttendanceEvent {
	ev := calendar.AttendanceEvent{
		Date:   calendarDay(r.Date),
		Status: r.Status,
		Action: r.Action,
	}

	data := make(map[string]interface{}, len(r.Data)+5)
	for k, v := range r.Data {
		data[k] = v
	}
	setIfPresent(data, "inTime", r.InTime)
	setIfPresent(data, "outTime", r.OutTime)
	setIfPresent(data, "totalTime", r.TotalTime)
	if r.Reason != "" {
		setIfPresent(data, "reason", r.Reason)
	}
	if r.Description != "" {
		setIfPresent(data, "description", r.Description)
	}
	if len(data) > 0 {
		ev.Data = data
	}

	return ev
}

func setIfPresent(data map[string]interface{}, key string, v interface{}) {
	if v == nil {
		return
	}
	if _, exists := data[key]; !exists {
		data[key] = v
	}
}

// calendarDay normalizes any supported date or timestamp to YYYY-MM-DD.
// Unparsable values pass through untouched so the engine can count them as skipped.
func calendarDay(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	t, err := dateutil.ParseDate(raw)
	if err != nil {
		return raw
	}
	return dateutil.FormatDay(t)
}
