package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vidhyam/school-calendar/internal/calendar"
	"go.uber.org/zap"
)

// FileSource serves holidays and attendance logs from a local JSON file.
//
// Accepted layouts:
//
//	[ {holiday}, ... ]                                  bare holiday array
//	{"success": true, "data": [ {holiday}, ... ]}       saved API response
//	{"holidays": [...], "attendance": {"student/S1": [...], "employee/E7": [...]}}
//
// A file with the .txt extension is a plain holiday list, one per line:
//
//	# comment
//	2025-01-26 Republic Day
//	2025-10-20..2025-10-21 Diwali
//
// The file is not scoped by school: every school ID sees the same data.
type FileSource struct {
	filePath string
	logger   *zap.Logger

	mu         sync.Mutex
	loaded     bool
	holidays   []calendar.Holiday
	attendance map[string][]calendar.AttendanceEvent // key: "role/userID"
}

type fileDocument struct {
	Data       []calendar.Holiday                    `json:"data"`
	Holidays   []calendar.Holiday                    `json:"holidays"`
	Attendance map[string][]calendar.AttendanceEvent `json:"attendance"`
}

// NewFileSource creates a new FileSource instance
func NewFileSource(filePath string, logger *zap.Logger) *FileSource {
	return &FileSource{
		filePath:   filePath,
		logger:     logger,
		attendance: make(map[string][]calendar.AttendanceEvent),
	}
}

// Load reads the file. Invalid holiday records are kept and reported as warnings;
// the engine decides what to do with them.
func (fs *FileSource) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.loadLocked()
}

func (fs *FileSource) loadLocked() error {
	raw, err := os.ReadFile(fs.filePath)
	if err != nil {
		return fmt.Errorf("failed to read calendar file: %w", err)
	}

	var doc fileDocument
	trimmed := bytes.TrimSpace(raw)
	if strings.EqualFold(filepath.Ext(fs.filePath), ".txt") {
		doc.Holidays, err = fs.parseHolidayLines(trimmed)
	} else if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &doc.Holidays)
	} else {
		err = json.Unmarshal(trimmed, &doc)
	}
	if err != nil {
		return fmt.Errorf("failed to parse calendar file %s: %w", fs.filePath, err)
	}

	holidays := append(doc.Holidays, doc.Data...)
	for _, h := range holidays {
		if err := calendar.ValidateHoliday(h); err != nil {
			fs.logger.Warn("Invalid holiday record in file",
				zap.String("file", fs.filePath),
				zap.String("holiday_id", h.ID),
				zap.Error(err))
		}
	}

	fs.holidays = holidays
	fs.attendance = doc.Attendance
	if fs.attendance == nil {
		fs.attendance = make(map[string][]calendar.AttendanceEvent)
	}
	fs.loaded = true

	fs.logger.Info("Calendar file loaded",
		zap.String("file", fs.filePath),
		zap.Int("holidays", len(fs.holidays)),
		zap.Int("attendance_logs", len(fs.attendance)))

	return nil
}

// parseHolidayLines reads "FROM[..TO] title" lines
func (fs *FileSource) parseHolidayLines(raw []byte) ([]calendar.Holiday, error) {
	var holidays []calendar.Holiday

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, " ", 2)
		h := calendar.Holiday{ID: fmt.Sprintf("line-%d", lineNo)}
		if len(parts) == 2 {
			h.Title = strings.TrimSpace(parts[1])
		}

		from, to, isRange := strings.Cut(parts[0], "..")
		h.FromDate = from
		if isRange {
			h.ToDate = to
		}
		if h.Title == "" {
			fs.logger.Warn("Holiday line without title", zap.Int("line", lineNo), zap.String("text", line))
			h.Title = h.FromDate
		}

		holidays = append(holidays, h)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading holiday list: %w", err)
	}

	return holidays, nil
}

func (fs *FileSource) ensureLoaded() error {
	if fs.loaded {
		return nil
	}
	return fs.loadLocked()
}

// ListHolidays returns every holiday in the file
func (fs *FileSource) ListHolidays(ctx context.Context, schoolID string) ([]calendar.Holiday, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.ensureLoaded(); err != nil {
		return nil, err
	}

	out := make([]calendar.Holiday, len(fs.holidays))
	copy(out, fs.holidays)
	return out, nil
}

// ListAttendance returns the log stored under "role/userID"; a missing key is an empty log
func (fs *FileSource) ListAttendance(ctx context.Context, schoolID string, role calendar.Role, userID string) ([]calendar.AttendanceEvent, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.ensureLoaded(); err != nil {
		return nil, err
	}

	events := fs.attendance[attendanceKey(role, userID)]
	out := make([]calendar.AttendanceEvent, len(events))
	copy(out, events)
	return out, nil
}

func attendanceKey(role calendar.Role, userID string) string {
	return string(role) + "/" + userID
}
