package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vidhyam/school-calendar/internal/calendar"
	"github.com/vidhyam/school-calendar/pkg/dateutil"
	"go.uber.org/zap"
)

const (
	listHolidaysQuery = `SELECT id, title, COALESCE(description, ''), from_date, to_date,
       COALESCE(classes, '[]'::jsonb), COALESCE(exempt_employees, '[]'::jsonb),
       COALESCE(exempt_students, '[]'::jsonb), COALESCE(created_at, '')
  FROM school_holidays
 WHERE school_id = $1
 ORDER BY from_date ASC`

	listAttendanceQuery = `SELECT date, COALESCE(status, ''), in_time, out_time, total_time
  FROM attendance
 WHERE school_id = $1 AND role = $2 AND user_id = $3
 ORDER BY date ASC`
)

// ErrPoolClosed is returned after Close
var ErrPoolClosed = errors.New("postgres: connection pool is closed")

// PostgresSource reads holidays and attendance straight from the school database
type PostgresSource struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresSource opens a pool for dsn and verifies it with a ping
func NewPostgresSource(ctx context.Context, dsn string, maxConns int32, logger *zap.Logger) (*PostgresSource, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse database URL: %w", err)
	}

	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database))

	return &PostgresSource{pool: pool, logger: logger}, nil
}

// Close releases the pool
func (ps *PostgresSource) Close() {
	if ps.pool != nil {
		ps.pool.Close()
		ps.pool = nil
	}
}

// ListHolidays reads the school_holidays table
func (ps *PostgresSource) ListHolidays(ctx context.Context, schoolID string) ([]calendar.Holiday, error) {
	if ps.pool == nil {
		return nil, ErrPoolClosed
	}

	rows, err := ps.pool.Query(ctx, listHolidaysQuery, schoolID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query holidays: %w", err)
	}

	holidays, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (calendar.Holiday, error) {
		var (
			h                                 calendar.Holiday
			classes, exemptEmp, exemptStudent []byte
		)
		if err := row.Scan(&h.ID, &h.Title, &h.Description, &h.FromDate, &h.ToDate,
			&classes, &exemptEmp, &exemptStudent, &h.CreatedAt); err != nil {
			return h, err
		}

		h.Classes = ps.decodeIDList(h.ID, "classes", classes)
		h.ExemptEmployees = ps.decodeIDList(h.ID, "exempt_employees", exemptEmp)
		h.ExemptStudents = ps.decodeIDList(h.ID, "exempt_students", exemptStudent)
		return h, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan holidays: %w", err)
	}

	return holidays, nil
}

// decodeIDList tolerates null and non-array JSONB values
func (ps *PostgresSource) decodeIDList(holidayID, column string, raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		ps.logger.Warn("Ignoring malformed JSONB column",
			zap.String("holiday_id", holidayID),
			zap.String("column", column),
			zap.Error(err))
		return nil
	}
	return ids
}

// ListAttendance reads one subject's rows from the attendance table
func (ps *PostgresSource) ListAttendance(ctx context.Context, schoolID string, role calendar.Role, userID string) ([]calendar.AttendanceEvent, error) {
	if ps.pool == nil {
		return nil, ErrPoolClosed
	}

	rows, err := ps.pool.Query(ctx, listAttendanceQuery, schoolID, string(role), userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query attendance: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (calendar.AttendanceEvent, error) {
		var (
			date            time.Time
			status          string
			inTime, outTime *time.Time
			totalTime       *string
		)
		if err := row.Scan(&date, &status, &inTime, &outTime, &totalTime); err != nil {
			return calendar.AttendanceEvent{}, err
		}

		ev := calendar.AttendanceEvent{
			Date:   dateutil.FormatDay(date),
			Status: status,
		}

		data := make(map[string]interface{})
		if inTime != nil {
			data["inTime"] = inTime.UTC().Format(time.RFC3339)
		}
		if outTime != nil {
			data["outTime"] = outTime.UTC().Format(time.RFC3339)
		}
		if totalTime != nil && *totalTime != "" {
			data["totalTime"] = *totalTime
		}
		if len(data) > 0 {
			ev.Data = data
		}

		return ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan attendance: %w", err)
	}

	return events, nil
}
