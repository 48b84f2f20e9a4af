package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidhyam/school-calendar/internal/calendar"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileSource_Layouts(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	tests := []struct {
		name         string
		file         string
		content      string
		wantHolidays []string
	}{
		{
			name:         "bare array",
			file:         "holidays.json",
			content:      `[{"title":"Diwali","fromDate":"2025-10-20","toDate":"2025-10-21","classes":["All"]}]`,
			wantHolidays: []string{"Diwali"},
		},
		{
			name:         "api envelope",
			file:         "response.json",
			content:      `{"success":true,"data":[{"id":"h1","title":"Pongal","fromDate":"2025-01-14"}]}`,
			wantHolidays: []string{"Pongal"},
		},
		{
			name: "fixture document",
			file: "fixture.json",
			content: `{
				"holidays": [{"title":"Republic Day","fromDate":"2025-01-26"},{"title":"Bad","fromDate":"26-01-2025"}],
				"attendance": {"student/S1": [{"date":"2025-01-27","status":"present"}]}
			}`,
			wantHolidays: []string{"Republic Day", "Bad"},
		},
		{
			name: "text list",
			file: "holidays.txt",
			content: `# 2025 holidays
2025-01-26 Republic Day

2025-10-20..2025-10-21 Diwali
2025-12-25`,
			wantHolidays: []string{"Republic Day", "Diwali", "2025-12-25"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := NewFileSource(writeFile(t, tt.file, tt.content), logger)

			holidays, err := fs.ListHolidays(context.Background(), "school-1")
			require.NoError(t, err)

			var titles []string
			for _, h := range holidays {
				titles = append(titles, h.Title)
			}
			assert.Equal(t, tt.wantHolidays, titles)
		})
	}
}

func TestFileSource_TextRange(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	fs := NewFileSource(writeFile(t, "holidays.txt", "2025-10-20..2025-10-21 Diwali break\n"), logger)

	holidays, err := fs.ListHolidays(context.Background(), "school-1")
	require.NoError(t, err)
	require.Len(t, holidays, 1)

	assert.Equal(t, "2025-10-20", holidays[0].FromDate)
	assert.Equal(t, "2025-10-21", holidays[0].ToDate)
	assert.Equal(t, "Diwali break", holidays[0].Title)
	assert.Equal(t, "line-1", holidays[0].ID)
}

func TestFileSource_Attendance(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	fs := NewFileSource(writeFile(t, "fixture.json", `{
		"attendance": {
			"student/S1": [{"date":"2025-10-01","status":"present"},{"date":"2025-10-02","action":"absent_marked"}],
			"employee/E7": [{"date":"2025-10-01","status":"present","data":{"inTime":"09:00"}}]
		}
	}`), logger)
	require.NoError(t, fs.Load())

	events, err := fs.ListAttendance(context.Background(), "school-1", calendar.RoleStudent, "S1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, calendar.StatusAbsent, events[1].NormalizedStatus())

	events, err = fs.ListAttendance(context.Background(), "school-1", calendar.RoleEmployee, "E7")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "09:00", events[0].Data["inTime"])

	events, err = fs.ListAttendance(context.Background(), "school-1", calendar.RoleStudent, "nobody")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFileSource_Errors(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.json"), logger).ListHolidays(context.Background(), "s")
	assert.Error(t, err)

	_, err = NewFileSource(writeFile(t, "broken.json", `{"holidays": [`), logger).ListHolidays(context.Background(), "s")
	assert.Error(t, err)
}

type stubHolidaySource struct {
	holidays []calendar.Holiday
	err      error
	calls    int
}

func (s *stubHolidaySource) ListHolidays(ctx context.Context, schoolID string) ([]calendar.Holiday, error) {
	s.calls++
	return s.holidays, s.err
}

func TestCompositeHolidaySource(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ctx := context.Background()

	primaryHolidays := []calendar.Holiday{{Title: "From API", FromDate: "2025-10-20"}}
	fallbackHolidays := []calendar.Holiday{{Title: "From file", FromDate: "2025-10-20"}}

	t.Run("primary succeeds", func(t *testing.T) {
		primary := &stubHolidaySource{holidays: primaryHolidays}
		fallback := &stubHolidaySource{holidays: fallbackHolidays}

		got, err := NewCompositeHolidaySource(primary, fallback, logger).ListHolidays(ctx, "s")
		require.NoError(t, err)
		assert.Equal(t, primaryHolidays, got)
		assert.Equal(t, 0, fallback.calls)
	})

	t.Run("primary fails", func(t *testing.T) {
		primary := &stubHolidaySource{err: errors.New("connection refused")}
		fallback := &stubHolidaySource{holidays: fallbackHolidays}

		got, err := NewCompositeHolidaySource(primary, fallback, logger).ListHolidays(ctx, "s")
		require.NoError(t, err)
		assert.Equal(t, fallbackHolidays, got)
	})

	t.Run("both fail", func(t *testing.T) {
		primaryErr := errors.New("connection refused")
		primary := &stubHolidaySource{err: primaryErr}
		fallback := &stubHolidaySource{err: errors.New("no such file")}

		_, err := NewCompositeHolidaySource(primary, fallback, logger).ListHolidays(ctx, "s")
		assert.ErrorIs(t, err, primaryErr)
	})

	t.Run("cancelled context skips fallback", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		primary := &stubHolidaySource{err: context.Canceled}
		fallback := &stubHolidaySource{holidays: fallbackHolidays}

		_, err := NewCompositeHolidaySource(primary, fallback, logger).ListHolidays(cctx, "s")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, fallback.calls)
	})
}

// fakeRedis implements the few commands the cache uses
type fakeRedis struct {
	redis.Cmdable
	data   map[string]string
	getErr error
	ttls   map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	if f.getErr != nil {
		cmd.SetErr(f.getErr)
		return cmd
	}
	if v, ok := f.data[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key, value)
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "del")
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func TestCachedHolidaySource(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ctx := context.Background()
	holidays := []calendar.Holiday{{ID: "h1", Title: "Diwali", FromDate: "2025-10-20", ToDate: "2025-10-21", Classes: []string{"All"}}}

	inner := &stubHolidaySource{holidays: holidays}
	rdb := newFakeRedis()
	cached := NewCachedHolidaySource(inner, rdb, time.Hour, logger)

	got, err := cached.ListHolidays(ctx, "school-1")
	require.NoError(t, err)
	assert.Equal(t, holidays, got)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, time.Hour, rdb.ttls[holidayKeyPrefix+"school-1"])

	got, err = cached.ListHolidays(ctx, "school-1")
	require.NoError(t, err)
	assert.Equal(t, holidays, got)
	assert.Equal(t, 1, inner.calls, "second lookup must be a cache hit")

	require.NoError(t, cached.Invalidate(ctx, "school-1"))
	_, err = cached.ListHolidays(ctx, "school-1")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedHolidaySource_Degrades(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ctx := context.Background()
	holidays := []calendar.Holiday{{Title: "Diwali", FromDate: "2025-10-20"}}

	t.Run("redis down", func(t *testing.T) {
		inner := &stubHolidaySource{holidays: holidays}
		rdb := newFakeRedis()
		rdb.getErr = errors.New("dial tcp: connection refused")

		got, err := NewCachedHolidaySource(inner, rdb, 0, logger).ListHolidays(ctx, "s")
		require.NoError(t, err)
		assert.Equal(t, holidays, got)
		assert.Equal(t, defaultHolidayTTL, rdb.ttls[holidayKeyPrefix+"s"])
	})

	t.Run("corrupt entry", func(t *testing.T) {
		inner := &stubHolidaySource{holidays: holidays}
		rdb := newFakeRedis()
		rdb.data[holidayKeyPrefix+"s"] = "{not json"

		got, err := NewCachedHolidaySource(inner, rdb, time.Minute, logger).ListHolidays(ctx, "s")
		require.NoError(t, err)
		assert.Equal(t, holidays, got)
		assert.Equal(t, 1, inner.calls)
	})

	t.Run("inner error is returned", func(t *testing.T) {
		inner := &stubHolidaySource{err: errors.New("api down")}

		_, err := NewCachedHolidaySource(inner, newFakeRedis(), time.Minute, logger).ListHolidays(ctx, "s")
		assert.Error(t, err)
	})
}

func TestCachedHolidaySource_Refresh(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ctx := context.Background()

	inner := &stubHolidaySource{holidays: []calendar.Holiday{{Title: "Diwali", FromDate: "2025-10-20"}}}
	rdb := newFakeRedis()
	rdb.data[holidayKeyPrefix+"s"] = "[]"
	cached := NewCachedHolidaySource(inner, rdb, time.Minute, logger)

	n, err := cached.Refresh(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, rdb.data[holidayKeyPrefix+"s"], "Diwali")

	got, err := cached.ListHolidays(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, inner.calls, "lookup after refresh is served from cache")

	inner.err = errors.New("api down")
	_, err = cached.Refresh(ctx, "s")
	assert.Error(t, err)
	assert.Contains(t, rdb.data[holidayKeyPrefix+"s"], "Diwali", "a failed refresh keeps the old entry")
}

func TestBuildHolidaySource_PrimaryRecovers(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ctx := context.Background()
	key := holidayKeyPrefix + "s"

	snapshot := []calendar.Holiday{{Title: "Diwali", FromDate: "2025-10-20"}}
	fresh := []calendar.Holiday{
		{Title: "Diwali", FromDate: "2025-10-20"},
		{Title: "Emergency closure", FromDate: "2025-10-23"},
	}

	primary := &stubHolidaySource{err: errors.New("api down")}
	fallback := &stubHolidaySource{holidays: snapshot}
	rdb := newFakeRedis()

	holidays, cached := BuildHolidaySource(primary, fallback, rdb, time.Hour, logger)
	require.NotNil(t, cached)

	got, err := holidays.ListHolidays(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)
	assert.NotContains(t, rdb.data, key, "fallback data must not be cached")

	_, err = cached.Refresh(ctx, "s")
	assert.Error(t, err)
	assert.NotContains(t, rdb.data, key)

	primary.err = nil
	primary.holidays = fresh

	got, err = holidays.ListHolidays(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
	assert.Contains(t, rdb.data[key], "Emergency closure")
	assert.Equal(t, 1, fallback.calls)

	n, err := cached.Refresh(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBuildHolidaySource_Layers(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	primary := &stubHolidaySource{}
	fallback := &stubHolidaySource{}

	tests := []struct {
		name          string
		fallback      HolidaySource
		cache         redis.Cmdable
		wantCache     bool
		wantComposite bool
	}{
		{name: "primary only"},
		{name: "cache only", cache: newFakeRedis(), wantCache: true},
		{name: "fallback only", fallback: fallback, wantComposite: true},
		{name: "cache and fallback", fallback: fallback, cache: newFakeRedis(), wantCache: true, wantComposite: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cached := BuildHolidaySource(primary, tt.fallback, tt.cache, time.Minute, logger)
			assert.Equal(t, tt.wantCache, cached != nil)

			composite, isComposite := got.(*CompositeHolidaySource)
			assert.Equal(t, tt.wantComposite, isComposite)

			switch {
			case isComposite && tt.wantCache:
				assert.Same(t, cached, composite.primary)
			case isComposite:
				assert.Same(t, primary, composite.primary)
			case tt.wantCache:
				assert.Same(t, cached, got)
			default:
				assert.Same(t, primary, got)
			}
		})
	}
}

func TestPostgresSource_DecodeIDList(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ps := &PostgresSource{logger: logger}

	assert.Equal(t, []string{"5A", "6B"}, ps.decodeIDList("h1", "classes", []byte(`["5A","6B"]`)))
	assert.Nil(t, ps.decodeIDList("h1", "classes", nil))
	assert.Nil(t, ps.decodeIDList("h1", "classes", []byte(`{"a":1}`)))
	assert.Empty(t, ps.decodeIDList("h1", "classes", []byte(`[]`)))
}

func TestPostgresSource_Closed(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	ps := &PostgresSource{logger: logger}

	_, err := ps.ListHolidays(context.Background(), "s")
	assert.ErrorIs(t, err, ErrPoolClosed)

	_, err = ps.ListAttendance(context.Background(), "s", calendar.RoleStudent, "S1")
	assert.ErrorIs(t, err, ErrPoolClosed)
}
