package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vidhyam/school-calendar/internal/attendance"
	"github.com/vidhyam/school-calendar/internal/config"
	"github.com/vidhyam/school-calendar/internal/schoolapi"
	"github.com/vidhyam/school-calendar/internal/source"
	"go.uber.org/zap"
)

// app holds the wired components of one command invocation
type app struct {
	service *attendance.Service
	cache   *source.CachedHolidaySource // nil when Redis is not in use
	closers []func()
}

// Close releases connections and stops background refreshers
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp builds the sources selected in cfg and the service on top of them
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	isAPI := func(kind string) bool { return kind == "" || kind == config.SourceAPI }

	var apiClient *schoolapi.Client
	if isAPI(cfg.Holidays.Source) || isAPI(cfg.Attendance.Source) {
		tokens, err := a.tokenProvider(cfg, logger)
		if err != nil {
			return nil, err
		}
		apiClient = schoolapi.NewClient(cfg.API.BaseURL, tokens, cfg.API.GetTimeout(), cfg.API.Retries, logger)
	}

	var pg *source.PostgresSource
	if cfg.Holidays.Source == config.SourcePostgres || cfg.Attendance.Source == config.SourcePostgres {
		var err error
		pg, err = source.NewPostgresSource(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
	}

	files := make(map[string]*source.FileSource)
	fileSource := func(path string) *source.FileSource {
		if fs, found := files[path]; found {
			return fs
		}
		fs := source.NewFileSource(path, logger)
		files[path] = fs
		return fs
	}

	var holidays source.HolidaySource
	switch cfg.Holidays.Source {
	case config.SourceFile:
		logger.Info("Using holiday file", zap.String("file", cfg.Holidays.File))
		holidays = fileSource(cfg.Holidays.File)
	case config.SourcePostgres:
		logger.Info("Using PostgreSQL holidays")
		holidays = pg
	default:
		logger.Info("Using school API holidays", zap.String("base_url", cfg.API.BaseURL))
		holidays = apiClient
	}

	var fallback source.HolidaySource
	if cfg.Holidays.FallbackFile != "" {
		fallback = fileSource(cfg.Holidays.FallbackFile)
	}

	var rdb redis.Cmdable
	if cfg.Cache.Enabled() {
		client, err := source.NewRedisClient(ctx, source.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Warn("Holiday cache disabled", zap.Error(err))
		} else {
			a.closers = append(a.closers, func() { _ = client.Close() })
			rdb = client
		}
	}

	holidays, a.cache = source.BuildHolidaySource(holidays, fallback, rdb, cfg.Cache.GetTTL(), logger)

	var records source.AttendanceSource
	switch cfg.Attendance.Source {
	case config.SourceFile:
		records = fileSource(cfg.Attendance.File)
	case config.SourcePostgres:
		records = pg
	default:
		records = apiClient
	}

	loc, err := cfg.School.Location()
	if err != nil {
		return nil, err
	}

	a.service = attendance.NewService(cfg.School.ID, holidays, records, loc, logger)
	ok = true
	return a, nil
}

// tokenProvider returns a command-backed refreshing token when configured, else the static token
func (a *app) tokenProvider(cfg *config.Config, logger *zap.Logger) (schoolapi.TokenProvider, error) {
	if cfg.API.TokenCommand == "" {
		return schoolapi.StaticToken(cfg.API.Token), nil
	}

	tm := schoolapi.NewTokenManager(cfg.API.TokenCommand, cfg.API.GetRefreshInterval(), logger)
	if err := tm.Start(); err != nil {
		return nil, fmt.Errorf("failed to start token manager: %w", err)
	}
	a.closers = append(a.closers, tm.Stop)
	return tm, nil
}
