package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vidhyam/school-calendar/internal/calendar"
	"go.uber.org/zap"
)

const (
	holidayKeyPrefix  = "school-calendar:holidays:"
	defaultHolidayTTL = 6 * time.Hour
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings Redis
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to connect to %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// CachedHolidaySource keeps a school's holiday list in Redis for ttl.
// Cache failures never fail a lookup: they are logged and the inner source is used.
type CachedHolidaySource struct {
	inner  HolidaySource
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedHolidaySource wraps inner with a Redis cache
func NewCachedHolidaySource(inner HolidaySource, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedHolidaySource {
	if ttl <= 0 {
		ttl = defaultHolidayTTL
	}
	return &CachedHolidaySource{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// ListHolidays serves from cache, filling it from the inner source on a miss
func (cs *CachedHolidaySource) ListHolidays(ctx context.Context, schoolID string) ([]calendar.Holiday, error) {
	key := holidayKeyPrefix + schoolID

	raw, err := cs.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var holidays []calendar.Holiday
		if err := json.Unmarshal(raw, &holidays); err == nil {
			cs.logger.Debug("Holidays served from cache", zap.String("school_id", schoolID))
			return holidays, nil
		}
		cs.logger.Warn("Discarding undecodable cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		cs.logger.Warn("Holiday cache unavailable", zap.String("key", key), zap.Error(err))
	}

	holidays, err := cs.inner.ListHolidays(ctx, schoolID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(holidays)
	if err != nil {
		return holidays, nil
	}
	if err := cs.client.Set(ctx, key, payload, cs.ttl).Err(); err != nil {
		cs.logger.Warn("Failed to cache holidays", zap.String("key", key), zap.Error(err))
	}

	return holidays, nil
}

// Invalidate drops the cached list for schoolID
func (cs *CachedHolidaySource) Invalidate(ctx context.Context, schoolID string) error {
	if err := cs.client.Del(ctx, holidayKeyPrefix+schoolID).Err(); err != nil {
		return fmt.Errorf("redis: failed to invalidate holidays: %w", err)
	}
	return nil
}

// Refresh reloads schoolID's holidays from the inner source and overwrites the
// cached entry. It returns the number of holidays cached.
func (cs *CachedHolidaySource) Refresh(ctx context.Context, schoolID string) (int, error) {
	holidays, err := cs.inner.ListHolidays(ctx, schoolID)
	if err != nil {
		return 0, err
	}

	payload, err := json.Marshal(holidays)
	if err != nil {
		return 0, fmt.Errorf("failed to encode holidays: %w", err)
	}
	if err := cs.client.Set(ctx, holidayKeyPrefix+schoolID, payload, cs.ttl).Err(); err != nil {
		return 0, fmt.Errorf("redis: failed to cache holidays: %w", err)
	}

	return len(holidays), nil
}
