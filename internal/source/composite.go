package source

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vidhyam/school-calendar/internal/calendar"
	"go.uber.org/zap"
)

// CompositeHolidaySource implements HolidaySource with fallback strategy
// Primary: usually the school API
// Fallback: usually a FileSource snapshot
type CompositeHolidaySource struct {
	primary  HolidaySource
	fallback HolidaySource
	logger   *zap.Logger
}

// NewCompositeHolidaySource creates a new CompositeHolidaySource
func NewCompositeHolidaySource(primary, fallback HolidaySource, logger *zap.Logger) *CompositeHolidaySource {
	return &CompositeHolidaySource{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// ListHolidays tries the primary source first
func (cs *CompositeHolidaySource) ListHolidays(ctx context.Context, schoolID string) ([]calendar.Holiday, error) {
	holidays, err := cs.primary.ListHolidays(ctx, schoolID)
	if err == nil {
		return holidays, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	cs.logger.Warn("Primary holiday source failed, falling back",
		zap.String("school_id", schoolID),
		zap.Error(err))

	holidays, fallbackErr := cs.fallback.ListHolidays(ctx, schoolID)
	if fallbackErr != nil {
		return nil, fmt.Errorf("primary and fallback both failed: primary=%w, fallback=%v", err, fallbackErr)
	}

	return holidays, nil
}

// LoadFallback loads the fallback source up front (if FileSource)
func (cs *CompositeHolidaySource) LoadFallback() error {
	if fs, ok := cs.fallback.(*FileSource); ok {
		if err := fs.Load(); err != nil {
			return fmt.Errorf("failed to load fallback holidays: %w", err)
		}
		cs.logger.Info("Fallback holidays loaded successfully")
	}
	return nil
}

// BuildHolidaySource layers the optional Redis cache and fallback around primary
// as Composite(Cached(primary), fallback). The cache holds primary data only:
// fallback results are never written to it. A nil cache or fallback skips that
// layer. The returned *CachedHolidaySource is nil without a cache.
func BuildHolidaySource(
	primary HolidaySource,
	fallback HolidaySource,
	cache redis.Cmdable,
	ttl time.Duration,
	logger *zap.Logger,
) (HolidaySource, *CachedHolidaySource) {
	var cached *CachedHolidaySource
	if cache != nil {
		cached = NewCachedHolidaySource(primary, cache, ttl, logger)
		primary = cached
	}

	if fallback == nil {
		return primary, cached
	}

	composite := NewCompositeHolidaySource(primary, fallback, logger)
	if err := composite.LoadFallback(); err != nil {
		logger.Warn("Failed to load fallback holidays, continuing with primary only",
			zap.Error(err))
	}
	return composite, cached
}
