package reporting

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"warungku/backend/internal/cache"
	"warungku/backend/internal/domain"
	"warungku/backend/internal/store"
)

// SummarySource is the slice of the repository the engine aggregates from.
type SummarySource interface {
	GetSalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error)
}

type Engine struct {
	source   SummarySource
	cache    cache.ReportCache
	cacheTTL time.Duration
}

func NewEngine(source SummarySource, cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &Engine{
		source:   source,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// SalesSummary aggregates one calendar day (UTC). date is YYYY-MM-DD; empty
// means today. Results go through the report cache with the configured TTL.
func (e *Engine) SalesSummary(ctx context.Context, date string) (domain.SalesSummary, error) {
	day := time.Now().UTC()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return domain.SalesSummary{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	cacheKey := buildCacheKey(from)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return *cached, nil
	}

	summary, err := e.source.GetSalesSummary(ctx, from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	_ = e.cache.Set(ctx, cacheKey, &summary, e.cacheTTL)
	return summary, nil
}

func buildCacheKey(day time.Time) string {
	hash := sha1.Sum([]byte("sales-summary|" + day.Format("2006-01-02")))
	return "backoffice:report:" + hex.EncodeToString(hash[:])
}
