package usecases

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samirrijal/orchardscan/internal/core/domain"
	"github.com/samirrijal/orchardscan/internal/core/ports"
	"github.com/samirrijal/orchardscan/internal/pkg/logging"
	"github.com/samirrijal/orchardscan/internal/pkg/metrics"
)

// OrchardService is a read-through cache in front of an OrchardProvider.
// It implements ports.OrchardProvider itself, so analyses do not know
// whether data came from the cache.
type OrchardService struct {
	provider ports.OrchardProvider
	cache    ports.CacheService
	ttl      int
}

// NewOrchardService creates a new OrchardService. A nil cache or a
// non-positive ttl disables caching.
func NewOrchardService(provider ports.OrchardProvider, cache ports.CacheService, ttlSeconds int) *OrchardService {
	return &OrchardService{provider: provider, cache: cache, ttl: ttlSeconds}
}

func polygonKey(orchardID string) string { return "orchard:polygon:" + orchardID }
func treesKey(orchardID string) string   { return "orchard:trees:" + orchardID }

// OrchardPolygon returns the orchard boundary.
func (s *OrchardService) OrchardPolygon(ctx context.Context, orchardID string) ([]domain.Coordinate, error) {
	var polygon []domain.Coordinate
	if s.cached(ctx, "polygon", polygonKey(orchardID), &polygon) {
		return polygon, nil
	}

	start := time.Now()
	polygon, err := s.provider.OrchardPolygon(ctx, orchardID)
	metrics.ProviderFetchDuration.WithLabelValues("polygon").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderFetchErrors.WithLabelValues("polygon").Inc()
		return nil, err
	}

	s.store(ctx, polygonKey(orchardID), polygon)
	return polygon, nil
}

// TreeRecords returns the trees of the latest survey.
func (s *OrchardService) TreeRecords(ctx context.Context, orchardID string) ([]domain.TreeRecord, error) {
	var trees []domain.TreeRecord
	if s.cached(ctx, "trees", treesKey(orchardID), &trees) {
		return trees, nil
	}

	start := time.Now()
	trees, err := s.provider.TreeRecords(ctx, orchardID)
	metrics.ProviderFetchDuration.WithLabelValues("trees").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderFetchErrors.WithLabelValues("trees").Inc()
		return nil, err
	}

	s.store(ctx, treesKey(orchardID), trees)
	return trees, nil
}

// Invalidate drops cached data for an orchard, e.g. after a new survey
// has been imported.
func (s *OrchardService) Invalidate(ctx context.Context, orchardID string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, polygonKey(orchardID)); err != nil {
		return err
	}
	return s.cache.Delete(ctx, treesKey(orchardID))
}

func (s *OrchardService) cached(ctx context.Context, op, key string, dst any) bool {
	if s.cache == nil || s.ttl <= 0 {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues(op).Inc()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "discarding unreadable cache entry", "key", key, "error", err)
		metrics.CacheMisses.WithLabelValues(op).Inc()
		return false
	}
	metrics.CacheHits.WithLabelValues(op).Inc()
	return true
}

func (s *OrchardService) store(ctx context.Context, key string, v any) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "encode cache entry", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}
