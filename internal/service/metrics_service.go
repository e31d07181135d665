package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// MetricsService reads the gold aggregates and quality scores for the
// dashboard.
type MetricsService struct {
	metrics domain.MetricsStore
	quality domain.QualityStore
	now     func() time.Time
}

// NewMetricsService creates a MetricsService.
func NewMetricsService(metrics domain.MetricsStore, quality domain.QualityStore) *MetricsService {
	return &MetricsService{
		metrics: metrics,
		quality: quality,
		now:     time.Now,
	}
}

// DailyMetrics returns per-affiliate daily aggregates for the trailing
// number of days.
func (s *MetricsService) DailyMetrics(ctx context.Context, days int) ([]domain.AffiliateMetrics, error) {
	if days < 1 {
		days = 1
	}
	since := domain.DateOf(s.now().UTC().AddDate(0, 0, -days))

	rows, err := s.metrics.ListDaily(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("service: daily metrics: %w", err)
	}
	return rows, nil
}

// QualityMetrics returns quality scores computed within the trailing number
// of days.
func (s *MetricsService) QualityMetrics(ctx context.Context, days int) ([]domain.QualityMetric, error) {
	if days < 1 {
		days = 1
	}
	since := domain.DateOf(s.now().UTC().AddDate(0, 0, -days))

	rows, err := s.quality.ListSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("service: quality metrics: %w", err)
	}
	return rows, nil
}
