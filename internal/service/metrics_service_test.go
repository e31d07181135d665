package service

import (
	"context"
	"testing"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

type stubMetrics struct {
	since time.Time
	rows  []domain.AffiliateMetrics
}

func (s *stubMetrics) ListDaily(ctx context.Context, since time.Time) ([]domain.AffiliateMetrics, error) {
	s.since = since
	return s.rows, nil
}

type stubQuality struct {
	domain.QualityStore
	since time.Time
	rows  []domain.QualityMetric
}

func (s *stubQuality) ListSince(ctx context.Context, since time.Time) ([]domain.QualityMetric, error) {
	s.since = since
	return s.rows, nil
}

func TestDailyMetricsWindow(t *testing.T) {
	metrics := &stubMetrics{rows: []domain.AffiliateMetrics{{AffiliateID: 7}}}
	quality := &stubQuality{}
	svc := NewMetricsService(metrics, quality)
	now := time.Date(2026, 8, 23, 15, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	rows, err := svc.DailyMetrics(context.Background(), 30)
	if err != nil {
		t.Fatalf("DailyMetrics: %v", err)
	}
	if len(rows) != 1 || rows[0].AffiliateID != 7 {
		t.Errorf("rows = %+v, want single affiliate 7", rows)
	}

	want := time.Date(2026, 7, 24, 0, 0, 0, 0, time.UTC)
	if !metrics.since.Equal(want) {
		t.Errorf("since = %v, want %v (30 days back, date-aligned)", metrics.since, want)
	}
}

func TestQualityMetricsClampsDays(t *testing.T) {
	metrics := &stubMetrics{}
	quality := &stubQuality{rows: []domain.QualityMetric{{TableName: "silver_trades"}}}
	svc := NewMetricsService(metrics, quality)
	now := time.Date(2026, 8, 23, 15, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	rows, err := svc.QualityMetrics(context.Background(), 0)
	if err != nil {
		t.Fatalf("QualityMetrics: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows, want 1", len(rows))
	}

	want := time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)
	if !quality.since.Equal(want) {
		t.Errorf("since = %v, want %v (days clamped to 1)", quality.since, want)
	}
}
