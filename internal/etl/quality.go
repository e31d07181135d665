package etl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// Scorer turns a batch profile into the four quality scores and persists
// them per (table, date). Recomputing a day overwrites the previous row, so
// scoring is safe to repeat.
type Scorer struct {
	store  domain.QualityStore
	logger *slog.Logger
	now    func() time.Time
}

// NewScorer creates a Scorer.
func NewScorer(store domain.QualityStore, logger *slog.Logger) *Scorer {
	return &Scorer{
		store:  store,
		logger: logger.With(slog.String("component", "quality")),
		now:    time.Now,
	}
}

// Score computes and upserts the quality metric for one (table, date).
// All four scores land in [0,100]. An empty batch scores 0 completeness —
// nothing arrived — and 100 on the other dimensions, which measure defects
// among records that did arrive.
func (s *Scorer) Score(ctx context.Context, table string, date time.Time, p domain.BatchProfile) (domain.QualityMetric, error) {
	m := domain.QualityMetric{
		TableName:      table,
		MetricDate:     domain.DateOf(date),
		TotalRecords:   p.Total,
		ValidRecords:   p.Valid,
		InvalidRecords: p.Invalid,
		Completeness:   completeness(p),
		Accuracy:       defectScore(p.Total, p.RangeViolations),
		Consistency:    defectScore(p.Total, p.DuplicateKeys),
		Timeliness:     defectScore(p.Total, p.LateRecords),
		ComputedAt:     s.now().UTC(),
	}

	if err := s.store.Upsert(ctx, m); err != nil {
		return domain.QualityMetric{}, fmt.Errorf("etl: upsert quality metric %s/%s: %w",
			table, m.MetricDate.Format("2006-01-02"), err)
	}

	s.logger.Info("quality scored",
		slog.String("table", table),
		slog.String("date", m.MetricDate.Format("2006-01-02")),
		slog.Float64("completeness", m.Completeness),
		slog.Float64("accuracy", m.Accuracy),
		slog.Float64("consistency", m.Consistency),
		slog.Float64("timeliness", m.Timeliness),
	)
	return m, nil
}

// completeness is the share of records that survived validation.
func completeness(p domain.BatchProfile) float64 {
	if p.Total == 0 {
		return 0
	}
	return domain.ClampScore(float64(p.Valid) / float64(p.Total) * 100)
}

// defectScore is the share of records free of one defect class.
func defectScore(total, defects int) float64 {
	if total == 0 {
		return 100
	}
	return domain.ClampScore(float64(total-defects) / float64(total) * 100)
}
