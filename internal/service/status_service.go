// Package service composes store reads into the dashboard's API views: the
// ETL status feed, quality metrics, and gold aggregates.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// StatusService builds the read-only ETL status feed. Each row combines the
// tracker state of one data source with its bronze record counts; the coarse
// WARNING/ERROR signal derives from the counts alone.
type StatusService struct {
	tracker domain.LoadStatusStore
	raw     domain.RawStore
	logger  *slog.Logger
}

// NewStatusService creates a StatusService.
func NewStatusService(tracker domain.LoadStatusStore, raw domain.RawStore, logger *slog.Logger) *StatusService {
	return &StatusService{
		tracker: tracker,
		raw:     raw,
		logger:  logger.With(slog.String("component", "status-service")),
	}
}

// Feed returns one status row per data source, in pipeline order.
func (s *StatusService) Feed(ctx context.Context) ([]domain.StatusFeedRow, error) {
	rows := make([]domain.StatusFeedRow, 0, len(domain.AllEntityTypes()))

	for _, entity := range domain.AllEntityTypes() {
		counts, err := s.raw.Counts(ctx, entity)
		if err != nil {
			return nil, fmt.Errorf("service: counts %s: %w", entity, err)
		}
		status, err := s.tracker.Get(ctx, entity.BronzeTable())
		if err != nil {
			return nil, fmt.Errorf("service: load status %s: %w", entity.BronzeTable(), err)
		}

		rows = append(rows, domain.StatusFeedRow{
			DataSource:   string(entity),
			LastLoadTime: status.LastSuccessfulLoad,
			Status:       domain.DeriveFeedStatus(counts),
			TotalRecords: counts.Total,
			SuccessCount: counts.Success,
			ErrorCount:   counts.Error,
			PartialCount: counts.Partial,
		})
	}
	return rows, nil
}

// Tables returns the raw tracker rows for every known table, bronze through
// gold, for the detailed pipeline view.
func (s *StatusService) Tables(ctx context.Context) ([]domain.LoadStatus, error) {
	statuses, err := s.tracker.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: list load status: %w", err)
	}
	return statuses, nil
}
