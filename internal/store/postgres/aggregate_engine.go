package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// AggregateEngine implements domain.AggregateEngine by refreshing the gold
// materialized views. CONCURRENTLY keeps the views readable during refresh,
// which is why every gold view carries a unique index.
type AggregateEngine struct {
	pool *pgxpool.Pool
}

// NewAggregateEngine creates a new AggregateEngine backed by the given pool.
func NewAggregateEngine(pool *pgxpool.Pool) *AggregateEngine {
	return &AggregateEngine{pool: pool}
}

// scopeViews maps a refresh scope to the view names it covers. Views refresh
// in declaration order; gold_etl_dashboard last since it reads tracker state.
func scopeViews(scope domain.RefreshScope) ([]string, error) {
	switch scope {
	case domain.ScopeAll:
		return []string{
			"gold_daily_metrics",
			"gold_monthly_metrics",
			"gold_affiliate_performance",
			"gold_etl_dashboard",
		}, nil
	case domain.ScopeDaily:
		return []string{"gold_daily_metrics"}, nil
	case domain.ScopeMonthly:
		return []string{"gold_monthly_metrics"}, nil
	case domain.ScopePerformance:
		return []string{"gold_affiliate_performance"}, nil
	case domain.ScopeETLDashboard:
		return []string{"gold_etl_dashboard"}, nil
	default:
		return nil, fmt.Errorf("postgres: unknown refresh scope %q", scope)
	}
}

// Refresh issues REFRESH MATERIALIZED VIEW CONCURRENTLY for every view in
// scope, in order. The first failure aborts the remainder.
func (e *AggregateEngine) Refresh(ctx context.Context, scope domain.RefreshScope) error {
	views, err := scopeViews(scope)
	if err != nil {
		return err
	}

	for _, view := range views {
		if _, err := e.pool.Exec(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY "+view); err != nil {
			return fmt.Errorf("postgres: refresh %s: %w", view, err)
		}
	}
	return nil
}

// Compile-time interface check.
var _ domain.AggregateEngine = (*AggregateEngine)(nil)

// MetricsStore implements domain.MetricsStore over gold_daily_metrics.
type MetricsStore struct {
	pool *pgxpool.Pool
}

// NewMetricsStore creates a new MetricsStore backed by the given pool.
func NewMetricsStore(pool *pgxpool.Pool) *MetricsStore {
	return &MetricsStore{pool: pool}
}

// ListDaily returns daily affiliate aggregates on or after since.
func (s *MetricsStore) ListDaily(ctx context.Context, since time.Time) ([]domain.AffiliateMetrics, error) {
	const query = `
		SELECT affiliate_id, metric_date, total_customers, new_signups,
		       trade_volume, activation_rate, avg_trade_size
		FROM gold_daily_metrics
		WHERE metric_date >= $1
		ORDER BY metric_date DESC, affiliate_id`

	rows, err := s.pool.Query(ctx, query, domain.DateOf(since))
	if err != nil {
		return nil, fmt.Errorf("postgres: list daily metrics: %w", err)
	}
	defer rows.Close()

	var metrics []domain.AffiliateMetrics
	for rows.Next() {
		var m domain.AffiliateMetrics
		if err := rows.Scan(
			&m.AffiliateID, &m.MetricDate, &m.TotalCustomers, &m.NewSignups,
			&m.TradeVolume, &m.ActivationRate, &m.AvgTradeSize,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan daily metrics row: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list daily metrics rows: %w", err)
	}
	return metrics, nil
}

// Compile-time interface check.
var _ domain.MetricsStore = (*MetricsStore)(nil)
