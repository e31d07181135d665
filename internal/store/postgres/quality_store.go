package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// QualityStore implements domain.QualityStore using PostgreSQL.
type QualityStore struct {
	pool *pgxpool.Pool
}

// NewQualityStore creates a new QualityStore backed by the given pool.
func NewQualityStore(pool *pgxpool.Pool) *QualityStore {
	return &QualityStore{pool: pool}
}

// Upsert writes a quality metric, overwriting any existing row for the same
// (table_name, metric_date) so same-day recomputation is idempotent.
func (s *QualityStore) Upsert(ctx context.Context, m domain.QualityMetric) error {
	const query = `
		INSERT INTO data_quality_metrics (
			table_name, metric_date, total_records, valid_records, invalid_records,
			completeness, accuracy, consistency, timeliness, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (table_name, metric_date) DO UPDATE SET
			total_records   = EXCLUDED.total_records,
			valid_records   = EXCLUDED.valid_records,
			invalid_records = EXCLUDED.invalid_records,
			completeness    = EXCLUDED.completeness,
			accuracy        = EXCLUDED.accuracy,
			consistency     = EXCLUDED.consistency,
			timeliness      = EXCLUDED.timeliness,
			computed_at     = NOW()`

	_, err := s.pool.Exec(ctx, query,
		m.TableName, m.MetricDate,
		m.TotalRecords, m.ValidRecords, m.InvalidRecords,
		m.Completeness, m.Accuracy, m.Consistency, m.Timeliness,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert quality metric %s/%s: %w",
			m.TableName, m.MetricDate.Format("2006-01-02"), err)
	}
	return nil
}

const qualityCols = `table_name, metric_date, total_records, valid_records, invalid_records,
	completeness, accuracy, consistency, timeliness, computed_at`

// Get returns the metric for one (table, date).
func (s *QualityStore) Get(ctx context.Context, table string, date time.Time) (domain.QualityMetric, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+qualityCols+` FROM data_quality_metrics
		 WHERE table_name = $1 AND metric_date = $2`,
		table, domain.DateOf(date))

	var m domain.QualityMetric
	err := row.Scan(
		&m.TableName, &m.MetricDate,
		&m.TotalRecords, &m.ValidRecords, &m.InvalidRecords,
		&m.Completeness, &m.Accuracy, &m.Consistency, &m.Timeliness,
		&m.ComputedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return domain.QualityMetric{}, domain.ErrNotFound
		}
		return domain.QualityMetric{}, fmt.Errorf("postgres: get quality metric %s: %w", table, err)
	}
	return m, nil
}

// ListSince returns all metrics with metric_date on or after since.
func (s *QualityStore) ListSince(ctx context.Context, since time.Time) ([]domain.QualityMetric, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+qualityCols+` FROM data_quality_metrics
		 WHERE metric_date >= $1
		 ORDER BY metric_date DESC, table_name`,
		domain.DateOf(since))
	if err != nil {
		return nil, fmt.Errorf("postgres: list quality metrics: %w", err)
	}
	defer rows.Close()

	var metrics []domain.QualityMetric
	for rows.Next() {
		var m domain.QualityMetric
		if err := rows.Scan(
			&m.TableName, &m.MetricDate,
			&m.TotalRecords, &m.ValidRecords, &m.InvalidRecords,
			&m.Completeness, &m.Accuracy, &m.Consistency, &m.Timeliness,
			&m.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan quality metric row: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list quality metrics rows: %w", err)
	}
	return metrics, nil
}

// Compile-time interface check.
var _ domain.QualityStore = (*QualityStore)(nil)
