package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// LoadStatusStore implements domain.LoadStatusStore. The etl_load_status row
// is the single source of per-table mutual exclusion: StartRun is an atomic
// check-and-set on the status column.
type LoadStatusStore struct {
	pool *pgxpool.Pool
}

// NewLoadStatusStore creates a new LoadStatusStore backed by the given pool.
func NewLoadStatusStore(pool *pgxpool.Pool) *LoadStatusStore {
	return &LoadStatusStore{pool: pool}
}

// StartRun transitions a table to RUNNING and stamps last_attempted_load.
// The insert path covers tables that have never run; the update path only
// matches when the table is not already RUNNING, so a concurrent start loses
// the race and gets domain.ErrRunInProgress instead of queueing.
func (s *LoadStatusStore) StartRun(ctx context.Context, table string, at time.Time) error {
	const query = `
		INSERT INTO etl_load_status (table_name, status, last_attempted_load, error_message, updated_at)
		VALUES ($1, 'RUNNING', $2, '', NOW())
		ON CONFLICT (table_name) DO UPDATE SET
			status              = 'RUNNING',
			last_attempted_load = EXCLUDED.last_attempted_load,
			error_message       = '',
			updated_at          = NOW()
		WHERE etl_load_status.status <> 'RUNNING'`

	tag, err := s.pool.Exec(ctx, query, table, at)
	if err != nil {
		return fmt.Errorf("postgres: start run %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunInProgress
	}
	return nil
}

// FinishRun moves RUNNING to a terminal state. SUCCESS and PARTIAL advance
// last_successful_load to the run's attempt timestamp (the watermark); ERROR
// leaves the watermark untouched. records_processed counts records that
// actually landed, so a fatal run records zero.
func (s *LoadStatusStore) FinishRun(ctx context.Context, table string, outcome domain.LoadOutcome, errMsg string) error {
	switch outcome.Status {
	case domain.RunSuccess, domain.RunPartial, domain.RunError:
	default:
		return fmt.Errorf("postgres: finish run %s: invalid terminal status %q", table, outcome.Status)
	}

	const query = `
		UPDATE etl_load_status SET
			status               = $2,
			last_successful_load = CASE WHEN $2 IN ('SUCCESS', 'PARTIAL')
			                            THEN last_attempted_load
			                            ELSE last_successful_load END,
			error_message        = $3,
			records_processed    = $4,
			processing_time_ms   = $5,
			updated_at           = NOW()
		WHERE table_name = $1 AND status = 'RUNNING'`

	tag, err := s.pool.Exec(ctx, query,
		table, string(outcome.Status), errMsg,
		outcome.SuccessCount, outcome.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("postgres: finish run %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: finish run %s: table is not RUNNING", table)
	}
	return nil
}

// Get returns the tracker row for a table. A table with no row yet reports
// NEVER_RUN rather than ErrNotFound so callers can treat first runs uniformly.
func (s *LoadStatusStore) Get(ctx context.Context, table string) (domain.LoadStatus, error) {
	const query = `
		SELECT table_name, status, last_attempted_load, last_successful_load,
		       error_message, records_processed, processing_time_ms, updated_at
		FROM etl_load_status
		WHERE table_name = $1`

	ls, err := scanLoadStatus(s.pool.QueryRow(ctx, query, table))
	if err != nil {
		if isNoRows(err) {
			return domain.LoadStatus{TableName: table, Status: domain.RunNeverRun}, nil
		}
		return domain.LoadStatus{}, fmt.Errorf("postgres: get load status %s: %w", table, err)
	}
	return ls, nil
}

// List returns every tracker row, ordered by table name.
func (s *LoadStatusStore) List(ctx context.Context) ([]domain.LoadStatus, error) {
	const query = `
		SELECT table_name, status, last_attempted_load, last_successful_load,
		       error_message, records_processed, processing_time_ms, updated_at
		FROM etl_load_status
		ORDER BY table_name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list load status: %w", err)
	}
	defer rows.Close()

	var statuses []domain.LoadStatus
	for rows.Next() {
		ls, err := scanLoadStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan load status row: %w", err)
		}
		statuses = append(statuses, ls)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list load status rows: %w", err)
	}
	return statuses, nil
}

// scanLoadStatus scans one tracker row.
func scanLoadStatus(row interface{ Scan(dest ...any) error }) (domain.LoadStatus, error) {
	var ls domain.LoadStatus
	var status string
	var processingMs int64
	if err := row.Scan(
		&ls.TableName, &status,
		&ls.LastAttemptedLoad, &ls.LastSuccessfulLoad,
		&ls.ErrorMessage, &ls.RecordsProcessed,
		&processingMs, &ls.UpdatedAt,
	); err != nil {
		return domain.LoadStatus{}, err
	}
	ls.Status = domain.RunStatus(status)
	ls.ProcessingTime = time.Duration(processingMs) * time.Millisecond
	return ls, nil
}

// Compile-time interface check.
var _ domain.LoadStatusStore = (*LoadStatusStore)(nil)
