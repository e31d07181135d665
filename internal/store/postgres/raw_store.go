package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// RawStore implements domain.RawStore over the four bronze tables. The table
// name is resolved from the entity type; payloads are stored verbatim as
// JSONB.
type RawStore struct {
	pool *pgxpool.Pool
}

// NewRawStore creates a new RawStore backed by the given connection pool.
func NewRawStore(pool *pgxpool.Pool) *RawStore {
	return &RawStore{pool: pool}
}

// bronzeTable maps an entity type to its bronze table. Table names are
// compiled in, never caller-supplied, so identifier interpolation is safe.
func bronzeTable(entity domain.EntityType) (string, error) {
	switch entity {
	case domain.EntityCustomers:
		return "bronze_customers", nil
	case domain.EntityDeposits:
		return "bronze_deposits", nil
	case domain.EntityTrades:
		return "bronze_trades", nil
	case domain.EntityAssets:
		return "bronze_assets", nil
	default:
		return "", fmt.Errorf("postgres: unknown entity type %q", entity)
	}
}

const rawCols = `affiliate_id, record_id, data, load_timestamp, api_run_timestamp,
	source_descriptor, load_status, error_message, retry_count`

// Insert appends one bronze row. Re-inserting an identical identity key is a
// no-op, so repeated loads of the same record at the same instant stay
// idempotent instead of violating the primary key.
func (s *RawStore) Insert(ctx context.Context, entity domain.EntityType, rec domain.RawRecord) error {
	table, err := bronzeTable(entity)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ` + table + ` (` + rawCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (affiliate_id, record_id, load_timestamp) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		rec.AffiliateID, rec.RecordID, rec.Data,
		rec.LoadTimestamp, rec.APIRunTimestamp,
		rec.SourceDescriptor, string(rec.LoadStatus),
		rec.ErrorMessage, rec.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert %s record %s: %w", table, rec.RecordID, err)
	}
	return nil
}

// ListSuccessfulSince returns clean bronze rows newer than the watermark for
// one affiliate, ordered by load_timestamp ascending so downstream
// last-write-wins upserts resolve deterministically.
func (s *RawStore) ListSuccessfulSince(ctx context.Context, entity domain.EntityType, affiliateID int64, watermark time.Time) ([]domain.RawRecord, error) {
	table, err := bronzeTable(entity)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + rawCols + `
		FROM ` + table + `
		WHERE affiliate_id = $1 AND load_timestamp > $2 AND load_status = 'SUCCESS'
		ORDER BY load_timestamp ASC`

	rows, err := s.pool.Query(ctx, query, affiliateID, watermark)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s since %s: %w", table, watermark.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return scanRawRecords(table, rows)
}

// LatestRetryCount returns the retry count on the most recent failed row for
// a record, or 0 when the record never failed.
func (s *RawStore) LatestRetryCount(ctx context.Context, entity domain.EntityType, affiliateID int64, recordID string) (int, error) {
	table, err := bronzeTable(entity)
	if err != nil {
		return 0, err
	}

	query := `
		SELECT retry_count FROM ` + table + `
		WHERE affiliate_id = $1 AND record_id = $2 AND load_status = 'ERROR'
		ORDER BY load_timestamp DESC
		LIMIT 1`

	var count int
	err = s.pool.QueryRow(ctx, query, affiliateID, recordID).Scan(&count)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: latest retry count %s/%s: %w", table, recordID, err)
	}
	return count, nil
}

// ListFailed returns rows that reached the retry cap, for manual inspection.
func (s *RawStore) ListFailed(ctx context.Context, entity domain.EntityType, maxRetries int) ([]domain.RawRecord, error) {
	table, err := bronzeTable(entity)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + rawCols + `
		FROM ` + table + `
		WHERE load_status = 'ERROR' AND retry_count >= $1
		ORDER BY load_timestamp DESC`

	rows, err := s.pool.Query(ctx, query, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("postgres: list failed %s: %w", table, err)
	}
	defer rows.Close()

	return scanRawRecords(table, rows)
}

// Counts aggregates bronze rows by load status for the status feed.
func (s *RawStore) Counts(ctx context.Context, entity domain.EntityType) (domain.RawCounts, error) {
	table, err := bronzeTable(entity)
	if err != nil {
		return domain.RawCounts{}, err
	}

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE load_status = 'SUCCESS'),
			COUNT(*) FILTER (WHERE load_status = 'ERROR'),
			COUNT(*) FILTER (WHERE load_status = 'PARTIAL')
		FROM ` + table

	var c domain.RawCounts
	if err := s.pool.QueryRow(ctx, query).Scan(&c.Total, &c.Success, &c.Error, &c.Partial); err != nil {
		return domain.RawCounts{}, fmt.Errorf("postgres: counts %s: %w", table, err)
	}
	return c, nil
}

// ListOlderThan returns rows loaded strictly before the cutoff, for archival.
func (s *RawStore) ListOlderThan(ctx context.Context, entity domain.EntityType, before time.Time) ([]domain.RawRecord, error) {
	table, err := bronzeTable(entity)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + rawCols + `
		FROM ` + table + `
		WHERE load_timestamp < $1
		ORDER BY load_timestamp ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s older than %s: %w", table, before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return scanRawRecords(table, rows)
}

// isNoRows reports whether err is the pgx empty-result sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// scanRawRecords drains a row set of raw bronze rows.
func scanRawRecords(table string, rows pgx.Rows) ([]domain.RawRecord, error) {
	var records []domain.RawRecord
	for rows.Next() {
		var rec domain.RawRecord
		var status string
		if err := rows.Scan(
			&rec.AffiliateID, &rec.RecordID, &rec.Data,
			&rec.LoadTimestamp, &rec.APIRunTimestamp,
			&rec.SourceDescriptor, &status,
			&rec.ErrorMessage, &rec.RetryCount,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan %s row: %w", table, err)
		}
		rec.LoadStatus = domain.RecordStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", table, err)
	}
	return records, nil
}

// Compile-time interface check.
var _ domain.RawStore = (*RawStore)(nil)
