package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// DepositStore implements domain.DepositStore using PostgreSQL.
type DepositStore struct {
	pool *pgxpool.Pool
}

// NewDepositStore creates a new DepositStore backed by the given pool.
func NewDepositStore(pool *pgxpool.Pool) *DepositStore {
	return &DepositStore{pool: pool}
}

const depositUpsert = `
	INSERT INTO silver_deposits (
		order_id, affiliate_id, client_id, deposit_time, deposit_date,
		coin, amount, status, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	ON CONFLICT (order_id) DO UPDATE SET
		affiliate_id = EXCLUDED.affiliate_id,
		client_id    = EXCLUDED.client_id,
		deposit_time = EXCLUDED.deposit_time,
		deposit_date = EXCLUDED.deposit_date,
		coin         = EXCLUDED.coin,
		amount       = EXCLUDED.amount,
		status       = EXCLUDED.status,
		updated_at   = NOW()`

// UpsertBatch inserts or updates deposits by natural key (order_id) in a
// single batch round trip.
func (s *DepositStore) UpsertBatch(ctx context.Context, deposits []domain.Deposit) error {
	if len(deposits) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, d := range deposits {
		batch.Queue(depositUpsert,
			d.OrderID, d.AffiliateID, d.ClientID, d.DepositTime, d.DepositDate,
			d.Coin, d.Amount, d.Status,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range deposits {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert deposit batch item %d: %w", i, err)
		}
	}
	return nil
}

// Count returns the total number of canonical deposits.
func (s *DepositStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM silver_deposits").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count deposits: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.DepositStore = (*DepositStore)(nil)
