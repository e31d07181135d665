package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// CustomerStore implements domain.CustomerStore using PostgreSQL.
type CustomerStore struct {
	pool *pgxpool.Pool
}

// NewCustomerStore creates a new CustomerStore backed by the given pool.
func NewCustomerStore(pool *pgxpool.Pool) *CustomerStore {
	return &CustomerStore{pool: pool}
}

const customerUpsert = `
	INSERT INTO silver_customers (
		affiliate_id, client_id, register_time, register_date,
		country, status, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, NOW())
	ON CONFLICT (affiliate_id, client_id) DO UPDATE SET
		register_time = EXCLUDED.register_time,
		register_date = EXCLUDED.register_date,
		country       = EXCLUDED.country,
		status        = EXCLUDED.status,
		updated_at    = NOW()`

// UpsertBatch inserts or updates customers by natural key
// (affiliate_id, client_id) in a single batch round trip.
func (s *CustomerStore) UpsertBatch(ctx context.Context, customers []domain.Customer) error {
	if len(customers) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range customers {
		batch.Queue(customerUpsert,
			c.AffiliateID, c.ClientID, c.RegisterTime, c.RegisterDate,
			c.Country, c.Status,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range customers {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert customer batch item %d: %w", i, err)
		}
	}
	return nil
}

// Count returns the total number of canonical customers.
func (s *CustomerStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM silver_customers").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count customers: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.CustomerStore = (*CustomerStore)(nil)
