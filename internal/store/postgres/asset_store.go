package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// AssetStore implements domain.AssetStore using PostgreSQL.
type AssetStore struct {
	pool *pgxpool.Pool
}

// NewAssetStore creates a new AssetStore backed by the given pool.
func NewAssetStore(pool *pgxpool.Pool) *AssetStore {
	return &AssetStore{pool: pool}
}

const assetUpsert = `
	INSERT INTO silver_assets (
		affiliate_id, client_id, update_time, symbol, balance, remark, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, NOW())
	ON CONFLICT (affiliate_id, client_id, update_time) DO UPDATE SET
		symbol     = EXCLUDED.symbol,
		balance    = EXCLUDED.balance,
		remark     = EXCLUDED.remark,
		updated_at = NOW()`

// UpsertBatch inserts or updates asset snapshots by natural key
// (affiliate_id, client_id, update_time) in a single batch round trip.
func (s *AssetStore) UpsertBatch(ctx context.Context, assets []domain.Asset) error {
	if len(assets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range assets {
		batch.Queue(assetUpsert,
			a.AffiliateID, a.ClientID, a.UpdateTime,
			a.Symbol, a.Balance, a.Remark,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range assets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert asset batch item %d: %w", i, err)
		}
	}
	return nil
}

// Count returns the total number of canonical asset snapshots.
func (s *AssetStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM silver_assets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count assets: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.AssetStore = (*AssetStore)(nil)
