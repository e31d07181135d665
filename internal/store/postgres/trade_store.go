package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeUpsert = `
	INSERT INTO silver_trades (
		affiliate_id, client_id, trade_time, trade_date,
		symbol, volume, side, status, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	ON CONFLICT (affiliate_id, client_id, trade_time, volume) DO UPDATE SET
		trade_date = EXCLUDED.trade_date,
		symbol     = EXCLUDED.symbol,
		side       = EXCLUDED.side,
		status     = EXCLUDED.status,
		updated_at = NOW()`

// UpsertBatch inserts or updates trades by natural key
// (affiliate_id, client_id, trade_time, volume) in a single batch round trip.
func (s *TradeStore) UpsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(tradeUpsert,
			t.AffiliateID, t.ClientID, t.TradeTime, t.TradeDate,
			t.Symbol, t.Volume, string(t.Side), t.Status,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// Count returns the total number of canonical trades.
func (s *TradeStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM silver_trades").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count trades: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
