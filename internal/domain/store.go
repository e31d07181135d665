package domain

import (
	"context"
	"time"
)

// RawStore persists bronze rows. Inserts are append-only; the identity key
// (affiliate_id, record_id, load_timestamp) lets re-extractions of the same
// source record coexist.
type RawStore interface {
	Insert(ctx context.Context, entity EntityType, rec RawRecord) error
	// ListSuccessfulSince returns clean bronze rows for one affiliate with
	// load_timestamp strictly after the watermark, ordered by load_timestamp
	// ascending so last-write-wins upserts resolve deterministically.
	ListSuccessfulSince(ctx context.Context, entity EntityType, affiliateID int64, watermark time.Time) ([]RawRecord, error)
	// LatestRetryCount returns the retry count on the most recent failed row
	// for a record, or 0 when the record never failed.
	LatestRetryCount(ctx context.Context, entity EntityType, affiliateID int64, recordID string) (int, error)
	// ListFailed returns permanently failed rows (retry cap reached) for
	// manual inspection.
	ListFailed(ctx context.Context, entity EntityType, maxRetries int) ([]RawRecord, error)
	Counts(ctx context.Context, entity EntityType) (RawCounts, error)
	// ListOlderThan returns rows loaded strictly before the cutoff, for
	// cold-storage archival.
	ListOlderThan(ctx context.Context, entity EntityType, before time.Time) ([]RawRecord, error)
}

// LoadStatusStore is the per-table state machine behind every stage. StartRun
// must be an atomic check-and-set: it fails with ErrRunInProgress when the
// table is already RUNNING, so two overlapping loads can never double-count
// records or corrupt the watermark.
type LoadStatusStore interface {
	StartRun(ctx context.Context, table string, at time.Time) error
	// FinishRun moves RUNNING to a terminal state. SUCCESS and PARTIAL
	// advance last_successful_load to the run's attempt timestamp; ERROR
	// leaves the watermark untouched.
	FinishRun(ctx context.Context, table string, outcome LoadOutcome, errMsg string) error
	Get(ctx context.Context, table string) (LoadStatus, error)
	List(ctx context.Context) ([]LoadStatus, error)
}

// CustomerStore upserts canonical customers by (affiliate_id, client_id).
type CustomerStore interface {
	UpsertBatch(ctx context.Context, customers []Customer) error
	Count(ctx context.Context) (int64, error)
}

// DepositStore upserts canonical deposits by (order_id).
type DepositStore interface {
	UpsertBatch(ctx context.Context, deposits []Deposit) error
	Count(ctx context.Context) (int64, error)
}

// TradeStore upserts canonical trades by (affiliate_id, client_id,
// trade_time, volume).
type TradeStore interface {
	UpsertBatch(ctx context.Context, trades []Trade) error
	Count(ctx context.Context) (int64, error)
}

// AssetStore upserts canonical asset snapshots by (affiliate_id, client_id,
// update_time).
type AssetStore interface {
	UpsertBatch(ctx context.Context, assets []Asset) error
	Count(ctx context.Context) (int64, error)
}

// QualityStore persists per-(table, date) quality metrics. Upsert overwrites
// an existing row for the same key (idempotent recomputation).
type QualityStore interface {
	Upsert(ctx context.Context, m QualityMetric) error
	Get(ctx context.Context, table string, date time.Time) (QualityMetric, error)
	ListSince(ctx context.Context, since time.Time) ([]QualityMetric, error)
}
