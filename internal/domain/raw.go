package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies one of the fixed business entity feeds the pipeline
// processes. Each entity type maps to one bronze and one silver table.
type EntityType string

const (
	EntityCustomers EntityType = "customers"
	EntityDeposits  EntityType = "deposits"
	EntityTrades    EntityType = "trades"
	EntityAssets    EntityType = "assets"
)

// AllEntityTypes returns the entity types in pipeline processing order.
func AllEntityTypes() []EntityType {
	return []EntityType{EntityCustomers, EntityDeposits, EntityTrades, EntityAssets}
}

// BronzeTable returns the load-status table name for an entity's raw layer.
func (e EntityType) BronzeTable() string { return "bronze_" + string(e) }

// SilverTable returns the load-status table name for an entity's canonical layer.
func (e EntityType) SilverTable() string { return "silver_" + string(e) }

// RecordStatus is the per-record load status stored on each bronze row.
type RecordStatus string

const (
	RecordSuccess RecordStatus = "SUCCESS"
	RecordError   RecordStatus = "ERROR"
	RecordPartial RecordStatus = "PARTIAL"
)

// RawPayload is a single record as produced by a source connector: the
// source-assigned identifier plus the untouched payload bytes.
type RawPayload struct {
	RecordID string
	Data     json.RawMessage
}

// RawRecord is one bronze row. The payload is stored verbatim; all cleaning
// happens downstream. Identity key is (affiliate_id, record_id,
// load_timestamp) so the same source record loaded at different times
// coexists as an append-only audit trail.
type RawRecord struct {
	AffiliateID      int64
	RecordID         string
	Data             json.RawMessage
	LoadTimestamp    time.Time
	APIRunTimestamp  time.Time
	SourceDescriptor string
	LoadStatus       RecordStatus
	ErrorMessage     string
	RetryCount       int
}

// RawCounts aggregates bronze rows by load status for one entity type. The
// ETL status feed derives its WARNING/ERROR signal from these counts.
type RawCounts struct {
	Total   int64
	Success int64
	Error   int64
	Partial int64
}

// TimeWindow bounds an extraction run. Start is inclusive, End exclusive.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// TrailingWindow returns the window covering the trailing number of days up
// to now, aligned to UTC.
func TrailingWindow(days int, now time.Time) TimeWindow {
	end := now.UTC()
	return TimeWindow{Start: end.AddDate(0, 0, -days), End: end}
}
