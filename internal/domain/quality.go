package domain

import "time"

// QualityMetric is one per-(table, date) quality scoring result. All four
// scores are real numbers in [0,100]. A metric is recomputed idempotently:
// writing the same (table, date) again overwrites the previous row.
type QualityMetric struct {
	TableName      string    `json:"table_name"`
	MetricDate     time.Time `json:"metric_date"`
	TotalRecords   int       `json:"total_records"`
	ValidRecords   int       `json:"valid_records"`
	InvalidRecords int       `json:"invalid_records"`
	Completeness   float64   `json:"completeness"`
	Accuracy       float64   `json:"accuracy"`
	Consistency    float64   `json:"consistency"`
	Timeliness     float64   `json:"timeliness"`
	ComputedAt     time.Time `json:"computed_at"`
}

// BatchProfile carries the per-batch observations the quality scorer needs
// beyond plain valid/invalid totals. The transformer accumulates one profile
// per (table, run).
type BatchProfile struct {
	Total           int
	Valid           int
	Invalid         int
	RangeViolations int // records failing domain range checks
	DuplicateKeys   int // natural-key duplicates within the batch
	LateRecords     int // load-to-event latency beyond the threshold
}

// Add merges another profile into p.
func (p *BatchProfile) Add(o BatchProfile) {
	p.Total += o.Total
	p.Valid += o.Valid
	p.Invalid += o.Invalid
	p.RangeViolations += o.RangeViolations
	p.DuplicateKeys += o.DuplicateKeys
	p.LateRecords += o.LateRecords
}

// ClampScore bounds a score to [0,100].
func ClampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
