package domain

import "time"

// RunStatus is the state of one logical table in the load-status tracker.
// Every table starts NEVER_RUN and is re-enterable from any terminal state.
type RunStatus string

const (
	RunNeverRun RunStatus = "NEVER_RUN"
	RunRunning  RunStatus = "RUNNING"
	RunSuccess  RunStatus = "SUCCESS"
	RunPartial  RunStatus = "PARTIAL"
	RunError    RunStatus = "ERROR"
)

// Terminal reports whether the status is a resting state a new run may start
// from. RUNNING is the only non-terminal state besides NEVER_RUN, which is
// also startable.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSuccess, RunPartial, RunError, RunNeverRun:
		return true
	default:
		return false
	}
}

// LoadStatus is the tracker row for one logical table. LastSuccessfulLoad is
// the incremental watermark: downstream stages read rows newer than it.
// A run ending ERROR never moves the watermark.
type LoadStatus struct {
	TableName          string
	Status             RunStatus
	LastAttemptedLoad  *time.Time
	LastSuccessfulLoad *time.Time
	ErrorMessage       string
	RecordsProcessed   int
	ProcessingTime     time.Duration
	UpdatedAt          time.Time
}

// Watermark returns the last successful load time, or the zero time when the
// table has never completed a run.
func (ls LoadStatus) Watermark() time.Time {
	if ls.LastSuccessfulLoad == nil {
		return time.Time{}
	}
	return *ls.LastSuccessfulLoad
}

// LoadOutcome summarizes one finished run of a stage against one table.
type LoadOutcome struct {
	Status       RunStatus     `json:"status"`
	Total        int           `json:"total"`
	SuccessCount int           `json:"success_count"`
	ErrorCount   int           `json:"error_count"`
	Duration     time.Duration `json:"duration"`
}

// FeedStatus is the coarse health signal the dashboard status feed reports
// per data source.
type FeedStatus string

const (
	FeedSuccess FeedStatus = "SUCCESS"
	FeedWarning FeedStatus = "WARNING"
	FeedError   FeedStatus = "ERROR"
)

// StatusFeedRow is one row of the read-only ETL status feed.
type StatusFeedRow struct {
	DataSource   string     `json:"data_source"`
	LastLoadTime *time.Time `json:"last_load_time"`
	Status       FeedStatus `json:"status"`
	TotalRecords int64      `json:"total_records"`
	SuccessCount int64      `json:"success_count"`
	ErrorCount   int64      `json:"error_count"`
	PartialCount int64      `json:"partial_count"`
}

// DeriveFeedStatus maps raw record counts to the feed signal: ERROR when any
// record failed, WARNING when records were partial but none failed, SUCCESS
// otherwise.
func DeriveFeedStatus(c RawCounts) FeedStatus {
	switch {
	case c.Error > 0:
		return FeedError
	case c.Partial > 0:
		return FeedWarning
	default:
		return FeedSuccess
	}
}
