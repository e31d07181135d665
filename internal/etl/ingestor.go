// Package etl implements the medallion pipeline stages: bronze ingestion,
// silver canonicalization, quality scoring, gold aggregate refresh, and the
// runner that schedules them across a bounded worker pool.
package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/domain"
	"github.com/cryptoaffil/dataplatform/internal/source"
)

// Ingestor drives bronze ingestion for one connector: it fetches raw payloads
// per affiliate, stores them verbatim, and books per-record retry counts.
// Each run of one entity type is guarded by the load-status tracker; a second
// concurrent run of the same table is rejected before any work happens.
type Ingestor struct {
	connector  source.Connector
	raw        domain.RawStore
	tracker    domain.LoadStatusStore
	affiliates []int64
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

// NewIngestor creates an Ingestor. maxRetries caps per-record re-ingestion
// attempts across scheduled runs.
func NewIngestor(connector source.Connector, raw domain.RawStore, tracker domain.LoadStatusStore, affiliates []int64, maxRetries int, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		connector:  connector,
		raw:        raw,
		tracker:    tracker,
		affiliates: affiliates,
		maxRetries: maxRetries,
		logger:     logger.With(slog.String("component", "ingestor")),
		now:        time.Now,
	}
}

// Run ingests the trailing window for one entity type across all configured
// affiliates. It returns domain.ErrRunInProgress unchanged when the table is
// already being loaded; every other path finishes the tracker run with a
// terminal status. The outcome status is SUCCESS when every record landed
// clean, PARTIAL when some did, and ERROR when none did or the extraction
// itself failed.
func (i *Ingestor) Run(ctx context.Context, entity domain.EntityType, days int) (domain.LoadOutcome, error) {
	table := entity.BronzeTable()
	at := i.now().UTC()

	if err := i.tracker.StartRun(ctx, table, at); err != nil {
		return domain.LoadOutcome{}, err
	}

	window := domain.TrailingWindow(days, at)
	outcome, runErr := i.ingest(ctx, entity, window, at)
	outcome.Duration = i.now().UTC().Sub(at)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := i.tracker.FinishRun(ctx, table, outcome, errMsg); err != nil {
		return outcome, fmt.Errorf("etl: finish bronze run %s: %w", table, err)
	}

	i.logger.Info("bronze run finished",
		slog.String("table", table),
		slog.String("status", string(outcome.Status)),
		slog.Int("total", outcome.Total),
		slog.Int("success", outcome.SuccessCount),
		slog.Int("errors", outcome.ErrorCount),
		slog.Duration("duration", outcome.Duration),
	)
	return outcome, runErr
}

// ingest does the work between StartRun and FinishRun. A connector failure
// for any affiliate aborts the run as ERROR; per-record problems, storage
// failures included, only mark that record. A record id seen twice in one
// run is ingested once: trailing windows overlap across daily captures, so
// replays routinely fetch the same record from several landing days.
func (i *Ingestor) ingest(ctx context.Context, entity domain.EntityType, window domain.TimeWindow, at time.Time) (domain.LoadOutcome, error) {
	outcome := domain.LoadOutcome{Status: domain.RunError}
	seen := make(map[string]bool)

	for _, affiliateID := range i.affiliates {
		payloads, err := i.connector.Fetch(ctx, affiliateID, entity, window)
		if err != nil {
			return outcome, fmt.Errorf("etl: extract %s for affiliate %d: %w", entity, affiliateID, err)
		}

		for _, p := range payloads {
			if err := ctx.Err(); err != nil {
				return outcome, err
			}

			if p.RecordID != "" {
				key := fmt.Sprintf("%d/%s", affiliateID, p.RecordID)
				if seen[key] {
					continue
				}
				seen[key] = true
			}

			outcome.Total++
			if i.ingestRecord(ctx, entity, affiliateID, p, at) {
				outcome.SuccessCount++
			} else {
				outcome.ErrorCount++
			}
		}
	}

	outcome.Status = bronzeStatus(outcome)
	return outcome, nil
}

// ingestRecord stores one payload, stamped with its own load timestamp so
// re-extractions of the same record never collide on the bronze identity
// key. Clean payloads land as SUCCESS rows; broken ones as ERROR rows with
// an incremented retry count, unless the record already exhausted its
// retries, in which case it is skipped and still counted as an error. A
// storage failure marks the record as an error without aborting the run.
func (i *Ingestor) ingestRecord(ctx context.Context, entity domain.EntityType, affiliateID int64, p domain.RawPayload, at time.Time) bool {
	rec := domain.RawRecord{
		AffiliateID:      affiliateID,
		RecordID:         p.RecordID,
		Data:             p.Data,
		LoadTimestamp:    i.now().UTC(),
		APIRunTimestamp:  at,
		SourceDescriptor: i.connector.Name(),
	}

	reason := recordProblem(p)
	if reason == "" {
		rec.LoadStatus = domain.RecordSuccess
		if err := i.raw.Insert(ctx, entity, rec); err != nil {
			i.logRecordFailure(entity, affiliateID, p.RecordID, "insert failed", err)
			return false
		}
		return true
	}

	// Failed record: book one more attempt unless the cap is reached.
	// Records without an identity can never be retried; they get a single
	// ERROR row at the cap so scheduled runs stop picking them up.
	retries := i.maxRetries
	if p.RecordID != "" {
		prior, err := i.raw.LatestRetryCount(ctx, entity, affiliateID, p.RecordID)
		if err != nil {
			i.logRecordFailure(entity, affiliateID, p.RecordID, "retry lookup failed", err)
			return false
		}
		if prior >= i.maxRetries {
			i.logger.Warn("record skipped, retries exhausted",
				slog.String("entity", string(entity)),
				slog.Int64("affiliate_id", affiliateID),
				slog.String("record_id", p.RecordID),
				slog.Int("retry_count", prior),
			)
			return false
		}
		retries = prior + 1
	}

	rec.LoadStatus = domain.RecordError
	rec.ErrorMessage = reason
	rec.RetryCount = retries
	if err := i.raw.Insert(ctx, entity, rec); err != nil {
		i.logRecordFailure(entity, affiliateID, p.RecordID, "error row insert failed", err)
	}
	return false
}

func (i *Ingestor) logRecordFailure(entity domain.EntityType, affiliateID int64, recordID, msg string, err error) {
	i.logger.Error("record not ingested: "+msg,
		slog.String("entity", string(entity)),
		slog.Int64("affiliate_id", affiliateID),
		slog.String("record_id", recordID),
		slog.String("error", err.Error()),
	)
}

// recordProblem reports why a payload cannot land clean, or "" when it can.
func recordProblem(p domain.RawPayload) string {
	if len(p.Data) == 0 || !json.Valid(p.Data) {
		return "payload is not valid json"
	}
	if p.RecordID == "" {
		return "record id not derivable from payload"
	}
	return ""
}

// bronzeStatus maps record counts to the run's terminal status. An empty
// extraction is a SUCCESS: the window simply held no records.
func bronzeStatus(o domain.LoadOutcome) domain.RunStatus {
	switch {
	case o.ErrorCount == 0:
		return domain.RunSuccess
	case o.SuccessCount > 0:
		return domain.RunPartial
	default:
		return domain.RunError
	}
}
