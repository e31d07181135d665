package etl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// Transformer drives silver canonicalization: it reads clean bronze rows
// newer than the table's watermark, validates and derives each record, and
// upserts survivors by natural key. Validation failures are counted and never
// abort a batch; a storage failure aborts the run with zero records
// processed so the watermark stays put and the next run re-reads everything.
type Transformer struct {
	raw        domain.RawStore
	tracker    domain.LoadStatusStore
	customers  domain.CustomerStore
	deposits   domain.DepositStore
	trades     domain.TradeStore
	assets     domain.AssetStore
	scorer     *Scorer
	affiliates []int64
	timeliness time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewTransformer creates a Transformer. scorer may be nil to skip quality
// scoring after each run.
func NewTransformer(
	raw domain.RawStore,
	tracker domain.LoadStatusStore,
	customers domain.CustomerStore,
	deposits domain.DepositStore,
	trades domain.TradeStore,
	assets domain.AssetStore,
	scorer *Scorer,
	affiliates []int64,
	timeliness time.Duration,
	logger *slog.Logger,
) *Transformer {
	return &Transformer{
		raw:        raw,
		tracker:    tracker,
		customers:  customers,
		deposits:   deposits,
		trades:     trades,
		assets:     assets,
		scorer:     scorer,
		affiliates: affiliates,
		timeliness: timeliness,
		logger:     logger.With(slog.String("component", "transformer")),
		now:        time.Now,
	}
}

// Run canonicalizes all unprocessed bronze rows of one entity type. It
// returns domain.ErrRunInProgress when the silver table is already being
// loaded, or when the entity's bronze table is mid-run: an in-flight bronze
// load could commit rows stamped before this run's watermark advance, and
// those rows would then never be read. On SUCCESS or PARTIAL the run also
// records quality scores for the day.
func (t *Transformer) Run(ctx context.Context, entity domain.EntityType) (domain.LoadOutcome, error) {
	table := entity.SilverTable()
	at := t.now().UTC()

	bronze, err := t.tracker.Get(ctx, entity.BronzeTable())
	if err != nil {
		return domain.LoadOutcome{}, fmt.Errorf("etl: bronze status %s: %w", entity.BronzeTable(), err)
	}
	if bronze.Status == domain.RunRunning {
		return domain.LoadOutcome{}, fmt.Errorf("etl: bronze load in flight for %s: %w", entity, domain.ErrRunInProgress)
	}

	if err := t.tracker.StartRun(ctx, table, at); err != nil {
		return domain.LoadOutcome{}, err
	}

	status, err := t.tracker.Get(ctx, table)
	if err != nil {
		return t.finish(ctx, table, domain.LoadOutcome{Status: domain.RunError}, at, err)
	}

	profile, runErr := t.transform(ctx, entity, status.Watermark())

	outcome := domain.LoadOutcome{
		Total:        profile.Total,
		SuccessCount: profile.Valid,
		ErrorCount:   profile.Invalid,
	}
	if runErr != nil {
		// Fatal stage failure: nothing counts as processed.
		outcome.Status = domain.RunError
		outcome.SuccessCount = 0
		outcome.ErrorCount = outcome.Total
	} else {
		outcome.Status = bronzeStatus(outcome)
	}

	outcome, err = t.finish(ctx, table, outcome, at, runErr)
	if err != nil {
		return outcome, err
	}

	if runErr == nil && t.scorer != nil {
		if _, serr := t.scorer.Score(ctx, table, domain.DateOf(at), profile); serr != nil {
			t.logger.Warn("quality scoring failed",
				slog.String("table", table),
				slog.String("error", serr.Error()),
			)
		}
	}

	return outcome, runErr
}

// finish closes the tracker run and logs the result.
func (t *Transformer) finish(ctx context.Context, table string, outcome domain.LoadOutcome, at time.Time, runErr error) (domain.LoadOutcome, error) {
	outcome.Duration = t.now().UTC().Sub(at)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := t.tracker.FinishRun(ctx, table, outcome, errMsg); err != nil {
		return outcome, fmt.Errorf("etl: finish silver run %s: %w", table, err)
	}

	t.logger.Info("silver run finished",
		slog.String("table", table),
		slog.String("status", string(outcome.Status)),
		slog.Int("total", outcome.Total),
		slog.Int("valid", outcome.SuccessCount),
		slog.Int("invalid", outcome.ErrorCount),
		slog.Duration("duration", outcome.Duration),
	)
	return outcome, runErr
}

// transform reads, canonicalizes, and upserts one entity type. The returned
// profile is valid even on error so the caller can report accumulated counts.
func (t *Transformer) transform(ctx context.Context, entity domain.EntityType, watermark time.Time) (domain.BatchProfile, error) {
	var rows []domain.RawRecord
	for _, affiliateID := range t.affiliates {
		batch, err := t.raw.ListSuccessfulSince(ctx, entity, affiliateID, watermark)
		if err != nil {
			return domain.BatchProfile{}, err
		}
		rows = append(rows, batch...)
	}

	switch entity {
	case domain.EntityCustomers:
		return transformBatch(ctx, rows, t.timeliness, customerCodec(t.now), t.customers.UpsertBatch)
	case domain.EntityDeposits:
		return transformBatch(ctx, rows, t.timeliness, depositCodec(t.now), t.deposits.UpsertBatch)
	case domain.EntityTrades:
		return transformBatch(ctx, rows, t.timeliness, tradeCodec(t.now), t.trades.UpsertBatch)
	case domain.EntityAssets:
		return transformBatch(ctx, rows, t.timeliness, assetCodec(t.now), t.assets.UpsertBatch)
	default:
		return domain.BatchProfile{}, fmt.Errorf("etl: unknown entity type %q", entity)
	}
}

// codec bundles the per-entity hooks the generic transform loop needs.
type codec[T any] struct {
	decode    func(affiliateID int64, data json.RawMessage) (T, error)
	validate  func(T) error
	derive    func(*T)
	key       func(T) string
	eventTime func(T) time.Time
}

// transformBatch runs the canonicalization loop over bronze rows in
// load_timestamp order. Duplicate natural keys within the batch are counted
// and kept: ordered upserts make the latest row win. The upsert itself is the
// only fatal step.
func transformBatch[T any](ctx context.Context, rows []domain.RawRecord, timeliness time.Duration, c codec[T], upsert func(context.Context, []T) error) (domain.BatchProfile, error) {
	var profile domain.BatchProfile
	var batch []T
	seen := make(map[string]bool, len(rows))

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return profile, err
		}
		profile.Total++

		entity, err := c.decode(row.AffiliateID, row.Data)
		if err == nil {
			err = c.validate(entity)
		}
		if err != nil {
			profile.Invalid++
			var ve *domain.ValidationError
			if errors.As(err, &ve) && rangeField(ve.Field) {
				profile.RangeViolations++
			}
			continue
		}

		c.derive(&entity)

		key := c.key(entity)
		if seen[key] {
			profile.DuplicateKeys++
		}
		seen[key] = true

		if row.LoadTimestamp.Sub(c.eventTime(entity)) > timeliness {
			profile.LateRecords++
		}

		profile.Valid++
		batch = append(batch, entity)
	}

	if len(batch) > 0 {
		if err := upsert(ctx, batch); err != nil {
			return profile, fmt.Errorf("etl: upsert batch: %w", err)
		}
	}
	return profile, nil
}

func customerCodec(now func() time.Time) codec[domain.Customer] {
	return codec[domain.Customer]{
		decode:   decodeCustomer,
		validate: func(c domain.Customer) error { return c.Validate() },
		derive: func(c *domain.Customer) {
			c.Derive()
			c.UpdatedAt = now().UTC()
		},
		key: func(c domain.Customer) string {
			return fmt.Sprintf("%d:%s", c.AffiliateID, c.ClientID)
		},
		eventTime: func(c domain.Customer) time.Time { return c.RegisterTime },
	}
}

func depositCodec(now func() time.Time) codec[domain.Deposit] {
	return codec[domain.Deposit]{
		decode:   decodeDeposit,
		validate: func(d domain.Deposit) error { return d.Validate() },
		derive: func(d *domain.Deposit) {
			d.Derive()
			d.UpdatedAt = now().UTC()
		},
		key:       func(d domain.Deposit) string { return d.OrderID },
		eventTime: func(d domain.Deposit) time.Time { return d.DepositTime },
	}
}

func tradeCodec(now func() time.Time) codec[domain.Trade] {
	return codec[domain.Trade]{
		decode:   decodeTrade,
		validate: func(t domain.Trade) error { return t.Validate() },
		derive: func(t *domain.Trade) {
			t.Derive()
			t.UpdatedAt = now().UTC()
		},
		key: func(t domain.Trade) string {
			return fmt.Sprintf("%d:%s:%d:%g", t.AffiliateID, t.ClientID, t.TradeTime.UnixMilli(), t.Volume)
		},
		eventTime: func(t domain.Trade) time.Time { return t.TradeTime },
	}
}

func assetCodec(now func() time.Time) codec[domain.Asset] {
	return codec[domain.Asset]{
		decode:   decodeAsset,
		validate: func(a domain.Asset) error { return a.Validate() },
		derive: func(a *domain.Asset) {
			a.Derive()
			a.UpdatedAt = now().UTC()
		},
		key: func(a domain.Asset) string {
			return fmt.Sprintf("%d:%s:%d", a.AffiliateID, a.ClientID, a.UpdateTime.UnixMilli())
		},
		eventTime: func(a domain.Asset) time.Time { return a.UpdateTime },
	}
}
