package etl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// refreshLockKey serializes gold refreshes across processes.
const refreshLockKey = "gold_refresh"

// goldTable is the tracker table name for the aggregate layer as a whole.
const goldTable = "gold_views"

// Refresher triggers the gold aggregate refresh. It refuses to run while any
// silver table is mid-load, failed, or has never loaded: aggregates built on
// a broken silver layer would publish wrong numbers. A distributed lock keeps
// overlapping schedulers from refreshing concurrently.
type Refresher struct {
	tracker domain.LoadStatusStore
	engine  domain.AggregateEngine
	locks   domain.LockManager
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewRefresher creates a Refresher.
func NewRefresher(tracker domain.LoadStatusStore, engine domain.AggregateEngine, locks domain.LockManager, lockTTL time.Duration, logger *slog.Logger) *Refresher {
	return &Refresher{
		tracker: tracker,
		engine:  engine,
		locks:   locks,
		lockTTL: lockTTL,
		logger:  logger.With(slog.String("component", "refresher")),
		now:     time.Now,
	}
}

// Run refreshes the requested aggregate scope. It returns
// domain.ErrRefreshBlocked when the silver layer is not in a refreshable
// state, domain.ErrLockHeld when another refresh is in flight elsewhere, and
// domain.ErrRunInProgress when this tracker row is already RUNNING.
func (r *Refresher) Run(ctx context.Context, scope domain.RefreshScope) (domain.LoadOutcome, error) {
	if err := r.checkSilver(ctx); err != nil {
		return domain.LoadOutcome{}, err
	}

	unlock, err := r.locks.Acquire(ctx, refreshLockKey, r.lockTTL)
	if err != nil {
		return domain.LoadOutcome{}, err
	}
	defer unlock()

	at := r.now().UTC()
	if err := r.tracker.StartRun(ctx, goldTable, at); err != nil {
		return domain.LoadOutcome{}, err
	}

	refreshErr := r.engine.Refresh(ctx, scope)

	outcome := domain.LoadOutcome{
		Status:   domain.RunSuccess,
		Duration: r.now().UTC().Sub(at),
	}
	errMsg := ""
	if refreshErr != nil {
		outcome.Status = domain.RunError
		errMsg = refreshErr.Error()
	}

	if err := r.tracker.FinishRun(ctx, goldTable, outcome, errMsg); err != nil {
		return outcome, fmt.Errorf("etl: finish gold run: %w", err)
	}

	r.logger.Info("gold refresh finished",
		slog.String("scope", string(scope)),
		slog.String("status", string(outcome.Status)),
		slog.Duration("duration", outcome.Duration),
	)
	return outcome, refreshErr
}

// checkSilver verifies every silver table is in a refreshable terminal state.
// SUCCESS and PARTIAL qualify: PARTIAL means some records were rejected, not
// that the table holds wrong rows.
func (r *Refresher) checkSilver(ctx context.Context) error {
	for _, entity := range domain.AllEntityTypes() {
		table := entity.SilverTable()
		status, err := r.tracker.Get(ctx, table)
		if err != nil {
			return fmt.Errorf("etl: read silver status %s: %w", table, err)
		}
		switch status.Status {
		case domain.RunSuccess, domain.RunPartial:
			// refreshable
		default:
			return fmt.Errorf("etl: %s is %s: %w", table, status.Status, domain.ErrRefreshBlocked)
		}
	}
	return nil
}
