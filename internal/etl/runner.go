package etl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cryptoaffil/dataplatform/internal/domain"
)

// Layer selects which pipeline stage(s) a run covers.
type Layer string

const (
	// LayerBitget ingests bronze from the live affiliate API.
	LayerBitget Layer = "bitget"
	// LayerBronze ingests bronze by replaying captured landing files.
	LayerBronze Layer = "bronze"
	// LayerSilver canonicalizes bronze into silver.
	LayerSilver Layer = "silver"
	// LayerGold refreshes the aggregate views.
	LayerGold Layer = "gold"
	// LayerAll runs live bronze, then silver, then gold.
	LayerAll Layer = "all"
)

// ParseLayer validates a CLI-provided layer name.
func ParseLayer(s string) (Layer, error) {
	switch Layer(s) {
	case LayerBitget, LayerBronze, LayerSilver, LayerGold, LayerAll:
		return Layer(s), nil
	default:
		return "", fmt.Errorf("etl: unknown layer %q (valid: bitget, bronze, silver, gold, all)", s)
	}
}

// Result is the outcome of one table job within a run.
type Result struct {
	Table   string             `json:"table"`
	Outcome domain.LoadOutcome `json:"outcome"`
	Skipped bool               `json:"skipped"`
	Err     string             `json:"error,omitempty"`
}

// Summary aggregates the results of one Run invocation.
type Summary struct {
	Layer   Layer    `json:"layer"`
	Results []Result `json:"results"`
}

// Failed reports whether any job ended in ERROR or failed outright. Skipped
// jobs (a concurrent run already held the table) do not count as failures.
func (s Summary) Failed() bool {
	for _, r := range s.Results {
		if r.Skipped {
			continue
		}
		if r.Err != "" || r.Outcome.Status == domain.RunError {
			return true
		}
	}
	return false
}

// Alerter delivers out-of-band failure notifications.
type Alerter interface {
	Alert(ctx context.Context, subject, message string) error
}

// statusChannel carries live run events for dashboard subscribers;
// eventStream keeps a short durable history of the same events.
const (
	statusChannel = "etl:status"
	eventStream   = "etl:events"
)

// Runner schedules pipeline stages across a bounded worker pool. One table
// never runs twice concurrently: the tracker's check-and-set is the mutex,
// and a busy table is skipped with a log line rather than failed.
type Runner struct {
	live        *Ingestor
	replay      *Ingestor
	transformer *Transformer
	refresher   *Refresher
	bus         domain.EventBus
	alerter     Alerter
	workers     int
	runTimeout  time.Duration
	logger      *slog.Logger
}

// NewRunner creates a Runner. bus and alerter may be nil; replay may be nil
// when no landing directory is configured.
func NewRunner(
	live *Ingestor,
	replay *Ingestor,
	transformer *Transformer,
	refresher *Refresher,
	bus domain.EventBus,
	alerter Alerter,
	workers int,
	runTimeout time.Duration,
	logger *slog.Logger,
) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		live:        live,
		replay:      replay,
		transformer: transformer,
		refresher:   refresher,
		bus:         bus,
		alerter:     alerter,
		workers:     workers,
		runTimeout:  runTimeout,
		logger:      logger.With(slog.String("component", "runner")),
	}
}

// Run executes one layer. days bounds the extraction window for bronze
// stages and is ignored by silver and gold. The returned Summary always
// covers every attempted job; the error is reserved for invalid input or a
// hard stop before any job ran.
func (r *Runner) Run(ctx context.Context, layer Layer, days int) (Summary, error) {
	summary := Summary{Layer: layer}

	switch layer {
	case LayerBitget:
		summary.Results = r.runBronze(ctx, r.live, days)
	case LayerBronze:
		if r.replay == nil {
			return summary, errors.New("etl: no landing directory configured for replay")
		}
		summary.Results = r.runBronze(ctx, r.replay, days)
	case LayerSilver:
		summary.Results = r.runSilver(ctx)
	case LayerGold:
		summary.Results = []Result{r.runGold(ctx)}
	case LayerAll:
		summary.Results = r.runBronze(ctx, r.live, days)
		summary.Results = append(summary.Results, r.runSilver(ctx)...)
		summary.Results = append(summary.Results, r.runGold(ctx))
	default:
		return summary, fmt.Errorf("etl: unknown layer %q", layer)
	}

	return summary, nil
}

// runBronze ingests every entity type concurrently, bounded by the worker
// pool.
func (r *Runner) runBronze(ctx context.Context, ingestor *Ingestor, days int) []Result {
	return r.runPool(ctx, func(ctx context.Context, entity domain.EntityType) (string, domain.LoadOutcome, error) {
		outcome, err := ingestor.Run(ctx, entity, days)
		return entity.BronzeTable(), outcome, err
	})
}

// runSilver canonicalizes every entity type concurrently.
func (r *Runner) runSilver(ctx context.Context) []Result {
	return r.runPool(ctx, func(ctx context.Context, entity domain.EntityType) (string, domain.LoadOutcome, error) {
		outcome, err := r.transformer.Run(ctx, entity)
		return entity.SilverTable(), outcome, err
	})
}

// runGold triggers a full aggregate refresh. A blocked or already-locked
// refresh is a skip, not a failure: the next scheduled run picks it up.
func (r *Runner) runGold(ctx context.Context) Result {
	runCtx, cancel := r.jobContext(ctx)
	defer cancel()

	outcome, err := r.refresher.Run(runCtx, domain.ScopeAll)
	res := r.collect(ctx, goldTable, outcome, err)
	return res
}

// runPool fans one job per entity type into the bounded pool and gathers
// results. Job failures are captured per table; they never cancel sibling
// jobs.
func (r *Runner) runPool(ctx context.Context, job func(context.Context, domain.EntityType) (string, domain.LoadOutcome, error)) []Result {
	var (
		mu      sync.Mutex
		results []Result
	)

	g, poolCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, entity := range domain.AllEntityTypes() {
		g.Go(func() error {
			runCtx, cancel := r.jobContext(poolCtx)
			defer cancel()

			table, outcome, err := job(runCtx, entity)
			res := r.collect(ctx, table, outcome, err)

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	// Jobs never return errors; Wait only joins them.
	_ = g.Wait()

	return results
}

// jobContext bounds one table job by the configured run timeout.
func (r *Runner) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.runTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.runTimeout)
}

// collect classifies one job result, publishes it, and alerts on failure.
func (r *Runner) collect(ctx context.Context, table string, outcome domain.LoadOutcome, err error) Result {
	res := Result{Table: table, Outcome: outcome}

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRunInProgress),
		errors.Is(err, domain.ErrLockHeld),
		errors.Is(err, domain.ErrRefreshBlocked):
		res.Skipped = true
		res.Err = err.Error()
		r.logger.Warn("table job skipped",
			slog.String("table", table),
			slog.String("reason", err.Error()),
		)
	default:
		res.Err = err.Error()
		r.logger.Error("table job failed",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
	}

	r.publish(ctx, res)

	if !res.Skipped && (res.Err != "" || res.Outcome.Status == domain.RunError) {
		r.alert(ctx, res)
	}
	return res
}

// publish pushes one result to the live channel and the durable stream.
// Delivery failures are logged and swallowed: eventing must never change a
// run's outcome.
func (r *Runner) publish(ctx context.Context, res Result) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, statusChannel, payload); err != nil {
		r.logger.Warn("publish run event", slog.String("error", err.Error()))
	}
	if err := r.bus.StreamAppend(ctx, eventStream, payload); err != nil {
		r.logger.Warn("append run event", slog.String("error", err.Error()))
	}
}

// alert sends a failure notification for one table job.
func (r *Runner) alert(ctx context.Context, res Result) {
	if r.alerter == nil {
		return
	}
	msg := fmt.Sprintf("table %s ended %s", res.Table, res.Outcome.Status)
	if res.Err != "" {
		msg = fmt.Sprintf("table %s failed: %s", res.Table, res.Err)
	}
	if err := r.alerter.Alert(ctx, "ETL run failure", msg); err != nil {
		r.logger.Warn("alert delivery failed", slog.String("error", err.Error()))
	}
}
