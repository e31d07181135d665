// Package app assembles the pipeline and dashboard from configuration and
// runs them as the two top-level modes of the binary.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cryptoaffil/dataplatform/internal/config"
	"github.com/cryptoaffil/dataplatform/internal/etl"
	"github.com/cryptoaffil/dataplatform/internal/server"
	"github.com/cryptoaffil/dataplatform/internal/server/handler"
	"github.com/cryptoaffil/dataplatform/internal/server/ws"
	"github.com/cryptoaffil/dataplatform/internal/service"
	"github.com/cryptoaffil/dataplatform/internal/source"
	"github.com/cryptoaffil/dataplatform/internal/source/bitget"
	"github.com/cryptoaffil/dataplatform/internal/source/file"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// App holds wired dependencies plus configuration for the two run modes.
type App struct {
	cfg    *config.Config
	deps   *Dependencies
	logger *slog.Logger
}

// New creates an App from wired dependencies.
func New(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
}

// RunETL executes one pipeline run for the given layer and returns the run
// summary. After a bronze run it also archives aged bronze rows when S3
// archival is configured.
func (a *App) RunETL(ctx context.Context, layer etl.Layer, days int) (etl.Summary, error) {
	runner := a.buildRunner()

	summary, err := runner.Run(ctx, layer, days)
	if err != nil {
		return summary, err
	}

	if a.deps.Archiver != nil && touchesBronze(layer) {
		cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.ETL.ArchiveRetentionDays)
		n, archErr := a.deps.Archiver.ArchiveAll(ctx, cutoff)
		if archErr != nil {
			a.logger.Warn("bronze archival failed", slog.String("error", archErr.Error()))
		} else if n > 0 {
			a.logger.Info("bronze rows archived",
				slog.Int64("rows", n),
				slog.String("cutoff", cutoff.Format(time.RFC3339)),
			)
		}
	}

	return summary, nil
}

// touchesBronze reports whether the layer writes bronze rows.
func touchesBronze(layer etl.Layer) bool {
	switch layer {
	case etl.LayerBitget, etl.LayerBronze, etl.LayerAll:
		return true
	default:
		return false
	}
}

// buildRunner assembles the pipeline stages from wired dependencies.
func (a *App) buildRunner() *etl.Runner {
	var live source.Connector
	if a.cfg.Bitget.ApiKey != "" {
		live = bitget.New(bitget.Config{
			BaseURL:        a.cfg.Bitget.BaseURL,
			ApiKey:         a.cfg.Bitget.ApiKey,
			ApiSecret:      a.cfg.Bitget.ApiSecret,
			ApiPassphrase:  a.cfg.Bitget.ApiPassphrase,
			PageSize:       a.cfg.Bitget.PageSize,
			MaxRetries:     a.cfg.Bitget.MaxRetries,
			RetryBackoff:   a.cfg.Bitget.RetryBackoff.Duration,
			RequestsPerSec: a.cfg.Bitget.RequestsPerSec,
			RequestTimeout: a.cfg.Bitget.RequestTimeout.Duration,
			LandingDir:     a.cfg.ETL.LandingDir,
		}, a.deps.RateLimiter, a.logger)
	} else {
		// No API credentials: the live layer replays landing files too.
		live = file.New(a.cfg.ETL.LandingDir, a.logger)
	}

	liveIngestor := etl.NewIngestor(live, a.deps.RawStore, a.deps.Tracker,
		a.cfg.ETL.Affiliates, a.cfg.ETL.MaxRetries, a.logger)
	replayIngestor := etl.NewIngestor(file.New(a.cfg.ETL.LandingDir, a.logger),
		a.deps.RawStore, a.deps.Tracker, a.cfg.ETL.Affiliates, a.cfg.ETL.MaxRetries, a.logger)

	scorer := etl.NewScorer(a.deps.QualityStore, a.logger)
	transformer := etl.NewTransformer(a.deps.RawStore, a.deps.Tracker,
		a.deps.CustomerStore, a.deps.DepositStore, a.deps.TradeStore, a.deps.AssetStore,
		scorer, a.cfg.ETL.Affiliates, a.cfg.ETL.TimelinessThreshold.Duration, a.logger)
	refresher := etl.NewRefresher(a.deps.Tracker, a.deps.AggregateEngine,
		a.deps.LockManager, a.cfg.ETL.RefreshLockTTL.Duration, a.logger)

	return etl.NewRunner(liveIngestor, replayIngestor, transformer, refresher,
		a.deps.EventBus, a.deps.Notifier, a.cfg.ETL.Workers, a.cfg.ETL.RunTimeout.Duration, a.logger)
}

// RunDashboard serves the read-only dashboard API until the context is
// cancelled.
func (a *App) RunDashboard(ctx context.Context, host string, port int) error {
	statusSvc := service.NewStatusService(a.deps.Tracker, a.deps.RawStore, a.logger)
	metricsSvc := service.NewMetricsService(a.deps.MetricsStore, a.deps.QualityStore)

	hub := ws.NewHub(a.deps.EventBus, a.logger)
	go func() {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("ws hub stopped", slog.String("error", err.Error()))
		}
	}()

	srv := server.NewServer(server.Config{
		Host:        host,
		Port:        port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(version),
		Status:  handler.NewStatusHandler(statusSvc, a.logger),
		Metrics: handler.NewMetricsHandler(metricsSvc, a.logger),
	}, hub, a.logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: dashboard shutdown: %w", err)
	}
	return nil
}
