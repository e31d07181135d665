// Command affiliate-etl is the entry point for the affiliate data platform.
// It has two modes: `etl` runs one pipeline pass for a layer and exits, and
// `dashboard` serves the read-only status API until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cryptoaffil/dataplatform/internal/app"
	"github.com/cryptoaffil/dataplatform/internal/config"
	"github.com/cryptoaffil/dataplatform/internal/etl"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "etl":
		os.Exit(runETL(os.Args[2:]))
	case "dashboard":
		os.Exit(runDashboard(os.Args[2:]))
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: affiliate-etl <command> [flags]

Commands:
  etl        run one pipeline pass for a layer and exit
  dashboard  serve the status and metrics API

Run "affiliate-etl <command> -h" for command flags.
`)
}

func runETL(args []string) int {
	fs := flag.NewFlagSet("etl", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	layerFlag := fs.String("layer", "all", "pipeline layer: bitget, bronze, silver, gold, or all")
	days := fs.Int("days", 0, "trailing extraction window in days (0 = config default)")
	_ = fs.Parse(args)

	cfg, logger, ok := setup(*configPath)
	if !ok {
		return 1
	}

	layer, err := etl.ParseLayer(*layerFlag)
	if err != nil {
		logger.Error("invalid layer", slog.String("error", err.Error()))
		return 2
	}
	window := *days
	if window <= 0 {
		window = cfg.ETL.Days
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := app.Wire(ctx, cfg, logger)
	if err != nil {
		logger.Error("wiring failed", slog.String("error", err.Error()))
		return 1
	}
	defer cleanup()

	logger.Info("pipeline run starting",
		slog.String("layer", string(layer)),
		slog.Int("days", window),
	)

	summary, err := app.New(cfg, deps, logger).RunETL(ctx, layer, window)
	if err != nil {
		logger.Error("pipeline run aborted", slog.String("error", err.Error()))
		return 1
	}

	for _, res := range summary.Results {
		attrs := []any{
			slog.String("table", res.Table),
			slog.String("status", string(res.Outcome.Status)),
		}
		if res.Skipped {
			attrs = append(attrs, slog.Bool("skipped", true))
		}
		if res.Err != "" {
			attrs = append(attrs, slog.String("error", res.Err))
		}
		logger.Info("table result", attrs...)
	}

	if summary.Failed() {
		logger.Error("pipeline run finished with failures")
		return 1
	}
	logger.Info("pipeline run finished")
	return 0
}

func runDashboard(args []string) int {
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	host := fs.String("host", "", "bind address (overrides config)")
	port := fs.Int("port", 0, "listen port (overrides config)")
	_ = fs.Parse(args)

	cfg, logger, ok := setup(*configPath)
	if !ok {
		return 1
	}

	bindHost := cfg.Server.Host
	if *host != "" {
		bindHost = *host
	}
	bindPort := cfg.Server.Port
	if *port != 0 {
		bindPort = *port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := app.Wire(ctx, cfg, logger)
	if err != nil {
		logger.Error("wiring failed", slog.String("error", err.Error()))
		return 1
	}
	defer cleanup()

	logger.Info("dashboard starting",
		slog.String("host", bindHost),
		slog.Int("port", bindPort),
	)

	if err := app.New(cfg, deps, logger).RunDashboard(ctx, bindHost, bindPort); err != nil {
		logger.Error("dashboard exited with error", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("dashboard stopped")
	return 0
}

// setup loads and validates configuration and builds the structured logger.
func setup(configPath string) (*config.Config, *slog.Logger, bool) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", configPath),
			slog.String("error", err.Error()),
		)
		return nil, nil, false
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, nil, false
	}
	return cfg, logger, true
}
