package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stock-autotrader/internal/engine"
	"stock-autotrader/internal/engine/engineobs"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/marketdata/yahoo"
	"stock-autotrader/internal/metrics"
	"stock-autotrader/internal/status"
	"stock-autotrader/internal/trace"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() { _ = trace.Shutdown(context.Background()) }()

	if err := run(ctx, *configPath); err != nil {
		logger.ErrorWithErr(ctx, "Trader exited with error", err)
		stop()
		os.Exit(1)
	}
	logger.Info(ctx, "Trader stopped")
}

func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}

	m := metrics.NewPrometheusMetrics()
	quotes := yahoo.New("")
	brk, err := initializeBroker(ctx, cfg, quotes, m)
	if err != nil {
		return err
	}
	notifier := initializeNotifier(ctx, cfg)

	eng, err := initializeEngine(cfg, engine.Deps{
		Broker:   brk,
		Candles:  quotes,
		Notifier: notifier,
		Metrics:  m,
	})
	if err != nil {
		return err
	}

	if cfg.Status.Enabled {
		status.NewServer(cfg.Status.Addr, cfg.Mode, eng).Start(ctx)
	}

	logger.Info(ctx, "Trader started",
		"mode", cfg.Mode,
		"symbol", cfg.Symbol,
		"exchange", cfg.Exchange,
		"strategy", cfg.Strategy.Mode,
		"poll", cfg.PollInterval().String(),
		"refresh", cfg.RefreshInterval().String(),
	)
	notifier.Notify(ctx, fmt.Sprintf("%s auto-trader started (%s)", cfg.Symbol, cfg.Mode))

	observed := engineobs.Wrap(eng, cfg.Symbol, m)
	return engine.NewScheduler(observed, notifier, engine.SystemSleeper(), cfg.ErrorBackoff()).Run(ctx)
}
