package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"stock-autotrader/internal/broker/brokerobs"
	"stock-autotrader/internal/broker/kis"
	"stock-autotrader/internal/broker/paper"
	"stock-autotrader/internal/engine"
	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/marketdata/yahoo"
	"stock-autotrader/internal/metrics"
	"stock-autotrader/internal/notify"
	"stock-autotrader/internal/store"
	"stock-autotrader/internal/trace"
)

// initializeSystem loads .env and sets up logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// initializeBroker returns the paper broker in DRY_RUN and KIS in LIVE, wrapped for observability.
func initializeBroker(ctx context.Context, cfg *store.Config, quotes *yahoo.Client, m *metrics.PrometheusMetrics) (interfaces.Broker, error) {
	if cfg.Mode == store.ModeDryRun {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated",
			"starting_cash", cfg.Broker.PaperCash,
		)
		return brokerobs.Wrap(paper.New(quotes, cfg.Broker.PaperCash), m), nil
	}

	brk, err := kis.New(kis.Params{
		BaseURL:       cfg.Broker.BaseURL,
		AppKey:        os.Getenv("KIS_APP_KEY"),
		AppSecret:     os.Getenv("KIS_APP_SECRET"),
		Account:       os.Getenv("KIS_ACCOUNT"),
		ProductCode:   os.Getenv("KIS_PRODUCT_CODE"),
		Paper:         cfg.Broker.Paper,
		RatePerSecond: cfg.Broker.RatePerSecond,
		TokenCache:    cfg.Broker.TokenCache,
	})
	if err != nil {
		return nil, err
	}
	if _, err := brk.Session().Token(ctx, false); err != nil {
		return nil, fmt.Errorf("kis token: %w", err)
	}
	logger.Info(ctx, "KIS session ready",
		"paper", cfg.Broker.Paper,
		"issued_at", brk.Session().IssuedAt(),
	)
	return brokerobs.Wrap(brk, m), nil
}

func initializeNotifier(ctx context.Context, cfg *store.Config) interfaces.Notifier {
	url := os.Getenv("DISCORD_WEBHOOK_URL")
	if cfg.Notify.Discord && url == "" {
		logger.Warn(ctx, "Discord notifications enabled but DISCORD_WEBHOOK_URL is empty")
	}
	return notify.New(cfg.Notify.Discord, url)
}

func initializeEngine(cfg *store.Config, deps engine.Deps) (*engine.Engine, error) {
	return engine.New(cfg, deps)
}
