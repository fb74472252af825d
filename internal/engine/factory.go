package engine

import (
	"fmt"

	"stock-autotrader/internal/store"
)

// SettingsFromConfig translates the loaded configuration into loop settings.
func SettingsFromConfig(cfg *store.Config) (Settings, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Settings{}, err
	}
	closeMin, err := store.ParseClock(cfg.Market.Close)
	if err != nil {
		return Settings{}, fmt.Errorf("market.close: %w", err)
	}
	openMin, err := store.ParseClock(cfg.Market.Open)
	if err != nil {
		return Settings{}, fmt.Errorf("market.open: %w", err)
	}
	hours, err := NewMarketHours(closeMin, openMin, loc)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Symbol:            cfg.Symbol,
		Exchange:          cfg.Exchange,
		Interval:          cfg.Candles.Interval,
		Period:            cfg.Candles.Period,
		Grid:              cfg.Grid(),
		DefaultThresholds: cfg.DefaultThresholds(),
		Allocation:        cfg.Sizing.Allocation,
		MinCash:           cfg.Sizing.MinCash,
		PollInterval:      cfg.PollInterval(),
		RefreshInterval:   cfg.RefreshInterval(),
		ReportInterval:    cfg.ReportInterval(),
		Market:            hours,
		LiquidateOnClose:  cfg.Market.LiquidateOnClose,
	}, nil
}

// New builds the loop from configuration.
func New(cfg *store.Config, d Deps) (*Engine, error) {
	s, err := SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return newEngine(s, d)
}
