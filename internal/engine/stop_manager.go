package engine

import (
	"context"

	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/signal"
	"stock-autotrader/internal/types"
)

// stopManager owns the active exit thresholds and checks them against the live price.
type stopManager struct {
	thresholds types.ThresholdConfig
}

func newStopManager(defaults types.ThresholdConfig) *stopManager {
	return &stopManager{thresholds: defaults}
}

func (sm *stopManager) current() types.ThresholdConfig {
	return sm.thresholds
}

// replace swaps in a new configuration as a whole. Invalid ones are refused.
func (sm *stopManager) replace(cfg types.ThresholdConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	sm.thresholds = cfg
	return nil
}

func (sm *stopManager) targets(entry float64) (takeProfit, stopLoss float64) {
	return signal.TargetPrices(entry, sm.thresholds)
}

// check returns the exit decision for pos at price.
func (sm *stopManager) check(ctx context.Context, pos *types.Position, price float64) signal.SellDecision {
	if pos == nil || pos.Quantity <= 0 {
		return signal.SellNone
	}
	d := signal.ShouldSell(pos.EntryPrice, price, sm.thresholds.TakeProfitPct, sm.thresholds.StopLossPct)
	if d != signal.SellNone {
		logger.Warn(ctx, "Exit triggered",
			"symbol", pos.Symbol,
			"event", d.String(),
			"current_price", price,
			"entry_price", pos.EntryPrice,
			"position_qty", pos.Quantity,
			"take_profit_pct", sm.thresholds.TakeProfitPct,
			"stop_loss_pct", sm.thresholds.StopLossPct,
			"unrealized", (price-pos.EntryPrice)*float64(pos.Quantity),
		)
	}
	return d
}
