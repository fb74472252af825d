package engine

import (
	"context"
	"math"

	"stock-autotrader/internal/logger"
)

// Quantity is the whole number of shares cash*allocation buys at price.
func Quantity(cash, price, allocation float64) int {
	if price <= 0 || cash <= 0 || allocation <= 0 {
		return 0
	}
	return int(math.Floor(cash * allocation / price))
}

// riskManager sizes entries from the available cash.
type riskManager struct {
	allocation float64
	minCash    float64
}

func newRiskManager(allocation, minCash float64) *riskManager {
	return &riskManager{allocation: allocation, minCash: minCash}
}

// size returns the buy quantity, or 0 with the reason the entry was skipped.
func (rm *riskManager) size(ctx context.Context, symbol string, cash, price float64) (int, string) {
	if cash < rm.minCash {
		logger.Info(ctx, "Entry skipped: cash below minimum",
			"symbol", symbol,
			"event", "ENTRY_SKIPPED_MIN_CASH",
			"cash", cash,
			"min_cash", rm.minCash,
		)
		return 0, "cash below minimum"
	}

	qty := Quantity(cash, price, rm.allocation)
	if qty < 1 {
		logger.Info(ctx, "Entry skipped: cash buys less than one share",
			"symbol", symbol,
			"event", "ENTRY_SKIPPED_SIZE",
			"cash", cash,
			"price", price,
			"allocation", rm.allocation,
		)
		return 0, "cash buys less than one share"
	}
	return qty, ""
}
