package engine

import (
	"context"
	"time"

	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/types"
)

// positionManager holds the single open position of the traded symbol.
// Quantities only ever come from broker-reported fills.
type positionManager struct {
	pos *types.Position
}

func newPositionManager() *positionManager {
	return &positionManager{}
}

// get returns a copy of the open position, or nil when flat.
func (pm *positionManager) get() *types.Position {
	if pm.pos == nil {
		return nil
	}
	p := *pm.pos
	return &p
}

func (pm *positionManager) has() bool {
	return pm.pos != nil
}

// open records a new position from a filled buy. A zero fill leaves the manager flat.
func (pm *positionManager) open(ctx context.Context, symbol string, filled int, price float64, at time.Time) bool {
	if filled < 1 || price <= 0 {
		return false
	}
	if pm.pos != nil {
		logger.Warn(ctx, "Replacing an existing position", "symbol", symbol, "old_qty", pm.pos.Quantity)
	}
	pm.pos = &types.Position{Symbol: symbol, EntryPrice: price, Quantity: filled, OpenedAt: at}
	return true
}

// reduce removes sold shares and returns what is left. The position is deleted at zero
// and the remaining quantity never goes negative.
func (pm *positionManager) reduce(ctx context.Context, sold int) int {
	if pm.pos == nil {
		logger.Warn(ctx, "Attempted to reduce with no position", "qty", sold)
		return 0
	}
	if sold <= 0 {
		return pm.pos.Quantity
	}
	remaining := pm.pos.Quantity - sold
	if remaining <= 0 {
		pm.pos = nil
		return 0
	}
	pm.pos.Quantity = remaining
	return remaining
}

// realized is the profit of selling qty shares at price against the entry.
func (pm *positionManager) realized(qty int, price float64) float64 {
	if pm.pos == nil {
		return 0
	}
	return (price - pm.pos.EntryPrice) * float64(qty)
}
