package engine

import (
	"time"

	"stock-autotrader/internal/types"
)

// Snapshot is an immutable view of the loop published after every iteration.
// Readers on other goroutines only ever see whole snapshots.
type Snapshot struct {
	Symbol          string                `json:"symbol"`
	State           string                `json:"state"`
	Price           float64               `json:"price"`
	MarketClosed    bool                  `json:"market_closed"`
	Thresholds      types.ThresholdConfig `json:"thresholds"`
	Position        *types.Position       `json:"position,omitempty"`
	TakeProfitPrice float64               `json:"take_profit_price,omitempty"`
	StopLossPrice   float64               `json:"stop_loss_price,omitempty"`
	MAMid           float64               `json:"ma_mid,omitempty"`
	Best            *types.BacktestResult `json:"best,omitempty"`
	LastRefresh     time.Time             `json:"last_refresh"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// Snapshot returns the most recently published view, or nil before the first iteration.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

func (e *Engine) publish(now time.Time, price float64, closed bool) {
	s := &Snapshot{
		Symbol:       e.settings.Symbol,
		State:        e.state.String(),
		Price:        price,
		MarketClosed: closed,
		Thresholds:   e.stops.current(),
		Position:     e.positions.get(),
		LastRefresh:  e.lastRefresh,
		UpdatedAt:    now,
	}
	if s.Position != nil {
		s.TakeProfitPrice, s.StopLossPrice = e.stops.targets(s.Position.EntryPrice)
	}
	if n := len(e.snaps); n > 0 && e.snaps[n-1].Valid {
		s.MAMid = e.snaps[n-1].MAMid
	}
	if e.best != nil {
		best := *e.best
		s.Best = &best
	}
	e.snapshot.Store(s)
}
