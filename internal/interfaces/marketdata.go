package interfaces

import (
	"context"

	"stock-autotrader/internal/types"
)

// CandleSource returns historical candles, oldest first.
type CandleSource interface {
	Candles(ctx context.Context, symbol, interval, period string) ([]types.Candle, error)
}
