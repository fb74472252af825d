package interfaces

import (
	"context"

	"stock-autotrader/internal/types"
)

// Broker is the brokerage account the loop trades through.
// Broker declines come back as OrderOutcome{Accepted: false}; errors mean the call itself failed.
type Broker interface {
	CashBalance(ctx context.Context) (float64, error)
	CurrentPrice(ctx context.Context, symbol, exchange string) (float64, error)
	PlaceOrder(ctx context.Context, intent types.OrderIntent, exchange string) (types.OrderOutcome, error)
	OrderFills(ctx context.Context, orderID, symbol, exchange string) ([]types.Fill, error)
	CancelOrder(ctx context.Context, symbol, orderID string, qty int, exchange string) (types.CancelOutcome, error)
}
