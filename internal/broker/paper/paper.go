// Package paper simulates a brokerage account for DRY_RUN mode. Quotes are real; orders are not.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/types"
)

// PriceSource supplies the live quotes simulated orders fill against.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol, exchange string) (float64, error)
}

type order struct {
	intent types.OrderIntent
	filled int
	open   int
	status string
}

type Broker struct {
	quotes PriceSource
	now    func() time.Time

	mu       sync.Mutex
	cash     decimal.Decimal
	holdings map[string]int
	orders   map[string]*order
	seq      int
}

var _ interfaces.Broker = (*Broker)(nil)

func New(quotes PriceSource, startingCash float64) *Broker {
	return &Broker{
		quotes:   quotes,
		now:      time.Now,
		cash:     decimal.NewFromFloat(startingCash),
		holdings: make(map[string]int),
		orders:   make(map[string]*order),
	}
}

func (b *Broker) CurrentPrice(ctx context.Context, symbol, exchange string) (float64, error) {
	return b.quotes.CurrentPrice(ctx, symbol, exchange)
}

func (b *Broker) CashBalance(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cash, _ := b.cash.Float64()
	return cash, nil
}

// Holding returns the simulated share count for symbol.
func (b *Broker) Holding(symbol string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.holdings[symbol]
}

// PlaceOrder fills immediately and completely at the limit price when the account can cover it.
func (b *Broker) PlaceOrder(ctx context.Context, intent types.OrderIntent, exchange string) (types.OrderOutcome, error) {
	if intent.Quantity < 1 || intent.LimitPrice <= 0 {
		return types.OrderOutcome{}, fmt.Errorf("paper order %+v: %w", intent, types.ErrInvalidConfiguration)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	notional := decimal.NewFromFloat(intent.LimitPrice).Mul(decimal.NewFromInt(int64(intent.Quantity)))
	switch intent.Side {
	case types.SideBuy:
		if notional.GreaterThan(b.cash) {
			return types.OrderOutcome{Accepted: false, Message: "insufficient simulated cash"}, nil
		}
		b.cash = b.cash.Sub(notional)
		b.holdings[intent.Symbol] += intent.Quantity
	case types.SideSell:
		if b.holdings[intent.Symbol] < intent.Quantity {
			return types.OrderOutcome{Accepted: false, Message: "insufficient simulated holdings"}, nil
		}
		b.cash = b.cash.Add(notional)
		b.holdings[intent.Symbol] -= intent.Quantity
	default:
		return types.OrderOutcome{}, fmt.Errorf("paper order side %q: %w", intent.Side, types.ErrInvalidConfiguration)
	}

	b.seq++
	id := fmt.Sprintf("SIM-%d-%d", b.now().Unix(), b.seq)
	b.orders[id] = &order{intent: intent, filled: intent.Quantity, status: "SIMULATED"}

	logger.Info(ctx, "Simulated order filled",
		"symbol", intent.Symbol,
		"side", intent.Side,
		"qty", intent.Quantity,
		"price", intent.LimitPrice,
		"order_id", id,
		"cash", b.cash.StringFixed(2))

	return types.OrderOutcome{Accepted: true, OrderID: id, FilledQuantity: intent.Quantity, Message: "dry-run"}, nil
}

func (b *Broker) OrderFills(ctx context.Context, orderID, symbol, exchange string) ([]types.Fill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return nil, nil
	}
	return []types.Fill{{FilledQty: o.filled, UnfilledQty: o.open, Status: o.status}}, nil
}

func (b *Broker) CancelOrder(ctx context.Context, symbol, orderID string, qty int, exchange string) (types.CancelOutcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok || o.open == 0 {
		return types.CancelOutcome{Accepted: false, Message: "nothing to cancel"}, nil
	}
	o.open = 0
	o.status = "CANCELLED"
	return types.CancelOutcome{Accepted: true, CancelOrderID: orderID + "-C"}, nil
}
