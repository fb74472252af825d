package engine

import (
	"context"
	"fmt"

	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/metrics"
	"stock-autotrader/internal/types"
)

// execution is the reconciled result of one submitted order.
type execution struct {
	outcome   types.OrderOutcome
	filled    int
	unfilled  int
	cancelled bool
	cancelErr error
}

// orderExecutor places orders and reconciles them against the broker's fill records.
type orderExecutor struct {
	broker   interfaces.Broker
	exchange string
	metrics  *metrics.PrometheusMetrics
}

func newOrderExecutor(broker interfaces.Broker, exchange string, m *metrics.PrometheusMetrics) *orderExecutor {
	return &orderExecutor{broker: broker, exchange: exchange, metrics: m}
}

// execute submits intent and, when accepted, settles the filled quantity and cancels
// any residual. A declined order is returned with a nil error and Accepted=false.
func (oe *orderExecutor) execute(ctx context.Context, intent types.OrderIntent) (execution, error) {
	outcome, err := oe.broker.PlaceOrder(ctx, intent, oe.exchange)
	if err != nil {
		return execution{}, fmt.Errorf("place %s order for %s: %w", intent.Side, intent.Symbol, err)
	}
	exec := execution{outcome: outcome}
	if !outcome.Accepted {
		logger.Warn(ctx, "Order declined",
			"symbol", intent.Symbol,
			"side", string(intent.Side),
			"qty", intent.Quantity,
			"message", outcome.Message,
		)
		return exec, nil
	}

	exec.filled, exec.unfilled = oe.settle(ctx, intent, outcome)
	if exec.filled > 0 {
		logger.Trade(ctx, intent.Symbol, string(intent.Side), exec.filled, intent.LimitPrice, outcome.OrderID,
			"requested", intent.Quantity,
			"unfilled", exec.unfilled,
		)
		if oe.metrics != nil {
			oe.metrics.RecordFill(intent.Symbol, string(intent.Side), exec.filled)
		}
	}

	if exec.unfilled > 0 {
		exec.cancelled, exec.cancelErr = oe.cancel(ctx, intent.Symbol, outcome.OrderID, exec.unfilled)
	}
	return exec, nil
}

// settle works out filled and unfilled quantities. Fill rows come newest first; the
// first row carries the current residual. Without rows the placement outcome is used.
func (oe *orderExecutor) settle(ctx context.Context, intent types.OrderIntent, outcome types.OrderOutcome) (filled, unfilled int) {
	fills, err := oe.broker.OrderFills(ctx, outcome.OrderID, intent.Symbol, oe.exchange)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch order fills", err,
			"symbol", intent.Symbol,
			"order_id", outcome.OrderID,
		)
	}
	if err != nil || len(fills) == 0 {
		filled = clamp(outcome.FilledQuantity, 0, intent.Quantity)
		return filled, intent.Quantity - filled
	}

	for _, f := range fills {
		filled += f.FilledQty
	}
	filled = clamp(filled, 0, intent.Quantity)
	unfilled = clamp(fills[0].UnfilledQty, 0, intent.Quantity-filled)
	logger.Debug(ctx, "Order fills reconciled",
		"symbol", intent.Symbol,
		"order_id", outcome.OrderID,
		"rows", len(fills),
		"filled", filled,
		"unfilled", unfilled,
		"status", fills[0].Status,
	)
	return filled, unfilled
}

func (oe *orderExecutor) cancel(ctx context.Context, symbol, orderID string, qty int) (bool, error) {
	res, err := oe.broker.CancelOrder(ctx, symbol, orderID, qty, oe.exchange)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to cancel residual", err,
			"symbol", symbol,
			"order_id", orderID,
			"qty", qty,
		)
		return false, err
	}
	if !res.Accepted {
		err := fmt.Errorf("cancel %s declined: %s: %w", orderID, res.Message, types.ErrOrderRejected)
		logger.Warn(ctx, "Residual cancel declined", "symbol", symbol, "order_id", orderID, "qty", qty, "message", res.Message)
		return false, err
	}
	logger.Info(ctx, "Residual cancelled",
		"symbol", symbol,
		"order_id", orderID,
		"cancel_order_id", res.CancelOrderID,
		"qty", qty,
	)
	return true, nil
}
