package brokerobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/metrics"
	"stock-autotrader/internal/trace"
	"stock-autotrader/internal/types"
)

// observableBroker wraps a Broker with observability (logging, tracing, metrics)
type observableBroker struct {
	broker  interfaces.Broker
	metrics *metrics.PrometheusMetrics
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker, m *metrics.PrometheusMetrics) interfaces.Broker {
	if m == nil {
		m = metrics.NewPrometheusMetrics()
	}
	return &observableBroker{broker: broker, metrics: m}
}

func (ob *observableBroker) CashBalance(ctx context.Context) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.CashBalance")
	defer span.End()

	start := time.Now()
	cash, err := ob.broker.CashBalance(ctx)
	ob.metrics.RecordBrokerCall("CashBalance", err, time.Since(start))
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch cash balance", err)
		return 0, err
	}

	logger.DebugSkip(ctx, 1, "Cash balance fetched", "cash", cash)
	return cash, nil
}

func (ob *observableBroker) CurrentPrice(ctx context.Context, symbol, exchange string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.CurrentPrice")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("exchange", exchange))

	start := time.Now()
	price, err := ob.broker.CurrentPrice(ctx, symbol, exchange)
	ob.metrics.RecordBrokerCall("CurrentPrice", err, time.Since(start))
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch price", err, "symbol", symbol, "exchange", exchange)
		return 0, err
	}

	logger.DebugSkip(ctx, 1, "Price fetched", "symbol", symbol, "price", price)
	return price, nil
}

func (ob *observableBroker) PlaceOrder(ctx context.Context, intent types.OrderIntent, exchange string) (types.OrderOutcome, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", intent.Symbol),
		attribute.String("side", string(intent.Side)),
		attribute.Int("qty", intent.Quantity),
	)

	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", intent.Symbol,
		"side", intent.Side,
		"qty", intent.Quantity,
		"limit", intent.LimitPrice,
	)

	start := time.Now()
	out, err := ob.broker.PlaceOrder(ctx, intent, exchange)
	ob.metrics.RecordBrokerCall("PlaceOrder", err, time.Since(start))
	if err != nil {
		ob.metrics.RecordOrder(intent.Symbol, string(intent.Side), "error")
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", intent.Symbol,
			"side", intent.Side,
			"qty", intent.Quantity,
		)
		return types.OrderOutcome{}, err
	}

	if !out.Accepted {
		ob.metrics.RecordOrder(intent.Symbol, string(intent.Side), "declined")
		logger.WarnSkip(ctx, 1, "Order declined by broker", "symbol", intent.Symbol, "side", intent.Side, "message", out.Message)
		return out, nil
	}

	ob.metrics.RecordOrder(intent.Symbol, string(intent.Side), "accepted")
	logger.InfoSkip(ctx, 1, "Order accepted",
		"symbol", intent.Symbol,
		"order_id", out.OrderID,
		"message", out.Message,
	)
	return out, nil
}

func (ob *observableBroker) OrderFills(ctx context.Context, orderID, symbol, exchange string) ([]types.Fill, error) {
	ctx, span := trace.StartSpan(ctx, "broker.OrderFills")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", orderID))

	start := time.Now()
	fills, err := ob.broker.OrderFills(ctx, orderID, symbol, exchange)
	ob.metrics.RecordBrokerCall("OrderFills", err, time.Since(start))
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch fills", err, "order_id", orderID)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Fills fetched", "order_id", orderID, "rows", len(fills))
	return fills, nil
}

func (ob *observableBroker) CancelOrder(ctx context.Context, symbol, orderID string, qty int, exchange string) (types.CancelOutcome, error) {
	ctx, span := trace.StartSpan(ctx, "broker.CancelOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", orderID), attribute.Int("qty", qty))

	logger.InfoSkip(ctx, 1, "Cancelling order", "symbol", symbol, "order_id", orderID, "qty", qty)

	start := time.Now()
	out, err := ob.broker.CancelOrder(ctx, symbol, orderID, qty, exchange)
	ob.metrics.RecordBrokerCall("CancelOrder", err, time.Since(start))
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to cancel order", err, "symbol", symbol, "order_id", orderID)
		return types.CancelOutcome{}, err
	}
	if !out.Accepted {
		logger.WarnSkip(ctx, 1, "Cancel declined", "order_id", orderID, "message", out.Message)
		return out, nil
	}

	logger.InfoSkip(ctx, 1, "Order cancelled", "order_id", orderID, "cancel_id", out.CancelOrderID)
	return out, nil
}
