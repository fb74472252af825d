package brokerobs

import (
	"context"
	"errors"
	"testing"

	"stock-autotrader/internal/types"
)

type stubBroker struct {
	outcome types.OrderOutcome
	err     error
	placed  int
}

func (s *stubBroker) CashBalance(ctx context.Context) (float64, error) { return 42, s.err }
func (s *stubBroker) CurrentPrice(ctx context.Context, symbol, exchange string) (float64, error) {
	return 10, s.err
}
func (s *stubBroker) PlaceOrder(ctx context.Context, intent types.OrderIntent, exchange string) (types.OrderOutcome, error) {
	s.placed++
	return s.outcome, s.err
}
func (s *stubBroker) OrderFills(ctx context.Context, orderID, symbol, exchange string) ([]types.Fill, error) {
	return []types.Fill{{FilledQty: 1}}, s.err
}
func (s *stubBroker) CancelOrder(ctx context.Context, symbol, orderID string, qty int, exchange string) (types.CancelOutcome, error) {
	return types.CancelOutcome{Accepted: true}, s.err
}

func TestWrapPassesThrough(t *testing.T) {
	inner := &stubBroker{outcome: types.OrderOutcome{Accepted: true, OrderID: "1"}}
	b := Wrap(inner, nil)
	ctx := context.Background()

	if cash, err := b.CashBalance(ctx); err != nil || cash != 42 {
		t.Errorf("Expected 42, got %v (err %v)", cash, err)
	}
	out, err := b.PlaceOrder(ctx, types.OrderIntent{Side: types.SideBuy, Symbol: "SES", Quantity: 1, LimitPrice: 1}, "NYS")
	if err != nil || out.OrderID != "1" || inner.placed != 1 {
		t.Errorf("Unexpected outcome %+v (err %v)", out, err)
	}
	if fills, _ := b.OrderFills(ctx, "1", "SES", "NYS"); len(fills) != 1 {
		t.Errorf("Expected one fill, got %+v", fills)
	}
}

func TestWrapPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	b := Wrap(&stubBroker{err: boom}, nil)
	ctx := context.Background()

	if _, err := b.CurrentPrice(ctx, "SES", "NYS"); !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
	if _, err := b.PlaceOrder(ctx, types.OrderIntent{Side: types.SideSell, Symbol: "SES", Quantity: 1}, "NYS"); !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
	if _, err := b.CancelOrder(ctx, "SES", "1", 1, "NYS"); !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
}
