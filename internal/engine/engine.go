package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/metrics"
	"stock-autotrader/internal/optimizer"
	"stock-autotrader/internal/signal"
	"stock-autotrader/internal/ta"
	"stock-autotrader/internal/types"
)

// Settings are the fixed parameters of one trading loop.
type Settings struct {
	Symbol            string
	Exchange          string
	Interval          string
	Period            string
	Grid              optimizer.Grid
	DefaultThresholds types.ThresholdConfig
	Allocation        float64
	MinCash           float64
	PollInterval      time.Duration
	RefreshInterval   time.Duration
	ReportInterval    time.Duration
	Market            MarketHours
	LiquidateOnClose  bool
}

func (s Settings) validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("symbol is required: %w", types.ErrInvalidConfiguration)
	}
	if s.Allocation <= 0 || s.Allocation > 1 {
		return fmt.Errorf("allocation must be in (0, 1], got %.4f: %w", s.Allocation, types.ErrInvalidConfiguration)
	}
	if s.PollInterval <= 0 || s.RefreshInterval <= 0 {
		return fmt.Errorf("poll and refresh intervals must be > 0: %w", types.ErrInvalidConfiguration)
	}
	if s.Market.Loc == nil {
		return fmt.Errorf("market hours are required: %w", types.ErrInvalidConfiguration)
	}
	if err := s.DefaultThresholds.Validate(); err != nil {
		return fmt.Errorf("default thresholds: %w", err)
	}
	return s.Grid.Validate()
}

// Deps are the collaborators the loop talks to.
type Deps struct {
	Broker   interfaces.Broker
	Candles  interfaces.CandleSource
	Notifier interfaces.Notifier
	Metrics  *metrics.PrometheusMetrics
	Clock    Clock
}

// Engine is the single-symbol reconciliation loop. It is driven by one goroutine;
// only Snapshot may be called concurrently.
type Engine struct {
	settings Settings
	broker   interfaces.Broker
	candles  interfaces.CandleSource
	notifier interfaces.Notifier
	metrics  *metrics.PrometheusMetrics
	clock    Clock

	state     State
	positions *positionManager
	stops     *stopManager
	risk      *riskManager
	orders    *orderExecutor

	snaps       []types.IndicatorSnapshot
	best        *types.BacktestResult
	lastRefresh time.Time
	lastReport  time.Time

	snapshot atomic.Pointer[Snapshot]
}

var _ interfaces.Engine = (*Engine)(nil)

func newEngine(s Settings, d Deps) (*Engine, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if d.Broker == nil || d.Candles == nil {
		return nil, fmt.Errorf("broker and candle source are required: %w", types.ErrInvalidConfiguration)
	}
	if d.Notifier == nil {
		d.Notifier = noopNotifier{}
	}
	if d.Clock == nil {
		d.Clock = SystemClock()
	}
	e := &Engine{
		settings:  s,
		broker:    d.Broker,
		candles:   d.Candles,
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		clock:     d.Clock,
		state:     WatchingBuy,
		positions: newPositionManager(),
		stops:     newStopManager(s.DefaultThresholds),
		risk:      newRiskManager(s.Allocation, s.MinCash),
		orders:    newOrderExecutor(d.Broker, s.Exchange, d.Metrics),
	}
	e.metrics.SetState(s.Symbol, e.state.String(), stateLabels())
	return e, nil
}

func (e *Engine) State() State {
	return e.state
}

// Position returns a copy of the open position, or nil.
func (e *Engine) Position() *types.Position {
	return e.positions.get()
}

func (e *Engine) Thresholds() types.ThresholdConfig {
	return e.stops.current()
}

// Step runs one iteration of the loop.
func (e *Engine) Step(ctx context.Context) types.IterationResult {
	now := e.clock.Now()
	if e.settings.Market.Closed(now) {
		return e.marketClosed(ctx, now)
	}

	if e.refreshDue(now) {
		if err := e.refresh(ctx, now); err != nil {
			if errors.Is(err, types.ErrInvalidConfiguration) {
				return types.Stop("optimizer configuration rejected", err)
			}
			return types.Backoff(err)
		}
	}

	price, err := e.price(ctx)
	if err != nil {
		return types.Backoff(err)
	}

	var res types.IterationResult
	if e.positions.has() {
		res = e.sellPath(ctx, now, price)
	} else {
		res = e.buyPath(ctx, now, price)
	}
	e.publish(now, price, false)
	return res
}

func (e *Engine) refreshDue(now time.Time) bool {
	return e.lastRefresh.IsZero() || now.Sub(e.lastRefresh) >= e.settings.RefreshInterval
}

// refresh pulls fresh candles, recomputes indicators and replaces the thresholds with
// the best backtested configuration.
func (e *Engine) refresh(ctx context.Context, now time.Time) error {
	sym := e.settings.Symbol
	candles, err := e.candles.Candles(ctx, sym, e.settings.Interval, e.settings.Period)
	if err != nil {
		return fmt.Errorf("fetch candles for %s: %w", sym, err)
	}

	start := time.Now()
	report, err := optimizer.Optimize(candles, e.settings.Grid)
	e.metrics.RecordOptimization(sym, err, report.Best.EndingBalance, time.Since(start))
	if err != nil {
		return fmt.Errorf("optimize %s: %w", sym, err)
	}

	th := report.Best.Thresholds()
	if err := e.stops.replace(th); err != nil {
		return fmt.Errorf("optimizer produced unusable thresholds: %w", err)
	}
	best := report.Best
	e.best = &best
	e.snaps = ta.Snapshots(candles, e.settings.Grid.Windows)
	e.lastRefresh = now
	e.metrics.SetThresholds(sym, th.TakeProfitPct, th.StopLossPct)

	logger.Info(ctx, "Thresholds refreshed",
		"symbol", sym,
		"candles", len(candles),
		"combinations", len(report.Results),
		"mode", th.Mode.String(),
		"take_profit_pct", th.TakeProfitPct,
		"stop_loss_pct", th.StopLossPct,
		"ending_balance", best.EndingBalance,
		"win_rate", best.WinRate,
		"trades", best.TradeCount,
	)
	return nil
}

func (e *Engine) price(ctx context.Context) (float64, error) {
	p, err := e.broker.CurrentPrice(ctx, e.settings.Symbol, e.settings.Exchange)
	if err != nil {
		return 0, fmt.Errorf("current price for %s: %w", e.settings.Symbol, err)
	}
	if p <= 0 {
		return 0, fmt.Errorf("current price for %s is %.4f: %w", e.settings.Symbol, p, types.ErrTransient)
	}
	e.metrics.SetLastPrice(e.settings.Symbol, p)
	return p, nil
}

func (e *Engine) reportDue(now time.Time) bool {
	if e.settings.ReportInterval <= 0 {
		return false
	}
	if !e.lastReport.IsZero() && now.Sub(e.lastReport) < e.settings.ReportInterval {
		return false
	}
	e.lastReport = now
	return true
}

func (e *Engine) sellPath(ctx context.Context, now time.Time, price float64) types.IterationResult {
	pos := e.positions.get()
	decision := e.stops.check(ctx, pos, price)

	if e.reportDue(now) {
		tp, sl := e.stops.targets(pos.EntryPrice)
		e.notify(ctx, fmt.Sprintf("%s holding %d | take profit %.3f / stop loss %.3f | price %.3f",
			pos.Symbol, pos.Quantity, tp, sl, price))
	}
	if decision == signal.SellNone {
		return types.Continue(e.settings.PollInterval)
	}

	if _, err := e.sell(ctx, pos, price, decision.String()); err != nil {
		return types.Backoff(err)
	}
	return types.Continue(e.settings.PollInterval)
}

// sell submits a full-quantity sell for pos and applies the reconciled fills.
func (e *Engine) sell(ctx context.Context, pos *types.Position, price float64, reason string) (execution, error) {
	e.setState(ctx, OrderPendingSell, reason,
		fmt.Sprintf("%s %s: selling %d @ %.3f", pos.Symbol, reason, pos.Quantity, price))

	exec, err := e.orders.execute(ctx, types.OrderIntent{
		Side:       types.SideSell,
		Symbol:     pos.Symbol,
		Quantity:   pos.Quantity,
		LimitPrice: price,
	})
	if err != nil {
		e.setState(ctx, PositionOpen, "sell failed",
			fmt.Sprintf("%s sell failed, position kept: %v", pos.Symbol, err))
		return exec, err
	}
	if !exec.outcome.Accepted {
		e.setState(ctx, PositionOpen, "sell declined",
			fmt.Sprintf("%s sell declined, position kept: %s", pos.Symbol, exec.outcome.Message))
		return exec, nil
	}

	pnl := e.positions.realized(exec.filled, price)
	remaining := e.positions.reduce(ctx, exec.filled)
	e.syncPosition()
	e.reportResidual(ctx, pos.Symbol, exec)

	if remaining == 0 {
		e.setState(ctx, WatchingBuy, reason,
			fmt.Sprintf("%s sold %d @ %.3f (%s), realized %.2f", pos.Symbol, exec.filled, price, reason, pnl))
		return exec, nil
	}
	e.setState(ctx, PositionOpen, "partial sell",
		fmt.Sprintf("%s sold %d of %d @ %.3f, %d remaining", pos.Symbol, exec.filled, pos.Quantity, price, remaining))
	return exec, nil
}

func (e *Engine) buyPath(ctx context.Context, now time.Time, price float64) types.IterationResult {
	sym := e.settings.Symbol
	th := e.stops.current()

	if e.reportDue(now) {
		e.notify(ctx, fmt.Sprintf("%s watching for entry | mode %s | MA20 %.3f | price %.3f",
			sym, th.Mode, e.lastMAMid(), price))
	}

	ok, err := signal.ShouldBuy(e.snaps, price, th.Mode, e.settings.Grid.Params)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrIndicatorUnavailable):
			logger.Debug(ctx, "Buy signal unavailable", "symbol", sym, "error", err.Error())
			return types.Continue(e.settings.PollInterval)
		case errors.Is(err, types.ErrInvalidConfiguration):
			return types.Stop("buy signal configuration rejected", err)
		}
		return types.Backoff(err)
	}
	if !ok {
		return types.Continue(e.settings.PollInterval)
	}

	cash, err := e.broker.CashBalance(ctx)
	if err != nil {
		return types.Backoff(fmt.Errorf("cash balance: %w", err))
	}
	qty, _ := e.risk.size(ctx, sym, cash, price)
	if qty < 1 {
		return types.Continue(e.settings.PollInterval)
	}

	e.setState(ctx, OrderPendingBuy, th.Mode.String(),
		fmt.Sprintf("%s buy signal (%s): buying %d @ %.3f", sym, th.Mode, qty, price))

	exec, err := e.orders.execute(ctx, types.OrderIntent{
		Side:       types.SideBuy,
		Symbol:     sym,
		Quantity:   qty,
		LimitPrice: price,
	})
	if err != nil {
		e.setState(ctx, WatchingBuy, "buy failed", fmt.Sprintf("%s buy failed: %v", sym, err))
		return types.Backoff(err)
	}
	if !exec.outcome.Accepted {
		e.setState(ctx, WatchingBuy, "buy declined",
			fmt.Sprintf("%s buy declined, no position: %s", sym, exec.outcome.Message))
		return types.Continue(e.settings.PollInterval)
	}

	e.reportResidual(ctx, sym, exec)
	if !e.positions.open(ctx, sym, exec.filled, price, now) {
		e.setState(ctx, WatchingBuy, "nothing filled",
			fmt.Sprintf("%s order %s filled nothing, no position", sym, exec.outcome.OrderID))
		return types.Continue(e.settings.PollInterval)
	}
	e.syncPosition()

	tp, sl := e.stops.targets(price)
	e.setState(ctx, PositionOpen, "bought",
		fmt.Sprintf("%s bought %d @ %.3f (order %s, unfilled %d) | take profit %.3f / stop loss %.3f",
			sym, exec.filled, price, exec.outcome.OrderID, exec.unfilled, tp, sl))
	return types.Continue(e.settings.PollInterval)
}

// marketClosed optionally liquidates the open position and stops the loop.
func (e *Engine) marketClosed(ctx context.Context, now time.Time) types.IterationResult {
	reason := fmt.Sprintf("market closed (%s)", e.settings.Market)
	pos := e.positions.get()
	if pos == nil || !e.settings.LiquidateOnClose {
		if pos != nil {
			logger.Warn(ctx, "Market closed with an open position",
				"symbol", pos.Symbol,
				"qty", pos.Quantity,
				"entry_price", pos.EntryPrice,
			)
		}
		e.publish(now, 0, true)
		return types.Stop(reason, nil)
	}

	price, err := e.price(ctx)
	if err != nil {
		return types.Backoff(err)
	}
	if _, err := e.sell(ctx, pos, price, "market_close"); err != nil {
		return types.Backoff(err)
	}
	e.publish(now, price, true)
	if left := e.positions.get(); left != nil {
		return types.Stop(fmt.Sprintf("%s, %d shares of %s still held", reason, left.Quantity, left.Symbol), nil)
	}
	return types.Stop(reason+", position liquidated", nil)
}

func (e *Engine) reportResidual(ctx context.Context, symbol string, exec execution) {
	if exec.unfilled == 0 || exec.cancelled {
		return
	}
	msg := fmt.Sprintf("%s cancel of %d unfilled on order %s failed", symbol, exec.unfilled, exec.outcome.OrderID)
	if exec.cancelErr != nil {
		msg += ": " + exec.cancelErr.Error()
	}
	e.notify(ctx, msg)
}

func (e *Engine) setState(ctx context.Context, to State, reason, message string) {
	from := e.state
	e.state = to
	if from != to {
		logger.Transition(ctx, e.settings.Symbol, from.String(), to.String(), reason)
		e.metrics.SetState(e.settings.Symbol, to.String(), stateLabels())
	}
	if message != "" {
		e.notify(ctx, message)
	}
}

func (e *Engine) syncPosition() {
	if p := e.positions.get(); p != nil {
		e.metrics.SetPosition(p.Symbol, p.Quantity, p.EntryPrice)
		return
	}
	e.metrics.SetPosition(e.settings.Symbol, 0, 0)
}

func (e *Engine) notify(ctx context.Context, msg string) {
	e.notifier.Notify(ctx, msg)
}
