// Package optimizer brute-forces exit thresholds by replaying recent candles.
//
// Entries fill at the low of the signal candle and exits only look at the candle high/low,
// not the intrabar path. Everything here is deterministic and free of I/O.
package optimizer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"stock-autotrader/internal/signal"
	"stock-autotrader/internal/ta"
	"stock-autotrader/internal/types"
)

// DefaultInitialBalance is the starting capital of every simulation.
const DefaultInitialBalance = 10000.0

// rangeEpsilon keeps float noise in (stop-start)/step from adding a value at Stop.
const rangeEpsilon = 1e-9

// Range is a half-open start/stop/step sequence; Stop is never included.
type Range struct {
	Start float64 `yaml:"start"`
	Stop  float64 `yaml:"stop"`
	Step  float64 `yaml:"step"`
}

func (r Range) Validate() error {
	if r.Step <= 0 || math.IsNaN(r.Step) {
		return fmt.Errorf("range step must be > 0, got %v: %w", r.Step, types.ErrInvalidConfiguration)
	}
	if !(r.Stop > r.Start) {
		return fmt.Errorf("range stop %v must exceed start %v: %w", r.Stop, r.Start, types.ErrInvalidConfiguration)
	}
	return nil
}

// Values expands the range. Each value is Start+i*Step so long ranges do not drift.
func (r Range) Values() []float64 {
	if r.Validate() != nil {
		return nil
	}
	n := int(math.Ceil((r.Stop-r.Start)/r.Step - rangeEpsilon))
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.Start+float64(i)*r.Step)
	}
	return out
}

// Grid describes the search space.
type Grid struct {
	Modes          []types.Mode
	TakeProfit     Range
	StopLoss       Range
	InitialBalance float64
	Params         types.SignalParams
	Windows        ta.Windows
}

// DefaultGrid searches take-profit 0.5..2.5% and stop-loss -5..-1% in half-point steps.
func DefaultGrid(modes ...types.Mode) Grid {
	return Grid{
		Modes:          modes,
		TakeProfit:     Range{Start: 0.5, Stop: 3.0, Step: 0.5},
		StopLoss:       Range{Start: -5.0, Stop: -0.5, Step: 0.5},
		InitialBalance: DefaultInitialBalance,
		Params:         types.DefaultSignalParams(),
		Windows:        ta.DefaultWindows(),
	}
}

func (g Grid) Validate() error {
	if len(g.Modes) == 0 {
		return fmt.Errorf("no candidate modes: %w", types.ErrInvalidConfiguration)
	}
	for _, m := range g.Modes {
		if !m.Valid() {
			return fmt.Errorf("candidate mode %s: %w", m, types.ErrInvalidConfiguration)
		}
	}
	if err := g.TakeProfit.Validate(); err != nil {
		return fmt.Errorf("take profit: %w", err)
	}
	if err := g.StopLoss.Validate(); err != nil {
		return fmt.Errorf("stop loss: %w", err)
	}
	if g.TakeProfit.Start <= 0 {
		return fmt.Errorf("take profit values must be > 0: %w", types.ErrInvalidConfiguration)
	}
	if vals := g.StopLoss.Values(); len(vals) == 0 || vals[len(vals)-1] >= 0 {
		return fmt.Errorf("stop loss values must be < 0: %w", types.ErrInvalidConfiguration)
	}
	if g.InitialBalance <= 0 {
		return fmt.Errorf("initial balance must be > 0: %w", types.ErrInvalidConfiguration)
	}
	return g.Windows.Validate()
}

// Combinations is the number of simulations Optimize will run.
func (g Grid) Combinations() int {
	return len(g.Modes) * len(g.TakeProfit.Values()) * len(g.StopLoss.Values())
}

// Report holds every simulated result plus the winner.
type Report struct {
	Best    types.BacktestResult   `json:"best"`
	Results []types.BacktestResult `json:"results"`
}

// Top returns up to n results ordered by ending balance, best first. Ties keep grid order.
func (r Report) Top(n int) []types.BacktestResult {
	out := make([]types.BacktestResult, len(r.Results))
	copy(out, r.Results)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EndingBalance > out[j].EndingBalance
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Simulate replays candles once for a single threshold configuration. snaps must be
// ta.Snapshots(candles, ...) or an equivalent series of the same length.
func Simulate(candles []types.Candle, snaps []types.IndicatorSnapshot, cfg types.ThresholdConfig, initial float64, p types.SignalParams) (types.BacktestResult, error) {
	res := types.BacktestResult{Mode: cfg.Mode, TakeProfitPct: cfg.TakeProfitPct, StopLossPct: cfg.StopLossPct}
	if len(candles) != len(snaps) {
		return res, fmt.Errorf("have %d candles but %d snapshots: %w", len(candles), len(snaps), types.ErrInvalidConfiguration)
	}

	start := ta.FirstValid(snaps) + 1
	if start <= 0 || start >= len(candles) {
		return res, fmt.Errorf("no candle pair with valid indicators: %w", types.ErrIndicatorUnavailable)
	}

	balance := initial
	inPosition := false
	entry := 0.0

	for i := start; i < len(candles); i++ {
		c := candles[i]
		if !inPosition {
			ok, err := signal.ShouldBuy(snaps[:i+1], c.Close, cfg.Mode, p)
			if err != nil {
				if errors.Is(err, types.ErrIndicatorUnavailable) {
					continue
				}
				return res, err
			}
			if ok && c.Low > 0 {
				inPosition = true
				entry = c.Low
			}
			continue
		}

		tpPrice, slPrice := signal.TargetPrices(entry, cfg)
		switch {
		case c.High >= tpPrice:
			balance *= 1 + cfg.TakeProfitPct/100
			res.Wins++
			inPosition = false
		case c.Low <= slPrice:
			balance *= 1 + cfg.StopLossPct/100
			res.Losses++
			inPosition = false
		}
	}

	res.EndingBalance = balance
	res.TradeCount = res.Wins + res.Losses
	if res.TradeCount > 0 {
		res.WinRate = float64(res.Wins) / float64(res.TradeCount)
	}
	return res, nil
}

// Optimize simulates every (mode, take-profit, stop-loss) combination in grid order
// (modes, then take-profit, then stop-loss) and returns the highest ending balance.
// Ties keep the first combination found.
func Optimize(candles []types.Candle, g Grid) (Report, error) {
	if err := g.Validate(); err != nil {
		return Report{}, err
	}
	if err := ta.ValidateSeries(candles); err != nil {
		return Report{}, err
	}

	snaps := ta.Snapshots(candles, g.Windows)
	tps, sls := g.TakeProfit.Values(), g.StopLoss.Values()

	rep := Report{Results: make([]types.BacktestResult, 0, g.Combinations())}
	found := false
	for _, mode := range g.Modes {
		for _, tp := range tps {
			for _, sl := range sls {
				cfg := types.ThresholdConfig{Mode: mode, TakeProfitPct: tp, StopLossPct: sl}
				res, err := Simulate(candles, snaps, cfg, g.InitialBalance, g.Params)
				if err != nil {
					return Report{}, fmt.Errorf("simulate %s tp=%.2f sl=%.2f: %w", mode, tp, sl, err)
				}
				rep.Results = append(rep.Results, res)
				if !found || res.EndingBalance > rep.Best.EndingBalance {
					rep.Best = res
					found = true
				}
			}
		}
	}
	return rep, nil
}
