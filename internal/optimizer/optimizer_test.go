package optimizer

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"stock-autotrader/internal/types"
)

func candle(i int, close, high, low float64) types.Candle {
	return types.Candle{Ts: int64(1700000000 + i*300), Open: close, High: high, Low: low, Close: close}
}

func crossSnap(short, mid float64) types.IndicatorSnapshot {
	return types.IndicatorSnapshot{MAShort: short, MAMid: mid, MALong: mid, BandLower: mid - 1, BandUpper: mid + 1, Valid: true}
}

func wave(n int) []types.Candle {
	cs := make([]types.Candle, n)
	for i := range cs {
		c := 100 + 5*math.Sin(float64(i)/7) + 2*math.Sin(float64(i)/3)
		cs[i] = candle(i, c, c+0.6, c-0.6)
	}
	return cs
}

func TestRangeValues(t *testing.T) {
	cases := []struct {
		r    Range
		want []float64
	}{
		{Range{0.5, 3.0, 0.5}, []float64{0.5, 1, 1.5, 2, 2.5}},
		{Range{-5, -0.5, 0.5}, []float64{-5, -4.5, -4, -3.5, -3, -2.5, -2, -1.5, -1}},
		{Range{1, 2, 5}, []float64{1}},
	}
	for _, c := range cases {
		if got := c.r.Values(); !reflect.DeepEqual(got, c.want) {
			t.Errorf("%+v: expected %v, got %v", c.r, c.want, got)
		}
	}
	if got := (Range{0.1, 0.4, 0.1}).Values(); len(got) != 3 {
		t.Errorf("Expected 3 values for 0.1..0.4, got %v", got)
	}
}

func TestRangeValidate(t *testing.T) {
	bad := []Range{{0, 1, 0}, {0, 1, -1}, {1, 1, 0.5}, {2, 1, 0.5}}
	for _, r := range bad {
		if err := r.Validate(); !errors.Is(err, types.ErrInvalidConfiguration) {
			t.Errorf("%+v: expected ErrInvalidConfiguration, got %v", r, err)
		}
		if r.Values() != nil {
			t.Errorf("%+v: expected no values", r)
		}
	}
}

func TestSimulateWinThenReentry(t *testing.T) {
	cs := []types.Candle{
		candle(0, 100, 100, 100),
		candle(1, 100.5, 101, 100),  // ma cross, enter at the low 100
		candle(2, 100, 100.5, 99),   // inside both targets
		candle(3, 101, 101.2, 100),  // take profit at 101
		candle(4, 101, 101, 100.8),  // cross again, enter but never exit
	}
	snaps := []types.IndicatorSnapshot{
		crossSnap(9.9, 10), crossSnap(10.1, 10), crossSnap(10.1, 10), crossSnap(9.9, 10), crossSnap(10.1, 10),
	}
	cfg := types.ThresholdConfig{Mode: types.ModeMACross, TakeProfitPct: 1, StopLossPct: -3}

	res, err := Simulate(cs, snaps, cfg, DefaultInitialBalance, types.DefaultSignalParams())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if res.TradeCount != 1 || res.Wins != 1 || res.Losses != 0 {
		t.Errorf("Expected one winning trade, got %+v", res)
	}
	if math.Abs(res.EndingBalance-10100) > 1e-6 {
		t.Errorf("Expected ending balance 10100, got %v", res.EndingBalance)
	}
	if res.WinRate != 1 {
		t.Errorf("Expected win rate 1, got %v", res.WinRate)
	}
}

func TestSimulateStopLossAndTieBreak(t *testing.T) {
	snaps := []types.IndicatorSnapshot{crossSnap(9.9, 10), crossSnap(10.1, 10), crossSnap(10.1, 10)}
	cfg := types.ThresholdConfig{Mode: types.ModeMACross, TakeProfitPct: 1, StopLossPct: -3}

	loss := []types.Candle{candle(0, 100, 100, 100), candle(1, 100, 100, 100), candle(2, 97, 99, 96.5)}
	res, err := Simulate(loss, snaps, cfg, DefaultInitialBalance, types.DefaultSignalParams())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if res.Losses != 1 || math.Abs(res.EndingBalance-9700) > 1e-6 {
		t.Errorf("Expected one loss ending at 9700, got %+v", res)
	}
	if res.WinRate != 0 {
		t.Errorf("Expected win rate 0, got %v", res.WinRate)
	}

	both := []types.Candle{candle(0, 100, 100, 100), candle(1, 100, 100, 100), candle(2, 100, 101.5, 96)}
	res, _ = Simulate(both, snaps, cfg, DefaultInitialBalance, types.DefaultSignalParams())
	if res.Wins != 1 || res.Losses != 0 {
		t.Errorf("Expected take profit to be checked first, got %+v", res)
	}
}

func TestSimulateNeedsValidPair(t *testing.T) {
	cs := []types.Candle{candle(0, 1, 1, 1), candle(1, 1, 1, 1)}
	snaps := []types.IndicatorSnapshot{{}, crossSnap(1, 1)}
	cfg := types.ThresholdConfig{Mode: types.ModeMACross, TakeProfitPct: 1, StopLossPct: -1}

	if _, err := Simulate(cs, snaps, cfg, DefaultInitialBalance, types.DefaultSignalParams()); !errors.Is(err, types.ErrIndicatorUnavailable) {
		t.Errorf("Expected ErrIndicatorUnavailable, got %v", err)
	}
}

func TestOptimizeDeterministic(t *testing.T) {
	cs := wave(400)
	g := DefaultGrid(types.AllModes()...)

	a, err := Optimize(cs, g)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	b, err := Optimize(cs, g)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("Expected identical reports for identical inputs")
	}
	if len(a.Results) != g.Combinations() {
		t.Errorf("Expected %d results, got %d", g.Combinations(), len(a.Results))
	}

	first := -1
	for i, r := range a.Results {
		if r.EndingBalance > a.Best.EndingBalance {
			t.Fatalf("result %d beats the selected best: %+v", i, r)
		}
		if first < 0 && r.EndingBalance == a.Best.EndingBalance {
			first = i
		}
	}
	if !reflect.DeepEqual(a.Results[first], a.Best) {
		t.Errorf("Expected the first maximal result to win, got %+v want %+v", a.Best, a.Results[first])
	}
}

func TestOptimizeTieKeepsFirst(t *testing.T) {
	cs := make([]types.Candle, 120)
	for i := range cs {
		cs[i] = candle(i, 100, 100, 100)
	}
	g := DefaultGrid(types.ModeMACross, types.ModeLowerRecover)

	rep, err := Optimize(cs, g)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	want := types.BacktestResult{Mode: types.ModeMACross, TakeProfitPct: 0.5, StopLossPct: -5, EndingBalance: DefaultInitialBalance}
	if rep.Best != want {
		t.Errorf("Expected %+v, got %+v", want, rep.Best)
	}
	if th := rep.Best.Thresholds(); th.Validate() != nil {
		t.Errorf("Expected valid thresholds, got %v", th.Validate())
	}
}

func TestOptimizeErrors(t *testing.T) {
	if _, err := Optimize(wave(30), DefaultGrid(types.ModeCombo)); !errors.Is(err, types.ErrIndicatorUnavailable) {
		t.Errorf("Expected ErrIndicatorUnavailable for short history, got %v", err)
	}

	g := DefaultGrid()
	if _, err := Optimize(wave(100), g); !errors.Is(err, types.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration without modes, got %v", err)
	}

	g = DefaultGrid(types.ModeCombo)
	g.StopLoss = Range{-1, 0.5, 0.5}
	if _, err := Optimize(wave(100), g); !errors.Is(err, types.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration for non-negative stop loss, got %v", err)
	}

	cs := wave(100)
	cs[50].Ts = cs[49].Ts
	if _, err := Optimize(cs, DefaultGrid(types.ModeCombo)); !errors.Is(err, types.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration for duplicate timestamps, got %v", err)
	}
}

func TestReportTop(t *testing.T) {
	rep := Report{Results: []types.BacktestResult{
		{TakeProfitPct: 0.5, EndingBalance: 100},
		{TakeProfitPct: 1.0, EndingBalance: 120},
		{TakeProfitPct: 1.5, EndingBalance: 100},
		{TakeProfitPct: 2.0, EndingBalance: 130},
	}}

	top := rep.Top(3)
	want := []float64{2.0, 1.0, 0.5}
	if len(top) != len(want) {
		t.Fatalf("Expected %d results, got %d", len(want), len(top))
	}
	for i, tp := range want {
		if top[i].TakeProfitPct != tp {
			t.Errorf("rank %d: expected tp %.1f, got %.1f", i+1, tp, top[i].TakeProfitPct)
		}
	}
	if rep.Results[0].TakeProfitPct != 0.5 {
		t.Error("Expected Top to leave the report untouched")
	}
	if got := len(rep.Top(-1)); got != 4 {
		t.Errorf("Expected all 4 results, got %d", got)
	}
}
