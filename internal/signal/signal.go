// Package signal turns indicator snapshots and a live price into buy and sell decisions.
// Every function here is pure.
package signal

import (
	"fmt"
	"math"

	"stock-autotrader/internal/types"
)

// TouchTolerance is how close the price must be to ma_short for ma5_touch.
const TouchTolerance = 0.001

// minMA guards divisions by a moving average.
const minMA = 1e-12

// SellDecision is the outcome of ShouldSell.
type SellDecision int

const (
	SellNone SellDecision = iota
	SellTakeProfit
	SellStopLoss
)

func (d SellDecision) String() string {
	switch d {
	case SellTakeProfit:
		return "take_profit"
	case SellStopLoss:
		return "stop_loss"
	default:
		return "none"
	}
}

// Conditions are the individual buy sub-signals for the latest candle pair.
type Conditions struct {
	LowerRecover bool
	MACross      bool
	NearMA       bool
	MA5Touch     bool
}

// ShouldBuy evaluates mode against the last two snapshots and the live price.
func ShouldBuy(snaps []types.IndicatorSnapshot, price float64, mode types.Mode, p types.SignalParams) (bool, error) {
	if !mode.Valid() {
		return false, fmt.Errorf("buy mode %s: %w", mode, types.ErrInvalidConfiguration)
	}
	prev, now, err := lastPair(snaps)
	if err != nil {
		return false, err
	}

	switch mode {
	case types.ModeLowerRecover:
		return lowerRecover(prev, now, price), nil
	case types.ModeMACross:
		return maCross(prev, now), nil
	case types.ModeNearMA:
		return nearMA(now, price, p)
	case types.ModeMA5Touch:
		return ma5Touch(prev, now, price)
	case types.ModeCombo:
		touch, err := ma5Touch(prev, now, price)
		if err != nil {
			return false, err
		}
		lr, mc := lowerRecover(prev, now, price), maCross(prev, now)
		if p.Strict {
			return lr && mc && touch, nil
		}
		return (lr && touch) || mc, nil
	}
	return false, fmt.Errorf("buy mode %s: %w", mode, types.ErrInvalidConfiguration)
}

// Evaluate computes every sub-signal at once, for status reporting.
func Evaluate(snaps []types.IndicatorSnapshot, price float64, p types.SignalParams) (Conditions, error) {
	prev, now, err := lastPair(snaps)
	if err != nil {
		return Conditions{}, err
	}
	c := Conditions{
		LowerRecover: lowerRecover(prev, now, price),
		MACross:      maCross(prev, now),
	}
	if c.NearMA, err = nearMA(now, price, p); err != nil {
		return Conditions{}, err
	}
	if c.MA5Touch, err = ma5Touch(prev, now, price); err != nil {
		return Conditions{}, err
	}
	return c, nil
}

// ShouldSell compares the return since entry against the thresholds. Take-profit wins ties.
func ShouldSell(entry, price, takeProfitPct, stopLossPct float64) SellDecision {
	if entry <= 0 {
		return SellNone
	}
	rate := (price - entry) / entry * 100
	if rate >= takeProfitPct {
		return SellTakeProfit
	}
	if rate <= stopLossPct {
		return SellStopLoss
	}
	return SellNone
}

// TargetPrices returns the absolute take-profit and stop-loss prices for an entry.
func TargetPrices(entry float64, cfg types.ThresholdConfig) (takeProfit, stopLoss float64) {
	return entry * (1 + cfg.TakeProfitPct/100), entry * (1 + cfg.StopLossPct/100)
}

func lastPair(snaps []types.IndicatorSnapshot) (prev, now types.IndicatorSnapshot, err error) {
	if len(snaps) < 2 {
		return prev, now, fmt.Errorf("need 2 snapshots, have %d: %w", len(snaps), types.ErrIndicatorUnavailable)
	}
	prev, now = snaps[len(snaps)-2], snaps[len(snaps)-1]
	if !prev.Valid || !now.Valid {
		return prev, now, fmt.Errorf("latest snapshots not fully populated: %w", types.ErrIndicatorUnavailable)
	}
	return prev, now, nil
}

func lowerRecover(prev, now types.IndicatorSnapshot, price float64) bool {
	return prev.Close < prev.BandLower && price > now.BandLower
}

func maCross(prev, now types.IndicatorSnapshot) bool {
	return prev.MAShort < prev.MAMid && now.MAShort > now.MAMid
}

func nearMA(now types.IndicatorSnapshot, price float64, p types.SignalParams) (bool, error) {
	var target float64
	switch p.TargetMA {
	case types.TargetMAShort:
		target = now.MAShort
	case types.TargetMALong:
		target = now.MALong
	case types.TargetMAMid, "":
		target = now.MAMid
	default:
		return false, fmt.Errorf("near_ma target %q: %w", p.TargetMA, types.ErrInvalidConfiguration)
	}
	tol := p.Tolerance
	if tol <= 0 {
		tol = types.DefaultSignalParams().Tolerance
	}
	dist, err := relDistance(price, target)
	if err != nil {
		return false, err
	}
	return dist <= tol, nil
}

func ma5Touch(prev, now types.IndicatorSnapshot, price float64) (bool, error) {
	dist, err := relDistance(price, now.MAShort)
	if err != nil {
		return false, err
	}
	return now.MAShort > now.MAMid && dist <= TouchTolerance && price > prev.Close, nil
}

func relDistance(price, ma float64) (float64, error) {
	if math.IsNaN(ma) || math.Abs(ma) < minMA {
		return 0, fmt.Errorf("moving average %v unusable as divisor: %w", ma, types.ErrIndicatorUnavailable)
	}
	return math.Abs(price-ma) / ma, nil
}
