package types

import (
	"fmt"
	"strings"
	"time"
)

// Candle is one OHLCV bar. Ts is unix seconds.
type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// IndicatorSnapshot holds the rolling indicators derived for a single candle.
// Valid is false until every configured window is fully populated.
type IndicatorSnapshot struct {
	Ts        int64   `json:"ts"`
	Close     float64 `json:"close"`
	MAShort   float64 `json:"ma_short"`
	MAMid     float64 `json:"ma_mid"`
	MALong    float64 `json:"ma_long"`
	StdDev    float64 `json:"stddev"`
	BandUpper float64 `json:"band_upper"`
	BandLower float64 `json:"band_lower"`
	Valid     bool    `json:"valid"`
}

// Mode selects the buy-signal rule.
type Mode int

const (
	ModeLowerRecover Mode = iota + 1
	ModeMACross
	ModeNearMA
	ModeMA5Touch
	ModeCombo
)

var modeNames = map[Mode]string{
	ModeLowerRecover: "lower_recover",
	ModeMACross:      "ma_cross",
	ModeNearMA:       "near_ma",
	ModeMA5Touch:     "ma5_touch",
	ModeCombo:        "combo",
}

// AllModes lists every mode in declaration order.
func AllModes() []Mode {
	return []Mode{ModeLowerRecover, ModeMACross, ModeNearMA, ModeMA5Touch, ModeCombo}
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// ParseMode converts a configured mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy mode %q: %w", s, ErrInvalidConfiguration)
}

// MarshalText lets modes appear by name in JSON and YAML.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("cannot marshal %s: %w", m, ErrInvalidConfiguration)
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// TargetMA picks which moving average the near_ma rule compares against.
type TargetMA string

const (
	TargetMAShort TargetMA = "short"
	TargetMAMid   TargetMA = "mid"
	TargetMALong  TargetMA = "long"
)

// SignalParams tunes the mode-specific buy rules.
type SignalParams struct {
	TargetMA  TargetMA
	Tolerance float64
	Strict    bool
}

// DefaultSignalParams returns near_ma against ma_mid at 0.1% and non-strict combo.
func DefaultSignalParams() SignalParams {
	return SignalParams{TargetMA: TargetMAMid, Tolerance: 0.001}
}

// ThresholdConfig is the exit configuration chosen by the optimizer.
// It is a value type and is always replaced as a whole.
type ThresholdConfig struct {
	Mode          Mode    `json:"mode"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	StopLossPct   float64 `json:"stop_loss_pct"`
}

func (t ThresholdConfig) Validate() error {
	if !t.Mode.Valid() {
		return fmt.Errorf("threshold mode %s: %w", t.Mode, ErrInvalidConfiguration)
	}
	if t.TakeProfitPct <= 0 {
		return fmt.Errorf("take profit must be > 0, got %.4f: %w", t.TakeProfitPct, ErrInvalidConfiguration)
	}
	if t.StopLossPct >= 0 {
		return fmt.Errorf("stop loss must be < 0, got %.4f: %w", t.StopLossPct, ErrInvalidConfiguration)
	}
	return nil
}

// Position is the single open holding for a symbol.
type Position struct {
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   int       `json:"quantity"`
	OpenedAt   time.Time `json:"opened_at"`
}

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderIntent is handed to the broker and never persisted.
type OrderIntent struct {
	Side       Side
	Symbol     string
	Quantity   int
	LimitPrice float64
}

// OrderOutcome is what actually happened to an order.
// Positions are sized from FilledQuantity, never from the requested quantity.
type OrderOutcome struct {
	Accepted         bool   `json:"accepted"`
	OrderID          string `json:"order_id"`
	FilledQuantity   int    `json:"filled_quantity"`
	UnfilledQuantity int    `json:"unfilled_quantity"`
	Message          string `json:"message,omitempty"`
}

// Fill is one execution record reported by the broker for an order.
type Fill struct {
	FilledQty   int
	UnfilledQty int
	Status      string
}

// CancelOutcome is the broker response to a cancellation.
type CancelOutcome struct {
	Accepted      bool
	CancelOrderID string
	Message       string
}

// BacktestResult is the outcome of simulating one (mode, tp, sl) combination.
type BacktestResult struct {
	Mode          Mode    `json:"mode"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	StopLossPct   float64 `json:"stop_loss_pct"`
	EndingBalance float64 `json:"ending_balance"`
	WinRate       float64 `json:"win_rate"`
	TradeCount    int     `json:"trade_count"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
}

// Thresholds converts the result into the config the live loop consumes.
func (r BacktestResult) Thresholds() ThresholdConfig {
	return ThresholdConfig{Mode: r.Mode, TakeProfitPct: r.TakeProfitPct, StopLossPct: r.StopLossPct}
}

// IterationKind tells the scheduler what to do after one loop iteration.
type IterationKind int

const (
	IterationContinue IterationKind = iota
	IterationBackoff
	IterationStop
)

func (k IterationKind) String() string {
	switch k {
	case IterationContinue:
		return "continue"
	case IterationBackoff:
		return "backoff"
	case IterationStop:
		return "stop"
	}
	return fmt.Sprintf("iteration(%d)", int(k))
}

// IterationResult is returned by one engine step. Wait is only meaningful for Continue.
type IterationResult struct {
	Kind   IterationKind
	Wait   time.Duration
	Err    error
	Reason string
}

func Continue(wait time.Duration) IterationResult {
	return IterationResult{Kind: IterationContinue, Wait: wait}
}

func Backoff(err error) IterationResult {
	return IterationResult{Kind: IterationBackoff, Err: err}
}

func Stop(reason string, err error) IterationResult {
	return IterationResult{Kind: IterationStop, Err: err, Reason: reason}
}
