package ta

import (
	"fmt"
	"math"

	"stock-autotrader/internal/types"
)

// BandWidth is the number of standard deviations between the mid line and each band.
const BandWidth = 2.0

// Windows are the moving-average lengths. The Bollinger bands use Mid.
type Windows struct {
	Short, Mid, Long int
}

// DefaultWindows returns 5/20/60.
func DefaultWindows() Windows {
	return Windows{Short: 5, Mid: 20, Long: 60}
}

func (w Windows) Validate() error {
	if w.Short <= 0 || w.Mid <= 0 || w.Long <= 0 {
		return fmt.Errorf("indicator windows must be positive, got %+v: %w", w, types.ErrInvalidConfiguration)
	}
	return nil
}

// Largest returns the longest window, i.e. how many candles are needed before a snapshot is valid.
func (w Windows) Largest() int {
	return max(w.Short, w.Mid, w.Long)
}

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

// StdDev is the population standard deviation of the last n values.
func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = SMA(closes, n)
	sd := StdDev(closes, n)
	up = mid + k*sd
	low = mid - k*sd
	return
}

// RollingMean returns the trailing mean at every index. Index i covers vals[i-window+1 : i+1];
// indexes before window-1 are NaN.
func RollingMean(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	for i := range vals {
		out[i] = SMA(vals[:i+1], window)
	}
	return out
}

// RollingStdDev uses the same alignment as RollingMean and the population estimator.
func RollingStdDev(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	for i := range vals {
		out[i] = StdDev(vals[:i+1], window)
	}
	return out
}

// ValidateSeries checks candles are strictly ascending by timestamp.
func ValidateSeries(candles []types.Candle) error {
	for i := 1; i < len(candles); i++ {
		if candles[i].Ts <= candles[i-1].Ts {
			return fmt.Errorf("candle %d timestamp %d not after %d: %w",
				i, candles[i].Ts, candles[i-1].Ts, types.ErrInvalidConfiguration)
		}
	}
	return nil
}

// Closes extracts the close column.
func Closes(candles []types.Candle) []float64 {
	cl := make([]float64, len(candles))
	for i, c := range candles {
		cl[i] = c.Close
	}
	return cl
}

// Snapshots derives one IndicatorSnapshot per candle. There is no look-ahead: every value at
// index i only depends on candles[0..i].
func Snapshots(candles []types.Candle, w Windows) []types.IndicatorSnapshot {
	cl := Closes(candles)
	short := RollingMean(cl, w.Short)
	mid := RollingMean(cl, w.Mid)
	long := RollingMean(cl, w.Long)
	sd := RollingStdDev(cl, w.Mid)
	need := w.Largest()

	out := make([]types.IndicatorSnapshot, len(candles))
	for i, c := range candles {
		s := types.IndicatorSnapshot{
			Ts:      c.Ts,
			Close:   c.Close,
			MAShort: short[i],
			MAMid:   mid[i],
			MALong:  long[i],
			StdDev:  sd[i],
			Valid:   i+1 >= need,
		}
		s.BandUpper = s.MAMid + BandWidth*s.StdDev
		s.BandLower = s.MAMid - BandWidth*s.StdDev
		out[i] = s
	}
	return out
}

// FirstValid returns the index of the first valid snapshot, or -1.
func FirstValid(snaps []types.IndicatorSnapshot) int {
	for i, s := range snaps {
		if s.Valid {
			return i
		}
	}
	return -1
}
