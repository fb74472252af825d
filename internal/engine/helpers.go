package engine

import "context"

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// lastMAMid is the newest mid moving average, or 0 while indicators are warming up.
func (e *Engine) lastMAMid() float64 {
	if n := len(e.snaps); n > 0 && e.snaps[n-1].Valid {
		return e.snaps[n-1].MAMid
	}
	return 0
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string) {}
