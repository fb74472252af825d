package engine

import (
	"fmt"
	"time"

	"stock-autotrader/internal/types"
)

// MarketHours is the daily window, in a fixed timezone, during which the loop must not trade.
// The window is inclusive at both ends and wraps midnight when Close is after Open.
type MarketHours struct {
	Close time.Duration
	Open  time.Duration
	Loc   *time.Location
}

// NewMarketHours builds the closed window from minutes after midnight.
func NewMarketHours(closeMin, openMin int, loc *time.Location) (MarketHours, error) {
	if loc == nil {
		return MarketHours{}, fmt.Errorf("market hours need a location: %w", types.ErrInvalidConfiguration)
	}
	if closeMin < 0 || closeMin >= 24*60 || openMin < 0 || openMin >= 24*60 {
		return MarketHours{}, fmt.Errorf("market hours %d/%d out of range: %w", closeMin, openMin, types.ErrInvalidConfiguration)
	}
	return MarketHours{
		Close: time.Duration(closeMin) * time.Minute,
		Open:  time.Duration(openMin) * time.Minute,
		Loc:   loc,
	}, nil
}

// Closed reports whether t falls in the closed window.
func (m MarketHours) Closed(t time.Time) bool {
	local := t.In(m.Loc)
	tod := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	if m.Close <= m.Open {
		return tod >= m.Close && tod <= m.Open
	}
	return tod >= m.Close || tod <= m.Open
}

func (m MarketHours) String() string {
	return fmt.Sprintf("%s-%s %s", clockString(m.Close), clockString(m.Open), m.Loc)
}

func clockString(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
