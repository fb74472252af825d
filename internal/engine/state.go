package engine

import "fmt"

// State is where the reconciliation loop stands for its symbol.
type State int

const (
	WatchingBuy State = iota
	OrderPendingBuy
	PositionOpen
	OrderPendingSell
)

var stateNames = [...]string{
	WatchingBuy:      "watching_buy",
	OrderPendingBuy:  "order_pending_buy",
	PositionOpen:     "position_open",
	OrderPendingSell: "order_pending_sell",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func stateLabels() []string {
	return stateNames[:]
}
