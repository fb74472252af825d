package types

import "errors"

var (
	// ErrInvalidConfiguration covers unknown modes and malformed ranges. Fatal at setup.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrIndicatorUnavailable means there is not enough history or a moving average is zero.
	ErrIndicatorUnavailable = errors.New("indicator unavailable")
	// ErrOrderRejected means the broker declined an order.
	ErrOrderRejected = errors.New("order rejected")
	// ErrTransient wraps network and other retryable failures.
	ErrTransient = errors.New("transient failure")
)
