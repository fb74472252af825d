package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	brokerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrader_broker_requests_total",
			Help: "Broker calls by method and outcome",
		},
		[]string{"method", "status"},
	)

	brokerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autotrader_broker_request_duration_seconds",
			Help:    "Broker call latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"method"},
	)

	orderTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrader_order_total",
			Help: "Orders submitted by side and result (accepted, declined, error)",
		},
		[]string{"symbol", "side", "result"},
	)

	filledShares = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrader_filled_shares_total",
			Help: "Shares filled by side",
		},
		[]string{"symbol", "side"},
	)

	iterationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrader_iteration_total",
			Help: "Loop iterations by result kind",
		},
		[]string{"kind"},
	)

	loopState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autotrader_state",
			Help: "1 for the current reconciliation state, 0 otherwise",
		},
		[]string{"symbol", "state"},
	)

	positionQuantity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autotrader_position_quantity",
			Help: "Shares held in the open position",
		},
		[]string{"symbol"},
	)

	entryPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autotrader_position_entry_price",
			Help: "Entry price of the open position, 0 when flat",
		},
		[]string{"symbol"},
	)

	lastPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autotrader_last_price",
			Help: "Most recent observed price",
		},
		[]string{"symbol"},
	)

	thresholdPct = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autotrader_threshold_pct",
			Help: "Active exit thresholds in percent",
		},
		[]string{"symbol", "kind"},
	)

	optimizerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autotrader_optimizer_runs_total",
			Help: "Threshold optimizations by result",
		},
		[]string{"symbol", "result"},
	)

	optimizerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autotrader_optimizer_duration_seconds",
			Help:    "Wall time of one grid search",
			Buckets: prometheus.DefBuckets,
		},
	)

	optimizerBestBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autotrader_optimizer_best_balance",
			Help: "Ending balance of the selected backtest",
		},
		[]string{"symbol"},
	)
)

// PrometheusMetrics records loop and broker activity into the default registry.
type PrometheusMetrics struct{}

func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{}
}

func (pm *PrometheusMetrics) RecordBrokerCall(method string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	brokerRequests.WithLabelValues(method, status).Inc()
	brokerDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (pm *PrometheusMetrics) RecordOrder(symbol, side, result string) {
	orderTotal.WithLabelValues(symbol, side, result).Inc()
}

func (pm *PrometheusMetrics) RecordFill(symbol, side string, qty int) {
	if qty > 0 {
		filledShares.WithLabelValues(symbol, side).Add(float64(qty))
	}
}

func (pm *PrometheusMetrics) RecordIteration(kind string) {
	iterationTotal.WithLabelValues(kind).Inc()
}

// SetState marks current as the active state among all.
func (pm *PrometheusMetrics) SetState(symbol, current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		loopState.WithLabelValues(symbol, s).Set(v)
	}
}

func (pm *PrometheusMetrics) SetPosition(symbol string, qty int, entry float64) {
	positionQuantity.WithLabelValues(symbol).Set(float64(qty))
	entryPrice.WithLabelValues(symbol).Set(entry)
}

func (pm *PrometheusMetrics) SetLastPrice(symbol string, price float64) {
	lastPrice.WithLabelValues(symbol).Set(price)
}

func (pm *PrometheusMetrics) SetThresholds(symbol string, takeProfit, stopLoss float64) {
	thresholdPct.WithLabelValues(symbol, "take_profit").Set(takeProfit)
	thresholdPct.WithLabelValues(symbol, "stop_loss").Set(stopLoss)
}

func (pm *PrometheusMetrics) RecordOptimization(symbol string, err error, bestBalance float64, d time.Duration) {
	optimizerDuration.Observe(d.Seconds())
	if err != nil {
		optimizerRuns.WithLabelValues(symbol, "error").Inc()
		return
	}
	optimizerRuns.WithLabelValues(symbol, "ok").Inc()
	optimizerBestBalance.WithLabelValues(symbol).Set(bestBalance)
}
