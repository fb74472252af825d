package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetState(t *testing.T) {
	pm := NewPrometheusMetrics()
	all := []string{"watching_buy", "position_open"}

	pm.SetState("TST1", "position_open", all)
	if v := testutil.ToFloat64(loopState.WithLabelValues("TST1", "position_open")); v != 1 {
		t.Errorf("Expected active state 1, got %v", v)
	}
	if v := testutil.ToFloat64(loopState.WithLabelValues("TST1", "watching_buy")); v != 0 {
		t.Errorf("Expected inactive state 0, got %v", v)
	}
}

func TestCounters(t *testing.T) {
	pm := NewPrometheusMetrics()

	before := testutil.ToFloat64(orderTotal.WithLabelValues("TST2", "BUY", "declined"))
	pm.RecordOrder("TST2", "BUY", "declined")
	if got := testutil.ToFloat64(orderTotal.WithLabelValues("TST2", "BUY", "declined")); got != before+1 {
		t.Errorf("Expected %v, got %v", before+1, got)
	}

	pm.RecordFill("TST2", "BUY", 0)
	pm.RecordFill("TST2", "BUY", 5)
	if got := testutil.ToFloat64(filledShares.WithLabelValues("TST2", "BUY")); got != 5 {
		t.Errorf("Expected 5 filled shares, got %v", got)
	}

	pm.RecordBrokerCall("TestMethod", errors.New("boom"), time.Millisecond)
	if got := testutil.ToFloat64(brokerRequests.WithLabelValues("TestMethod", "error")); got != 1 {
		t.Errorf("Expected one failed call, got %v", got)
	}

	pm.RecordOptimization("TST2", nil, 10100, time.Second)
	if got := testutil.ToFloat64(optimizerBestBalance.WithLabelValues("TST2")); got != 10100 {
		t.Errorf("Expected best balance 10100, got %v", got)
	}
}
