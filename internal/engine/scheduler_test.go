package engine

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"stock-autotrader/internal/types"
)

type scriptedEngine struct {
	results []types.IterationResult
	panics  map[int]bool
	calls   int
}

func (s *scriptedEngine) Step(ctx context.Context) types.IterationResult {
	s.calls++
	if s.panics[s.calls] {
		panic("index out of range")
	}
	if s.calls <= len(s.results) {
		return s.results[s.calls-1]
	}
	return types.Stop("script finished", nil)
}

type fakeSleeper struct {
	waits  []time.Duration
	onCall func(n int)
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.waits = append(f.waits, d)
	if f.onCall != nil {
		f.onCall(len(f.waits))
	}
	return ctx.Err()
}

func TestSchedulerRetryPolicy(t *testing.T) {
	eng := &scriptedEngine{results: []types.IterationResult{
		types.Continue(3 * time.Second),
		types.Backoff(errors.New("dial tcp: timeout")),
		types.Continue(3 * time.Second),
	}}
	sl := &fakeSleeper{}
	rec := &recorder{}

	if err := NewScheduler(eng, rec, sl, 0).Run(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	want := []time.Duration{3 * time.Second, DefaultErrorBackoff, 3 * time.Second}
	if !reflect.DeepEqual(sl.waits, want) {
		t.Errorf("Expected waits %v, got %v", want, sl.waits)
	}
	if eng.calls != 4 {
		t.Errorf("Expected 4 iterations, got %d", eng.calls)
	}
	if rec.count("[error] dial tcp: timeout") != 1 || rec.count("[stop] script finished") != 1 {
		t.Errorf("Unexpected notifications %q", rec.msgs)
	}
}

func TestSchedulerStopWithError(t *testing.T) {
	eng := &scriptedEngine{results: []types.IterationResult{
		types.Stop("optimizer configuration rejected", types.ErrInvalidConfiguration),
	}}
	sl := &fakeSleeper{}

	err := NewScheduler(eng, nil, sl, time.Minute).Run(context.Background())
	if !errors.Is(err, types.ErrInvalidConfiguration) {
		t.Fatalf("Expected ErrInvalidConfiguration, got %v", err)
	}
	if !strings.Contains(err.Error(), "optimizer configuration rejected") {
		t.Errorf("Expected reason in error, got %v", err)
	}
	if len(sl.waits) != 0 {
		t.Errorf("Expected no sleeps, got %v", sl.waits)
	}
}

func TestSchedulerRecoversPanics(t *testing.T) {
	eng := &scriptedEngine{
		results: []types.IterationResult{{}, types.Stop("done", nil)},
		panics:  map[int]bool{1: true},
	}
	sl := &fakeSleeper{}
	rec := &recorder{}

	if err := NewScheduler(eng, rec, sl, 5*time.Second).Run(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !reflect.DeepEqual(sl.waits, []time.Duration{5 * time.Second}) {
		t.Errorf("Expected one backoff, got %v", sl.waits)
	}
	if rec.count("iteration panicked") != 1 {
		t.Errorf("Expected a panic notification, got %q", rec.msgs)
	}
}

func TestSchedulerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := &scriptedEngine{results: []types.IterationResult{
		types.Continue(time.Second),
		types.Continue(time.Second),
		types.Continue(time.Second),
	}}
	sl := &fakeSleeper{onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}

	if err := NewScheduler(eng, nil, sl, 0).Run(ctx); err != nil {
		t.Fatalf("Expected clean exit, got %v", err)
	}
	if eng.calls != 2 {
		t.Errorf("Expected 2 iterations, got %d", eng.calls)
	}
}

func TestSystemSleeperCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := SystemSleeper().Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Expected sleep to return immediately")
	}
}
