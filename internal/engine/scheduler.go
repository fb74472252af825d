package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/types"
)

// DefaultErrorBackoff is how long the scheduler waits after a failed iteration.
const DefaultErrorBackoff = 60 * time.Second

// Scheduler drives an Engine until it asks to stop or ctx is cancelled.
// Failed iterations are reported and retried after a fixed backoff.
type Scheduler struct {
	engine   interfaces.Engine
	notifier interfaces.Notifier
	sleeper  Sleeper
	backoff  time.Duration
}

func NewScheduler(eng interfaces.Engine, notifier interfaces.Notifier, sleeper Sleeper, backoff time.Duration) *Scheduler {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if sleeper == nil {
		sleeper = SystemSleeper()
	}
	if backoff <= 0 {
		backoff = DefaultErrorBackoff
	}
	return &Scheduler{engine: eng, notifier: notifier, sleeper: sleeper, backoff: backoff}
}

// Run loops until the engine returns Stop or ctx is done. It returns the stop error,
// if any; cancellation is a clean exit.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Info(ctx, "Scheduler started", "error_backoff", s.backoff.String())
	for {
		if ctx.Err() != nil {
			logger.Info(ctx, "Scheduler stopped: context cancelled")
			return nil
		}

		res := s.step(ctx)
		if ctx.Err() != nil {
			logger.Info(ctx, "Scheduler stopped: context cancelled")
			return nil
		}

		var wait time.Duration
		switch res.Kind {
		case types.IterationContinue:
			wait = res.Wait
		case types.IterationBackoff:
			logger.ErrorWithErr(ctx, "Iteration failed, backing off", res.Err, "backoff", s.backoff.String())
			s.notifier.Notify(ctx, fmt.Sprintf("[error] %v (retrying in %s)", res.Err, s.backoff))
			wait = s.backoff
		case types.IterationStop:
			msg := res.Reason
			if res.Err != nil {
				msg = fmt.Sprintf("%s: %v", res.Reason, res.Err)
			}
			logger.Warn(ctx, "Scheduler stopping", "reason", msg)
			s.notifier.Notify(ctx, "[stop] "+msg)
			if res.Err != nil {
				return fmt.Errorf("%s: %w", res.Reason, res.Err)
			}
			return nil
		}

		if err := s.sleeper.Sleep(ctx, wait); err != nil {
			logger.Info(ctx, "Scheduler stopped during sleep", "error", err.Error())
			return nil
		}
	}
}

// step runs one iteration and turns a panic into a backoff.
func (s *Scheduler) step(ctx context.Context) (res types.IterationResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Iteration panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			res = types.Backoff(fmt.Errorf("iteration panicked: %v", r))
		}
	}()
	return s.engine.Step(ctx)
}
