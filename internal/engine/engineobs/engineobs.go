package engineobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/logger"
	"stock-autotrader/internal/metrics"
	"stock-autotrader/internal/trace"
	"stock-autotrader/internal/types"
)

type observableEngine struct {
	engine  interfaces.Engine
	symbol  string
	metrics *metrics.PrometheusMetrics
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine, symbol string, m *metrics.PrometheusMetrics) interfaces.Engine {
	return &observableEngine{
		engine:  eng,
		symbol:  symbol,
		metrics: m,
	}
}

func (oe *observableEngine) Step(ctx context.Context) types.IterationResult {
	ctx, span := trace.StartSpan(ctx, "engine.Step")
	defer span.End()

	start := time.Now()

	logger.DebugSkip(ctx, 1, "Starting iteration",
		"symbol", oe.symbol,
	)

	res := oe.engine.Step(ctx)
	oe.metrics.RecordIteration(res.Kind.String())
	span.SetAttributes(
		attribute.String("symbol", oe.symbol),
		attribute.String("result", res.Kind.String()),
	)

	if res.Err != nil {
		trace.RecordError(ctx, res.Err)
		logger.ErrorWithErrSkip(ctx, 1, "Iteration failed", res.Err,
			"symbol", oe.symbol,
			"result", res.Kind.String(),
			"reason", res.Reason,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return res
	}

	logger.DebugSkip(ctx, 1, "Iteration completed",
		"symbol", oe.symbol,
		"result", res.Kind.String(),
		"wait", res.Wait.String(),
		"reason", res.Reason,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}
