package interfaces

import (
	"context"

	"stock-autotrader/internal/types"
)

type Engine interface {
	Step(ctx context.Context) types.IterationResult
}
