package interfaces

import (
	"context"

	"news-forecaster/internal/types"
)

// Orchestrator runs one full pass over every configured model.
type Orchestrator interface {
	RunPass(ctx context.Context) (types.PassStats, error)
}
