package engineobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"news-forecaster/internal/interfaces"
	"news-forecaster/internal/logger"
	"news-forecaster/internal/trace"
	"news-forecaster/internal/types"
)

type observableOrchestrator struct {
	orch interfaces.Orchestrator
}

var _ interfaces.Orchestrator = (*observableOrchestrator)(nil)

func Wrap(orch interfaces.Orchestrator) interfaces.Orchestrator {
	return &observableOrchestrator{
		orch: orch,
	}
}

func (oo *observableOrchestrator) RunPass(ctx context.Context) (types.PassStats, error) {
	ctx, span := trace.StartPass(ctx)
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting analysis pass")

	stats, err := oo.orch.RunPass(ctx)
	span.SetAttributes(
		attribute.String("pass_id", stats.PassID),
		attribute.Int("models", stats.Models),
		attribute.Int("aggregated", stats.Aggregated),
	)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Analysis pass failed", err,
			"pass_id", stats.PassID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return stats, err
	}

	logger.InfoSkip(ctx, 1, "Analysis pass completed",
		"pass_id", stats.PassID,
		"models", stats.Models,
		"outcomes", stats.Outcomes,
		"aggregated", stats.Aggregated,
		"quota_aborts", stats.QuotaAborts,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return stats, nil
}
