package llmobs

import (
	"context"
	"time"

	"news-forecaster/internal/interfaces"
	"news-forecaster/internal/logger"
	"news-forecaster/internal/trace"
	"news-forecaster/internal/types"
)

// observableClient wraps a ProviderClient with logging and tracing
type observableClient struct {
	next     interfaces.ProviderClient
	provider string
	model    string
}

// Compile-time interface check
var _ interfaces.ProviderClient = (*observableClient)(nil)

// Wrap wraps a provider client with observability middleware
func Wrap(next interfaces.ProviderClient, provider, model string) interfaces.ProviderClient {
	return &observableClient{next: next, provider: provider, model: model}
}

func (o *observableClient) Complete(ctx context.Context, systemInstruction, userContent string) (string, error) {
	ctx, span := trace.StartLLM(ctx, o.provider, o.model)
	defer span.End()

	// Skip(1) so the source points at the orchestrator, not this wrapper
	logger.DebugSkip(ctx, 1, "Requesting completion",
		"provider", o.provider,
		"model", o.model,
		"input_chars", len(userContent),
	)

	start := time.Now()
	out, err := o.next.Complete(ctx, systemInstruction, userContent)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Completion failed", err,
			"provider", o.provider,
			"model", o.model,
			"kind", types.KindOf(err).String(),
			"duration_ms", elapsed,
		)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Completion received",
		"provider", o.provider,
		"model", o.model,
		"output_chars", len(out),
		"duration_ms", elapsed,
	)
	return out, nil
}
