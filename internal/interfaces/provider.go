package interfaces

import "context"

// ProviderClient sends one (system instruction, user content) pair to an LLM backend.
// Failures are returned as *types.ProviderError.
type ProviderClient interface {
	Complete(ctx context.Context, systemInstruction, userContent string) (string, error)
}

// ProviderRouter resolves a model name to the client that serves it.
type ProviderRouter interface {
	For(model string) (ProviderClient, error)
}
