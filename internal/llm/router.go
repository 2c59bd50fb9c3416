// Package llm routes model names to provider clients.
package llm

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"news-forecaster/internal/interfaces"
	"news-forecaster/internal/llm/claude"
	"news-forecaster/internal/llm/gemini"
	"news-forecaster/internal/llm/llmobs"
	"news-forecaster/internal/llm/openai"
	"news-forecaster/internal/store"
	"news-forecaster/internal/types"
)

// Builder creates the client for one model of a provider.
type Builder func(model, apiKey string, cfg store.ProviderConfig) (interfaces.ProviderClient, error)

// Router resolves model names through the configured routing table. Clients are
// built lazily and cached per model; all models of a provider share one rate limiter.
type Router struct {
	cfg      *store.Config
	builders map[string]Builder
	getenv   func(string) string

	mu       sync.Mutex
	clients  map[string]interfaces.ProviderClient
	limiters map[string]*rate.Limiter
}

type Option func(*Router)

// WithBuilder overrides how clients of provider are created.
func WithBuilder(provider string, b Builder) Option {
	return func(r *Router) { r.builders[provider] = b }
}

// WithGetenv overrides the API key lookup.
func WithGetenv(f func(string) string) Option {
	return func(r *Router) { r.getenv = f }
}

func NewRouter(cfg *store.Config, opts ...Option) *Router {
	r := &Router{
		cfg: cfg,
		builders: map[string]Builder{
			store.ProviderGemini: func(model, key string, pc store.ProviderConfig) (interfaces.ProviderClient, error) {
				return gemini.New(context.Background(), model, key, pc)
			},
			store.ProviderGroq: func(model, key string, pc store.ProviderConfig) (interfaces.ProviderClient, error) {
				return openai.New(store.ProviderGroq, model, key, pc), nil
			},
			store.ProviderOpenRouter: func(model, key string, pc store.ProviderConfig) (interfaces.ProviderClient, error) {
				return openai.New(store.ProviderOpenRouter, model, key, pc), nil
			},
			store.ProviderClaude: func(model, key string, pc store.ProviderConfig) (interfaces.ProviderClient, error) {
				return claude.New(model, key, pc), nil
			},
		},
		getenv:   os.Getenv,
		clients:  make(map[string]interfaces.ProviderClient),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ interfaces.ProviderRouter = (*Router)(nil)

func (r *Router) For(model string) (interfaces.ProviderClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[model]; ok {
		return c, nil
	}

	route, ok := r.cfg.RouteFor(model)
	if !ok {
		return nil, fmt.Errorf("no route for model %s", model)
	}
	build, ok := r.builders[route.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %s for model %s", route.Provider, model)
	}

	pc := r.cfg.Provider(route.Provider)
	key := r.getenv(pc.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%s missing for model %s", pc.APIKeyEnv, model)
	}

	client, err := build(model, key, pc)
	if err != nil {
		return nil, err
	}
	if lim := r.limiter(route.Provider, pc.RequestsPerMinute); lim != nil {
		client = &paced{next: client, limiter: lim, provider: route.Provider, model: model}
	}
	client = llmobs.Wrap(client, route.Provider, model)

	r.clients[model] = client
	return client, nil
}

func (r *Router) limiter(provider string, rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	if lim, ok := r.limiters[provider]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	r.limiters[provider] = lim
	return lim
}

// paced waits for the provider's limiter before every call.
type paced struct {
	next     interfaces.ProviderClient
	limiter  *rate.Limiter
	provider string
	model    string
}

func (p *paced) Complete(ctx context.Context, systemInstruction, userContent string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", &types.ProviderError{Kind: types.KindTransient, Provider: p.provider, Model: p.model, Err: err}
	}
	return p.next.Complete(ctx, systemInstruction, userContent)
}
