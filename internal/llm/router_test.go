package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-forecaster/internal/interfaces"
	"news-forecaster/internal/store"
)

type echo struct{ name string }

func (e *echo) Complete(context.Context, string, string) (string, error) { return e.name, nil }

func testConfig() *store.Config {
	return &store.Config{
		Models: []string{"gemini-2.0-flash", "deepseek/deepseek-chat:free", "llama-3.1-8b-instant"},
		Routes: []store.Route{
			{Match: "prefix", Pattern: "gemini", Provider: store.ProviderGemini},
			{Match: "exact", Pattern: "deepseek/deepseek-chat:free", Provider: store.ProviderOpenRouter},
			{Match: "prefix", Pattern: "", Provider: store.ProviderGroq},
		},
		Providers: map[string]store.ProviderConfig{
			store.ProviderGroq: {RequestsPerMinute: 6000},
		},
	}
}

func fakeBuilder(built *[]string) Builder {
	return func(model, key string, _ store.ProviderConfig) (interfaces.ProviderClient, error) {
		*built = append(*built, model+":"+key)
		return &echo{name: model}, nil
	}
}

func TestRouterRoutesByTable(t *testing.T) {
	var built []string
	env := map[string]string{"GEMINI_API_KEY": "g", "GROQ_API_KEY": "q", "OPENROUTER_API_KEY": "o"}
	r := NewRouter(testConfig(),
		WithBuilder(store.ProviderGemini, fakeBuilder(&built)),
		WithBuilder(store.ProviderGroq, fakeBuilder(&built)),
		WithBuilder(store.ProviderOpenRouter, fakeBuilder(&built)),
		WithGetenv(func(k string) string { return env[k] }),
	)

	for _, model := range []string{"gemini-2.0-flash", "deepseek/deepseek-chat:free", "llama-3.1-8b-instant"} {
		c, err := r.For(model)
		require.NoError(t, err)
		out, err := c.Complete(context.Background(), "s", "u")
		require.NoError(t, err)
		assert.Equal(t, model, out)
	}
	assert.Equal(t, []string{"gemini-2.0-flash:g", "deepseek/deepseek-chat:free:o", "llama-3.1-8b-instant:q"}, built)

	// cached
	_, err := r.For("gemini-2.0-flash")
	require.NoError(t, err)
	assert.Len(t, built, 3)
}

func TestRouterMissingKey(t *testing.T) {
	r := NewRouter(testConfig(), WithGetenv(func(string) string { return "" }))
	_, err := r.For("gemini-2.0-flash")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestRouterNoRoute(t *testing.T) {
	cfg := testConfig()
	cfg.Routes = cfg.Routes[:2]
	r := NewRouter(cfg, WithGetenv(func(string) string { return "k" }))
	_, err := r.For("mistral-large")
	assert.Error(t, err)
}
