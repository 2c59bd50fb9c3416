// Package claude implements the Anthropic Messages provider.
package claude

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"news-forecaster/internal/store"
	"news-forecaster/internal/trace"
	"news-forecaster/internal/types"
)

const defaultMaxTokens = 2048

type Client struct {
	model  string
	cfg    store.ProviderConfig
	client anthropic.Client
}

func New(model, apiKey string, cfg store.ProviderConfig) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// retry policy belongs to the orchestrator
		option.WithMaxRetries(0),
		option.WithRequestTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{model: model, cfg: cfg, client: anthropic.NewClient(opts...)}
}

func (c *Client) Complete(ctx context.Context, systemInstruction, userContent string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	maxTokens := c.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		System:    []anthropic.TextBlockParam{{Text: systemInstruction}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userContent)),
		},
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.cfg.Temperature))
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		kind, status := classify(err)
		return "", &types.ProviderError{Kind: kind, Provider: store.ProviderClaude, Model: c.model, StatusCode: status, Err: err}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", &types.ProviderError{Kind: types.KindTransient, Provider: store.ProviderClaude, Model: c.model, Err: errors.New("empty response")}
	}
	return text.String(), nil
}

func classify(err error) (types.ErrorKind, int) {
	var apierr *anthropic.Error
	if !errors.As(err, &apierr) {
		return types.KindTransient, 0
	}
	return kindFor(apierr.StatusCode, strings.ToLower(apierr.RawJSON())), apierr.StatusCode
}

func kindFor(status int, body string) types.ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return types.KindQuotaExceeded
	case status == http.StatusRequestEntityTooLarge:
		return types.KindPayloadTooLarge
	case status == http.StatusBadRequest && (strings.Contains(body, "prompt is too long") || strings.Contains(body, "too large")):
		return types.KindPayloadTooLarge
	case status == http.StatusBadRequest && strings.Contains(body, "credit balance"):
		return types.KindQuotaExceeded
	}
	return types.KindTransient
}
