// Package gemini implements the Google AI Studio provider on the genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"news-forecaster/internal/store"
	"news-forecaster/internal/trace"
	"news-forecaster/internal/types"
)

type Client struct {
	model  string
	cfg    store.ProviderConfig
	client *genai.Client
}

func New(ctx context.Context, model, apiKey string, cfg store.ProviderConfig) (*Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{model: model, cfg: cfg, client: client}, nil
}

func (c *Client) Complete(ctx context.Context, systemInstruction, userContent string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "gemini-api-call")
	defer span.End()

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	}
	if c.cfg.Temperature > 0 {
		config.Temperature = genai.Ptr(c.cfg.Temperature)
	}
	if c.cfg.MaxTokens > 0 {
		config.MaxOutputTokens = int32(c.cfg.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(userContent, genai.RoleUser)}, config)
	if err != nil {
		return "", &types.ProviderError{
			Kind:       classify(err),
			Provider:   store.ProviderGemini,
			Model:      c.model,
			StatusCode: statusOf(err),
			Err:        err,
		}
	}

	if resp == nil || len(resp.Candidates) == 0 {
		reason := "empty response"
		if resp != nil && resp.PromptFeedback != nil {
			reason = fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", &types.ProviderError{Kind: types.KindTransient, Provider: store.ProviderGemini, Model: c.model, Err: errors.New(reason)}
	}
	return resp.Text(), nil
}

func apiError(err error) (genai.APIError, bool) {
	var ae genai.APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	var pae *genai.APIError
	if errors.As(err, &pae) && pae != nil {
		return *pae, true
	}
	return genai.APIError{}, false
}

func statusOf(err error) int {
	if ae, ok := apiError(err); ok {
		return ae.Code
	}
	return 0
}

// classify maps a genai failure onto the normalized taxonomy. Errors that do not
// carry an APIError fall back to matching the message text.
func classify(err error) types.ErrorKind {
	code, status, msg := 0, "", strings.ToLower(err.Error())
	if ae, ok := apiError(err); ok {
		code, status, msg = ae.Code, ae.Status, strings.ToLower(ae.Message)
	}

	switch {
	case code == http.StatusTooManyRequests, status == "RESOURCE_EXHAUSTED":
		return types.KindQuotaExceeded
	case code == http.StatusRequestEntityTooLarge:
		return types.KindPayloadTooLarge
	case code == http.StatusBadRequest && (strings.Contains(msg, "exceeds") || strings.Contains(msg, "too large") || strings.Contains(msg, "token count")):
		return types.KindPayloadTooLarge
	case code == 0 && (strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "quota") || strings.Contains(msg, "429")):
		return types.KindQuotaExceeded
	}
	return types.KindTransient
}
