// Package openai talks to OpenAI-compatible chat completion endpoints (Groq, OpenRouter).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"news-forecaster/internal/api"
	"news-forecaster/internal/store"
	"news-forecaster/internal/trace"
	"news-forecaster/internal/types"
)

// Client implements interfaces.ProviderClient for one model.
type Client struct {
	provider string
	model    string
	cfg      store.ProviderConfig
	http     *api.Client
}

func New(provider, model, apiKey string, cfg store.ProviderConfig, opts ...api.ClientOption) *Client {
	base := []api.ClientOption{
		api.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
		api.WithHeader("Authorization", "Bearer "+apiKey),
		api.WithTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second),
		api.WithLogging(true),
	}
	if provider == store.ProviderOpenRouter {
		base = append(base, api.WithHeader("X-Title", "news-forecaster"))
	}
	return &Client{
		provider: provider,
		model:    model,
		cfg:      cfg,
		http:     api.NewClient(append(base, opts...)...),
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature *float32  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type apiError struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Type    string          `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

func (c *Client) Complete(ctx context.Context, systemInstruction, userContent string) (string, error) {
	ctx, span := trace.StartSpan(ctx, c.provider+"-api-call")
	defer span.End()

	req := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: userContent},
		},
		MaxTokens: c.cfg.MaxTokens,
	}
	if c.cfg.Temperature > 0 {
		t := c.cfg.Temperature
		req.Temperature = &t
	}

	resp, err := c.http.POST(ctx, "/chat/completions", req)
	if err != nil {
		return "", c.classify(err)
	}

	var r chatResponse
	if err := resp.ParseJSON(&r); err != nil {
		return "", c.fail(types.KindTransient, 0, err)
	}
	// OpenRouter reports upstream failures inside a 200 body
	if r.Error != nil {
		code := r.Error.statusCode()
		return "", c.fail(kindFor(code, r.Error.Message), code, errors.New(r.Error.Message))
	}
	if len(r.Choices) == 0 {
		return "", c.fail(types.KindTransient, 0, errors.New("no choices"))
	}
	return strings.TrimSpace(r.Choices[0].Message.Content), nil
}

func (c *Client) classify(err error) error {
	var se *api.StatusError
	if !errors.As(err, &se) {
		return c.fail(types.KindTransient, 0, err)
	}
	msg := string(se.Body)
	var body chatResponse
	if json.Unmarshal(se.Body, &body) == nil && body.Error != nil {
		msg = body.Error.Message + " " + body.Error.Type
	}
	return c.fail(kindFor(se.StatusCode, msg), se.StatusCode, err)
}

func (c *Client) fail(kind types.ErrorKind, status int, err error) error {
	return &types.ProviderError{Kind: kind, Provider: c.provider, Model: c.model, StatusCode: status, Err: err}
}

// kindFor maps an HTTP status and error text onto the normalized taxonomy.
func kindFor(status int, msg string) types.ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusPaymentRequired:
		return types.KindQuotaExceeded
	case status == http.StatusRequestEntityTooLarge:
		return types.KindPayloadTooLarge
	case status == http.StatusBadRequest && tooLarge(lower):
		return types.KindPayloadTooLarge
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "quota"):
		return types.KindQuotaExceeded
	}
	return types.KindTransient
}

func tooLarge(lower string) bool {
	for _, s := range []string{"too large", "context length", "context_length", "maximum context", "reduce the length", "too many tokens"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// statusCode reads the error code, which is a number on OpenRouter and a string on Groq.
func (e *apiError) statusCode() int {
	var n int
	if json.Unmarshal(e.Code, &n) == nil {
		return n
	}
	var s string
	if json.Unmarshal(e.Code, &s) == nil {
		var v int
		if _, err := fmt.Sscanf(s, "%d", &v); err == nil {
			return v
		}
	}
	return 0
}
