package gemini

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"

	"news-forecaster/internal/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorKind
	}{
		{"quota by code", genai.APIError{Code: 429, Message: "quota exceeded", Status: "RESOURCE_EXHAUSTED"}, types.KindQuotaExceeded},
		{"quota by status", genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED"}, types.KindQuotaExceeded},
		{"wrapped quota", fmt.Errorf("call: %w", genai.APIError{Code: 429}), types.KindQuotaExceeded},
		{"too large", genai.APIError{Code: 413}, types.KindPayloadTooLarge},
		{"token limit", genai.APIError{Code: 400, Message: "The input token count (1200000) exceeds the maximum", Status: "INVALID_ARGUMENT"}, types.KindPayloadTooLarge},
		{"invalid argument", genai.APIError{Code: 400, Message: "API key not valid", Status: "INVALID_ARGUMENT"}, types.KindTransient},
		{"server error", genai.APIError{Code: 500, Status: "INTERNAL"}, types.KindTransient},
		{"unavailable", genai.APIError{Code: 503, Status: "UNAVAILABLE"}, types.KindTransient},
		{"plain quota text", errors.New("Error 429, Status: RESOURCE_EXHAUSTED"), types.KindQuotaExceeded},
		{"network", errors.New("dial tcp: connection refused"), types.KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, 429, statusOf(genai.APIError{Code: 429}))
	assert.Equal(t, 0, statusOf(errors.New("x")))
}
