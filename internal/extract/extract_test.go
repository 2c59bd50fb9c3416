package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]any
		wantErr error
	}{
		{
			name: "preamble and trailing text",
			raw:  `some preamble {"a":1} trailing`,
			want: map[string]any{"a": json.Number("1")},
		},
		{
			name: "markdown fence",
			raw:  "```json\n{\n  \"ticker\": \"AAPL\",\n  \"prediction_1_day\": -0.02\n}\n```",
			want: map[string]any{"ticker": "AAPL", "prediction_1_day": json.Number("-0.02")},
		},
		{
			name: "first object wins",
			raw:  `{"a":"x"} and later {"b":"y"}`,
			want: map[string]any{"a": "x"},
		},
		{
			name:    "no braces",
			raw:     "I could not find anything useful.",
			wantErr: ErrNoJSONFound,
		},
		{
			name:    "only an opening brace",
			raw:     `{"a": 1`,
			wantErr: ErrNoJSONFound,
		},
		{
			name:    "broken JSON",
			raw:     `{"a": 1,}`,
			wantErr: ErrMalformedJSON,
		},
		{
			name:    "nested object is cut short",
			raw:     `{"a": {"b": 1}}`,
			wantErr: ErrMalformedJSON,
		},
		{
			name:    "decline marker",
			raw:     `ERROR-01`,
			wantErr: ErrModelDeclined,
		},
		{
			name:    "decline marker beats JSON",
			raw:     `{"ticker":"none"} ERROR-01`,
			wantErr: ErrModelDeclined,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JSONObject(tt.raw)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
