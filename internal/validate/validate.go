// Package validate checks extracted replies against the forecast schema.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"news-forecaster/internal/types"
)

var ErrSchemaInvalid = errors.New("reply does not match forecast schema")

var invalidTokens = map[string]struct{}{
	"":              {},
	"none":          {},
	"unknown":       {},
	"null":          {},
	"n/a":           {},
	"error":         {},
	"not available": {},
}

// Individual validates a per-article reply. Days 1..days are required;
// later days up to types.MaxForecastDays are kept only when well formed.
func Individual(m map[string]any, days int) (types.ForecastResult, error) {
	return check(m, days, true)
}

// Aggregated validates an aggregation reply. summary may be absent.
func Aggregated(m map[string]any, days int) (types.ForecastResult, error) {
	return check(m, days, false)
}

func check(m map[string]any, days int, requireSummary bool) (types.ForecastResult, error) {
	if days < 1 || days > types.MaxForecastDays {
		return types.ForecastResult{}, fmt.Errorf("forecast horizon %d out of range 1..%d", days, types.MaxForecastDays)
	}

	var res types.ForecastResult

	stock, err := identifier(m, "stock")
	if err != nil {
		return types.ForecastResult{}, err
	}
	ticker, err := identifier(m, "ticker")
	if err != nil {
		return types.ForecastResult{}, err
	}
	res.Stock = stock
	res.Ticker = strings.ToUpper(ticker)

	summary, ok := m["summary"]
	if !ok && requireSummary {
		return types.ForecastResult{}, invalid("missing key summary")
	}
	if ok && summary != nil {
		res.Summary = strings.TrimSpace(text(summary))
	}

	for d := 1; d <= types.MaxForecastDays; d++ {
		f, err := day(m, d)
		if err != nil {
			if d <= days {
				return types.ForecastResult{}, err
			}
			continue
		}
		res.Days = append(res.Days, f)
	}
	return res, nil
}

func identifier(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", invalid("missing key %s", key)
	}
	if v == nil {
		return "", invalid("%s is null", key)
	}
	s := strings.TrimSpace(text(v))
	if _, bad := invalidTokens[strings.ToLower(s)]; bad {
		return "", invalid("%s has placeholder value %q", key, s)
	}
	return s, nil
}

func day(m map[string]any, d int) (types.DayForecast, error) {
	pk := fmt.Sprintf("prediction_%d_day", d)
	ck := fmt.Sprintf("confidence_%d_day", d)

	p, err := number(m, pk)
	if err != nil {
		return types.DayForecast{}, err
	}
	if !(p >= -1.0 && p <= 1.0) {
		return types.DayForecast{}, invalid("%s=%v outside [-1,1]", pk, p)
	}
	c, err := number(m, ck)
	if err != nil {
		return types.DayForecast{}, err
	}
	if !(c >= 0.0 && c <= 1.0) {
		return types.DayForecast{}, invalid("%s=%v outside [0,1]", ck, c)
	}
	return types.DayForecast{Day: d, Change: p, Confidence: c}, nil
}

// number accepts JSON numbers and numeric strings. Booleans and null are rejected.
func number(m map[string]any, key string) (float64, error) {
	v, ok := m[key]
	if !ok {
		return 0, invalid("missing key %s", key)
	}
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case json.Number:
		f, err = n.Float64()
	case float64:
		f = n
	case int:
		f = float64(n)
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, invalid("%s has non-numeric value %v", key, v)
	}
	if err != nil {
		return 0, invalid("%s is not a number: %v", key, err)
	}
	return f, nil
}

func text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrSchemaInvalid}, args...)...)
}
