package price

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"news-forecaster/internal/api"
	"news-forecaster/internal/types"
)

// YahooSource reads daily bars from the Yahoo Finance chart endpoint.
type YahooSource struct {
	client *api.Client
}

func NewYahooSource(baseURL string, opts ...api.ClientOption) *YahooSource {
	base := []api.ClientOption{
		api.WithBaseURL(baseURL),
		api.WithHeaders(api.YahooFinanceHeaders()),
		api.WithTimeout(20 * time.Second),
		api.WithLogging(true),
	}
	return &YahooSource{client: api.NewClient(append(base, opts...)...)}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				GMTOffset int64 `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// DailyBars returns one candle per session in [start, end). Candle.Ts is the
// session date at 00:00 UTC in the exchange's local calendar. Sessions without a
// close are dropped.
func (s *YahooSource) DailyBars(ctx context.Context, ticker string, start, end time.Time) ([]types.Candle, error) {
	q := url.Values{}
	q.Set("period1", fmt.Sprint(start.Unix()))
	q.Set("period2", fmt.Sprint(end.Unix()))
	q.Set("interval", "1d")
	q.Set("events", "history")
	path := "/v8/finance/chart/" + url.PathEscape(ticker) + "?" + q.Encode()

	resp, err := s.client.GET(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", ticker, err)
	}

	var cr chartResponse
	if err := resp.ParseJSON(&cr); err != nil {
		return nil, err
	}
	if cr.Chart.Error != nil {
		return nil, fmt.Errorf("chart %s: %s: %s", ticker, cr.Chart.Error.Code, cr.Chart.Error.Description)
	}
	if len(cr.Chart.Result) == 0 || len(cr.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	r := cr.Chart.Result[0]
	quote := r.Indicators.Quote[0]
	out := make([]types.Candle, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		c := at(quote.Close, i)
		if c == 0 {
			continue
		}
		local := time.Unix(ts+r.Meta.GMTOffset, 0).UTC()
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		out = append(out, types.Candle{
			Ts:    day.Unix(),
			Open:  at(quote.Open, i),
			High:  at(quote.High, i),
			Low:   at(quote.Low, i),
			Close: c,
			Vol:   at(quote.Volume, i),
		})
	}
	return out, nil
}

func at(xs []*float64, i int) float64 {
	if i >= len(xs) || xs[i] == nil {
		return 0
	}
	return *xs[i]
}
