package interfaces

import (
	"context"
	"time"

	"news-forecaster/internal/types"
)

// PriceSource returns daily bars for ticker in [start, end).
type PriceSource interface {
	DailyBars(ctx context.Context, ticker string, start, end time.Time) ([]types.Candle, error)
}

// PriceAnchor resolves the closing price used as the base of a forecast.
// The returned time is the trading day the price belongs to.
type PriceAnchor interface {
	ClosingPrice(ctx context.Context, ticker string, date time.Time) (float64, time.Time, error)
}
