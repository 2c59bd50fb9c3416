// Package price resolves anchor closing prices and converts percentage forecasts.
package price

import (
	"context"
	"errors"
	"fmt"
	"time"

	"news-forecaster/internal/interfaces"
	"news-forecaster/internal/logger"
	"news-forecaster/internal/retry"
)

var ErrPriceUnresolvable = errors.New("price unresolvable")

var errNoData = errors.New("no price data on or before trading day")

// LastTradingDay returns the calendar date of t, rolled back to Friday when it falls on a weekend.
// Exchange holidays are not considered; the window lookup in ClosingPrice absorbs them.
func LastTradingDay(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, -2)
	}
	return d
}

// Absolute converts a signed fractional change into a price target.
func Absolute(anchor, pct float64) float64 {
	return anchor * (1 + pct)
}

type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Sleep          retry.SleepFunc
}

// Anchor implements interfaces.PriceAnchor over a PriceSource.
type Anchor struct {
	src  interfaces.PriceSource
	opts Options
}

func NewAnchor(src interfaces.PriceSource, opts Options) *Anchor {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = 2 * time.Second
	}
	return &Anchor{src: src, opts: opts}
}

// ClosingPrice returns the close of the latest session on or before the
// last trading day of date, looking at most five days back.
func (a *Anchor) ClosingPrice(ctx context.Context, ticker string, date time.Time) (float64, time.Time, error) {
	day := LastTradingDay(date)
	op := logger.StartOperation(ctx, "price.Anchor", "ticker", ticker, "trading_day", day.Format("2006-01-02"))
	ctx = op.GetContext()

	start := day.AddDate(0, 0, -5)
	end := day.AddDate(0, 0, 1)

	var (
		closePx float64
		session time.Time
	)
	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: a.opts.MaxAttempts,
		InitialWait: a.opts.InitialBackoff,
		Sleep:       a.opts.Sleep,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			logger.Warn(ctx, "Price lookup failed, retrying",
				"ticker", ticker, "attempt", attempt, "wait", wait, "error", err)
		},
	}, func(ctx context.Context, _ int) error {
		bars, err := a.src.DailyBars(ctx, ticker, start, end)
		if err != nil {
			return err
		}
		found := false
		for _, b := range bars {
			t := time.Unix(b.Ts, 0).UTC()
			if t.After(day) || b.Close <= 0 {
				continue
			}
			if !found || t.After(session) {
				session, closePx, found = t, b.Close, true
			}
		}
		if !found {
			return errNoData
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("%w: %s on %s: %v", ErrPriceUnresolvable, ticker, day.Format("2006-01-02"), err)
		op.EndWithError(err)
		return 0, time.Time{}, err
	}

	op.End("close", closePx, "session", session.Format("2006-01-02"))
	return closePx, session, nil
}
