package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"news-forecaster/internal/interfaces"
	"news-forecaster/internal/price"
	"news-forecaster/internal/types"
)

var clock = time.Date(2025, 3, 20, 15, 4, 5, 0, time.UTC)

type fakeAnchor struct {
	price float64
	err   error
	calls []time.Time
}

func (f *fakeAnchor) ClosingPrice(_ context.Context, _ string, date time.Time) (float64, time.Time, error) {
	f.calls = append(f.calls, date)
	if f.err != nil {
		return 0, time.Time{}, f.err
	}
	return f.price, date, nil
}

type sleeps struct{ waits []time.Duration }

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newTestStore(t *testing.T, anchor interfaces.PriceAnchor) (*Store, *gorm.DB, *sleeps) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "news.db"), 1000)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	sl := &sleeps{}
	s := New(db, anchor, Options{Sleep: sl.sleep, Now: func() time.Time { return clock }})
	return s, db, sl
}

func seedArticle(t *testing.T, s *Store, link string, priority int) types.Article {
	t.Helper()
	a := types.Article{
		Link:      link,
		Title:     "title " + link,
		Published: time.Date(2025, 3, 15, 18, 30, 0, 0, time.UTC),
		Source:    "yahoo",
		Content:   "content",
		Priority:  priority,
	}
	ok, err := s.InsertArticle(context.Background(), &a)
	require.NoError(t, err)
	require.True(t, ok)
	return a
}

func forecast(ticker string, days int, change float64) types.ForecastResult {
	r := types.ForecastResult{Stock: "Apple Inc.", Ticker: ticker, Summary: "summary"}
	for d := 1; d <= days; d++ {
		r.Days = append(r.Days, types.DayForecast{Day: d, Change: change, Confidence: 0.5})
	}
	return r
}

func TestSaveAnalysisAnchorsPredictions(t *testing.T) {
	anchor := &fakeAnchor{price: 100}
	s, db, _ := newTestStore(t, anchor)
	ctx := context.Background()
	art := seedArticle(t, s, "https://x/1", 0)

	res := forecast("AAPL", 12, 0.01)
	res.Days[2].Change = -0.05

	saved, err := s.SaveAnalysis(ctx, art, "gemini-2.0-flash", res)
	require.NoError(t, err)
	require.Len(t, saved.Predictions, 12)
	assert.Equal(t, "2025-03-15", saved.Published)

	// published date itself is passed to the anchor, weekend rollback happens there
	require.Len(t, anchor.calls, 1)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), anchor.calls[0])

	var preds []types.Prediction
	require.NoError(t, db.Where("analysis_id = ?", saved.ID).Order("date").Find(&preds).Error)
	require.Len(t, preds, 12)
	assert.Equal(t, "2025-03-16", preds[0].Date)
	assert.Equal(t, "2025-03-18", preds[2].Date)
	assert.InDelta(t, 95.0, preds[2].Price, 1e-9)
	assert.InDelta(t, 101.0, preds[0].Price, 1e-9)
	assert.Equal(t, "2025-03-27", preds[11].Date)

	ids, err := s.LoadProcessedArticleIDs(ctx, "gemini-2.0-flash")
	require.NoError(t, err)
	assert.Contains(t, ids, art.ID)

	ids, err = s.LoadProcessedArticleIDs(ctx, "llama-3.1-8b-instant")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSaveAnalysisAbortsWithoutAnchor(t *testing.T) {
	anchor := &fakeAnchor{err: fmt.Errorf("%w: no data", price.ErrPriceUnresolvable)}
	s, db, _ := newTestStore(t, anchor)
	art := seedArticle(t, s, "https://x/1", 0)

	_, err := s.SaveAnalysis(context.Background(), art, "m", forecast("AAPL", 12, 0))
	require.ErrorIs(t, err, price.ErrPriceUnresolvable)

	var n int64
	require.NoError(t, db.Model(&types.Analysis{}).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, db.Model(&types.Prediction{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSaveAnalysisIsUniquePerModelAndArticle(t *testing.T) {
	s, _, sl := newTestStore(t, &fakeAnchor{price: 10})
	ctx := context.Background()
	art := seedArticle(t, s, "https://x/1", 0)

	_, err := s.SaveAnalysis(ctx, art, "m", forecast("AAPL", 12, 0))
	require.NoError(t, err)

	_, err = s.SaveAnalysis(ctx, art, "m", forecast("AAPL", 12, 0))
	require.ErrorIs(t, err, ErrFatal)
	assert.NotErrorIs(t, err, ErrLockContention)
	assert.Empty(t, sl.waits)

	_, err = s.SaveAnalysis(ctx, art, "other-model", forecast("AAPL", 12, 0))
	require.NoError(t, err)
}

func TestSaveSummarizedAnalysisReplacesPredictions(t *testing.T) {
	anchor := &fakeAnchor{price: 200}
	s, db, _ := newTestStore(t, anchor)
	ctx := context.Background()
	ref := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	first, err := s.SaveSummarizedAnalysis(ctx, "m", "AAPL", ref, forecast("AAPL", 12, 0.1))
	require.NoError(t, err)
	require.Len(t, first.Predictions, 12)

	short := forecast("AAPL", 5, -0.1)
	short.Summary = "updated"
	second, err := s.SaveSummarizedAnalysis(ctx, "m", "AAPL", ref, short)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var preds []types.SummarizedPrediction
	require.NoError(t, db.Where("summarized_analysis_id = ?", first.ID).Order("date").Find(&preds).Error)
	require.Len(t, preds, 5)
	assert.Equal(t, "2025-03-21", preds[0].Date)
	assert.InDelta(t, 180.0, preds[0].Price, 1e-9)

	var rows []types.SummarizedAnalysis
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "updated", rows[0].SummaryText)
	assert.True(t, rows[0].LastUpdated.Equal(clock))

	var total int64
	require.NoError(t, db.Model(&types.SummarizedPrediction{}).Count(&total).Error)
	assert.Equal(t, int64(5), total)
}

func TestSaveSummarizedAnalysisAbortsWithoutAnchor(t *testing.T) {
	anchor := &fakeAnchor{price: 200}
	s, db, _ := newTestStore(t, anchor)
	ctx := context.Background()
	ref := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	_, err := s.SaveSummarizedAnalysis(ctx, "m", "AAPL", ref, forecast("AAPL", 12, 0.1))
	require.NoError(t, err)

	anchor.err = price.ErrPriceUnresolvable
	_, err = s.SaveSummarizedAnalysis(ctx, "m", "AAPL", ref, forecast("AAPL", 3, 0.1))
	require.ErrorIs(t, err, price.ErrPriceUnresolvable)

	var total int64
	require.NoError(t, db.Model(&types.SummarizedPrediction{}).Count(&total).Error)
	assert.Equal(t, int64(12), total)
}

func TestSaveSummarizedAnalysisSurvivesLockWithConcurrentWriter(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "news.db"), 1000)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	ctx := context.Background()
	ref := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	// the first prediction delete of the run reports a locked database
	locked := false
	require.NoError(t, db.Callback().Delete().Before("gorm:delete").Register("test:lock_once", func(tx *gorm.DB) {
		if !locked {
			locked = true
			_ = tx.AddError(errors.New("database is locked"))
		}
	}))

	// another process writes a summary while this one backs off
	var waits []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return db.Create(&types.SummarizedAnalysis{ModelName: "other", Ticker: "MSFT", LastUpdated: clock}).Error
	}
	s := New(db, &fakeAnchor{price: 200}, Options{Sleep: sleep, Now: func() time.Time { return clock }})

	saved, err := s.SaveSummarizedAnalysis(ctx, "m", "AAPL", ref, forecast("AAPL", 12, 0.1))
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, []time.Duration{time.Second}, waits)
	assert.Equal(t, "AAPL", saved.Ticker)
	require.Len(t, saved.Predictions, 12)

	var row types.SummarizedAnalysis
	require.NoError(t, db.Where("model_name = ? AND ticker = ?", "m", "AAPL").First(&row).Error)
	assert.Equal(t, row.ID, saved.ID)

	var preds []types.SummarizedPrediction
	require.NoError(t, db.Where("summarized_analysis_id = ?", row.ID).Find(&preds).Error)
	assert.Len(t, preds, 12)

	var total int64
	require.NoError(t, db.Model(&types.SummarizedAnalysis{}).Count(&total).Error)
	assert.Equal(t, int64(2), total)
}

func TestFetchAggregationInput(t *testing.T) {
	s, _, _ := newTestStore(t, &fakeAnchor{price: 100})
	ctx := context.Background()
	a1 := seedArticle(t, s, "https://x/1", 0)
	a2 := seedArticle(t, s, "https://x/2", 0)
	a3 := seedArticle(t, s, "https://x/3", 0)

	_, err := s.SaveAnalysis(ctx, a1, "m", forecast("AAPL", 2, 0))
	require.NoError(t, err)
	_, err = s.SaveAnalysis(ctx, a2, "m", forecast("AAPL", 2, 0.5))
	require.NoError(t, err)
	_, err = s.SaveAnalysis(ctx, a3, "m", forecast("MSFT", 2, 0))
	require.NoError(t, err)
	_, err = s.SaveAnalysis(ctx, a3, "other", forecast("AAPL", 2, 0))
	require.NoError(t, err)

	ref, prompt, err := s.FetchAggregationInput(ctx, "AAPL", "m")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), ref)

	header := "Metadata:\nToday's date: 2025-03-20\nArticles Processed: 2\nTicker: AAPL\n"
	require.True(t, strings.HasPrefix(prompt, header), prompt)

	body := strings.TrimPrefix(prompt, header)
	assert.True(t, strings.HasPrefix(body, "[\n    {\n        \"analysis_id\": 1,"), body)
	assert.Contains(t, body, `"published": "2025-03-15"`)
	assert.Contains(t, body, `"date": "2025-03-16"`)
	assert.Contains(t, body, `"prediction": 150`)
	assert.Equal(t, 4, strings.Count(body, `"confidence": 0.5`))

	_, empty, err := s.FetchAggregationInput(ctx, "NVDA", "m")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(empty, "Articles Processed: 0\nTicker: NVDA\n[]"), empty)
}

func TestArticlesPriorityAndLinks(t *testing.T) {
	s, _, _ := newTestStore(t, nil)
	ctx := context.Background()
	high := seedArticle(t, s, "https://x/high", 3)
	low := seedArticle(t, s, "https://x/low", 0)

	dup := types.Article{Link: "https://x/low", Published: time.Now()}
	ok, err := s.InsertArticle(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.IncrementPriority(ctx, low.ID))

	list, err := s.ListArticlesByPriority(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, low.ID, list[0].ID)
	assert.Equal(t, 1, list[0].Priority)
	assert.Equal(t, high.ID, list[1].ID)

	links, err := s.KnownLinks(ctx)
	require.NoError(t, err)
	assert.Len(t, links, 2)
	assert.Contains(t, links, "https://x/high")
}

func TestReadQueries(t *testing.T) {
	s, _, _ := newTestStore(t, &fakeAnchor{price: 100})
	ctx := context.Background()
	a1 := seedArticle(t, s, "https://x/1", 0)

	_, err := s.SaveAnalysis(ctx, a1, "m1", forecast("AAPL", 3, 0))
	require.NoError(t, err)
	_, err = s.SaveAnalysis(ctx, a1, "m2", forecast("AAPL", 3, 0))
	require.NoError(t, err)
	_, err = s.SaveSummarizedAnalysis(ctx, "m1", "AAPL", clock, forecast("AAPL", 3, 0))
	require.NoError(t, err)

	stocks, err := s.Stocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.StockRef{{Ticker: "AAPL", Stock: "Apple Inc."}}, stocks)

	all, err := s.AnalysesByTicker(ctx, "AAPL", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, all[0].Predictions, 3)

	one, err := s.AnalysesByTicker(ctx, "AAPL", "m2")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "m2", one[0].ModelName)

	sums, err := s.SummariesByTicker(ctx, "AAPL", "")
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Len(t, sums[0].Predictions, 3)
	assert.Equal(t, "2025-03-21", sums[0].Predictions[0].Date)
}

func TestWriteRetriesWhileLocked(t *testing.T) {
	s, _, sl := newTestStore(t, nil)
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	calls := 0

	err := s.write(context.Background(), "test", func(*gorm.DB) error {
		calls++
		if calls < 3 {
			return busy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sl.waits)
}

func TestWriteGivesUpAfterFiveAttempts(t *testing.T) {
	s, _, sl := newTestStore(t, nil)
	calls := 0

	err := s.write(context.Background(), "test", func(*gorm.DB) error {
		calls++
		return errors.New("database is locked")
	})
	require.ErrorIs(t, err, ErrLockContention)
	require.ErrorIs(t, err, ErrFatal)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, sl.waits)
}

func TestIsLocked(t *testing.T) {
	assert.True(t, isLocked(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, isLocked(fmt.Errorf("wrap: %w", sqlite3.Error{Code: sqlite3.ErrLocked})))
	assert.True(t, isLocked(errors.New("database is locked")))
	assert.False(t, isLocked(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, isLocked(errors.New("no such table: analysis")))
	assert.False(t, isLocked(nil))
}
