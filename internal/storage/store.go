package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"news-forecaster/internal/interfaces"
	"news-forecaster/internal/logger"
	"news-forecaster/internal/price"
	"news-forecaster/internal/retry"
	"news-forecaster/internal/types"
)

type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Sleep          retry.SleepFunc
	// Now is the clock used for aggregation reference dates and last_updated.
	Now func() time.Time
}

// Store owns every read and write against the shared database.
type Store struct {
	db     *gorm.DB
	anchor interfaces.PriceAnchor
	opts   Options
}

// New wraps db. anchor may be nil for read-only users.
func New(db *gorm.DB, anchor interfaces.PriceAnchor, opts Options) *Store {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{db: db, anchor: anchor, opts: opts}
}

// write runs fn in one transaction, retrying the whole transaction while the
// database reports it is locked.
func (s *Store) write(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: s.opts.MaxAttempts,
		InitialWait: s.opts.InitialBackoff,
		Sleep:       s.opts.Sleep,
		Retryable:   isLocked,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			logger.Warn(ctx, "Database locked, retrying",
				"operation", op, "attempt", attempt, "max_attempts", s.opts.MaxAttempts, "wait", wait)
		},
	}, func(ctx context.Context, _ int) error {
		return s.db.WithContext(ctx).Transaction(fn)
	})
	if err == nil {
		return nil
	}

	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		return fmt.Errorf("%s: %w: %w after %d attempts: %v", op, ErrFatal, ErrLockContention, ex.Attempts, ex.Err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrFatal, err)
}

func (s *Store) ListArticlesByPriority(ctx context.Context) ([]types.Article, error) {
	var articles []types.Article
	err := s.db.WithContext(ctx).Order("priority ASC, id ASC").Find(&articles).Error
	return articles, err
}

func (s *Store) LoadProcessedArticleIDs(ctx context.Context, model string) (map[uint]struct{}, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&types.Analysis{}).
		Where("model_name = ?", model).
		Pluck("article_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// SaveAnalysis anchors res on the article's publication date and stores the
// analysis with one prediction per forecast day. Nothing is written when the
// anchor price cannot be resolved.
func (s *Store) SaveAnalysis(ctx context.Context, article types.Article, model string, res types.ForecastResult) (*types.Analysis, error) {
	op := logger.StartOperation(ctx, "storage.SaveAnalysis", "article_id", article.ID, "model", model, "ticker", res.Ticker)
	ctx = op.GetContext()

	published := dateOf(article.Published)
	base, err := s.anchorPrice(ctx, res.Ticker, published)
	if err != nil {
		op.EndWithError(err)
		return nil, err
	}

	var saved types.Analysis
	err = s.write(ctx, "save analysis", func(tx *gorm.DB) error {
		saved = types.Analysis{
			ArticleID:   article.ID,
			ModelName:   model,
			Published:   published.Format(types.DateLayout),
			Ticker:      res.Ticker,
			Stock:       res.Stock,
			Summary:     res.Summary,
			Predictions: predictions(published, base, res.Days),
		}
		return tx.Create(&saved).Error
	})
	if err != nil {
		op.EndWithError(err)
		return nil, err
	}

	op.End("analysis_id", saved.ID, "predictions", len(saved.Predictions), "anchor", base)
	return &saved, nil
}

// SaveSummarizedAnalysis upserts the (model, ticker) summary and replaces its predictions.
func (s *Store) SaveSummarizedAnalysis(ctx context.Context, model, ticker string, referenceDate time.Time, res types.ForecastResult) (*types.SummarizedAnalysis, error) {
	op := logger.StartOperation(ctx, "storage.SaveSummarizedAnalysis", "model", model, "ticker", ticker)
	ctx = op.GetContext()

	ref := dateOf(referenceDate)
	base, err := s.anchorPrice(ctx, ticker, ref)
	if err != nil {
		op.EndWithError(err)
		return nil, err
	}

	var saved types.SummarizedAnalysis
	err = s.write(ctx, "save summarized analysis", func(tx *gorm.DB) error {
		row := types.SummarizedAnalysis{
			ModelName:   model,
			Ticker:      ticker,
			LastUpdated: s.opts.Now().UTC(),
			SummaryText: res.Summary,
		}
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "model_name"}, {Name: "ticker"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_updated", "summary_text"}),
		}).Create(&row).Error; err != nil {
			return err
		}

		// scan into a fresh row: a rolled back attempt must not leak its id into the lookup
		var current types.SummarizedAnalysis
		if err := tx.Where("model_name = ? AND ticker = ?", model, ticker).First(&current).Error; err != nil {
			return err
		}
		if err := tx.Where("summarized_analysis_id = ?", current.ID).Delete(&types.SummarizedPrediction{}).Error; err != nil {
			return err
		}

		for _, p := range predictions(ref, base, res.Days) {
			current.Predictions = append(current.Predictions, types.SummarizedPrediction{
				SummarizedAnalysisID: current.ID,
				Date:                 p.Date,
				Price:                p.Price,
				Confidence:           p.Confidence,
			})
		}
		if len(current.Predictions) > 0 {
			if err := tx.Create(&current.Predictions).Error; err != nil {
				return err
			}
		}
		saved = current
		return nil
	})
	if err != nil {
		op.EndWithError(err)
		return nil, err
	}

	op.End("summary_id", saved.ID, "predictions", len(saved.Predictions), "anchor", base)
	return &saved, nil
}

// FetchAggregationInput builds the aggregation prompt for (ticker, model) from every
// stored analysis and its predictions. The returned date is today, the reference
// date of the aggregated forecast.
func (s *Store) FetchAggregationInput(ctx context.Context, ticker, model string) (time.Time, string, error) {
	type row struct {
		ID         uint
		Published  string
		Summary    string
		Date       string
		Prediction float64
		Confidence float64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Table("analysis AS a").
		Select("a.id, a.published, a.summary, p.date, p.prediction, p.confidence").
		Joins("JOIN predictions AS p ON a.id = p.analysis_id").
		Where("a.ticker = ? AND a.model_name = ?", ticker, model).
		Order("a.id, p.date").
		Scan(&rows).Error
	if err != nil {
		return time.Time{}, "", err
	}

	entries := make([]*types.AggregationEntry, 0)
	byID := make(map[uint]*types.AggregationEntry)
	for _, r := range rows {
		e, ok := byID[r.ID]
		if !ok {
			e = &types.AggregationEntry{
				AnalysisID:  r.ID,
				Published:   r.Published,
				Summary:     r.Summary,
				Predictions: []types.AggregationPoint{},
			}
			byID[r.ID] = e
			entries = append(entries, e)
		}
		e.Predictions = append(e.Predictions, types.AggregationPoint{
			Date:       r.Date,
			Prediction: r.Prediction,
			Confidence: r.Confidence,
		})
	}

	today := dateOf(s.opts.Now())
	payload, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return time.Time{}, "", err
	}

	var b strings.Builder
	b.WriteString("Metadata:\n")
	fmt.Fprintf(&b, "Today's date: %s\n", today.Format(types.DateLayout))
	fmt.Fprintf(&b, "Articles Processed: %d\n", len(entries))
	fmt.Fprintf(&b, "Ticker: %s\n", ticker)
	b.Write(payload)
	return today, b.String(), nil
}

func (s *Store) IncrementPriority(ctx context.Context, articleID uint) error {
	return s.write(ctx, "increment priority", func(tx *gorm.DB) error {
		return tx.Model(&types.Article{}).
			Where("id = ?", articleID).
			UpdateColumn("priority", gorm.Expr("priority + ?", 1)).Error
	})
}

// InsertArticle stores a new article. It reports false when the link is already known.
func (s *Store) InsertArticle(ctx context.Context, a *types.Article) (bool, error) {
	var inserted bool
	err := s.write(ctx, "insert article", func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "link"}},
			DoNothing: true,
		}).Create(a)
		inserted = res.RowsAffected == 1
		return res.Error
	})
	return inserted, err
}

func (s *Store) KnownLinks(ctx context.Context) (map[string]struct{}, error) {
	var links []string
	if err := s.db.WithContext(ctx).Model(&types.Article{}).Pluck("link", &links).Error; err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(links))
	for _, l := range links {
		out[l] = struct{}{}
	}
	return out, nil
}

func (s *Store) Stocks(ctx context.Context) ([]types.StockRef, error) {
	var refs []types.StockRef
	err := s.db.WithContext(ctx).Model(&types.Analysis{}).
		Distinct("ticker", "stock").
		Order("ticker, stock").
		Scan(&refs).Error
	return refs, err
}

// AnalysesByTicker returns the analyses of ticker, newest first. An empty model matches all.
func (s *Store) AnalysesByTicker(ctx context.Context, ticker, model string) ([]types.Analysis, error) {
	q := s.db.WithContext(ctx).
		Preload("Predictions", func(db *gorm.DB) *gorm.DB { return db.Order("date ASC") }).
		Where("ticker = ?", ticker)
	if model != "" {
		q = q.Where("model_name = ?", model)
	}
	var out []types.Analysis
	err := q.Order("id DESC").Find(&out).Error
	return out, err
}

// SummariesByTicker returns the aggregated forecasts of ticker. An empty model matches all.
func (s *Store) SummariesByTicker(ctx context.Context, ticker, model string) ([]types.SummarizedAnalysis, error) {
	q := s.db.WithContext(ctx).
		Preload("Predictions", func(db *gorm.DB) *gorm.DB { return db.Order("date ASC") }).
		Where("ticker = ?", ticker)
	if model != "" {
		q = q.Where("model_name = ?", model)
	}
	var out []types.SummarizedAnalysis
	err := q.Order("model_name ASC").Find(&out).Error
	return out, err
}

func (s *Store) anchorPrice(ctx context.Context, ticker string, date time.Time) (float64, error) {
	if s.anchor == nil {
		return 0, fmt.Errorf("%w: no price anchor configured", ErrFatal)
	}
	base, _, err := s.anchor.ClosingPrice(ctx, ticker, date)
	if err != nil {
		return 0, err
	}
	return base, nil
}

// predictions converts fractional changes into absolute targets dated day days after from.
func predictions(from time.Time, base float64, days []types.DayForecast) []types.Prediction {
	out := make([]types.Prediction, 0, len(days))
	for _, d := range days {
		out = append(out, types.Prediction{
			Date:       from.AddDate(0, 0, d.Day).Format(types.DateLayout),
			Price:      price.Absolute(base, d.Change),
			Confidence: d.Confidence,
		})
	}
	return out
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
