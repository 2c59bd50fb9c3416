package interfaces

import (
	"context"
	"time"

	"news-forecaster/internal/types"
)

// AnalysisStore is the persistence surface the orchestrator depends on.
type AnalysisStore interface {
	ListArticlesByPriority(ctx context.Context) ([]types.Article, error)
	LoadProcessedArticleIDs(ctx context.Context, model string) (map[uint]struct{}, error)
	SaveAnalysis(ctx context.Context, article types.Article, model string, res types.ForecastResult) (*types.Analysis, error)
	SaveSummarizedAnalysis(ctx context.Context, model, ticker string, referenceDate time.Time, res types.ForecastResult) (*types.SummarizedAnalysis, error)
	FetchAggregationInput(ctx context.Context, ticker, model string) (time.Time, string, error)
	IncrementPriority(ctx context.Context, articleID uint) error
}

// AnalysisReader serves the read-only API.
type AnalysisReader interface {
	Stocks(ctx context.Context) ([]types.StockRef, error)
	AnalysesByTicker(ctx context.Context, ticker, model string) ([]types.Analysis, error)
	SummariesByTicker(ctx context.Context, ticker, model string) ([]types.SummarizedAnalysis, error)
}
