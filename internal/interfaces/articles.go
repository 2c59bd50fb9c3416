package interfaces

import (
	"context"

	"news-forecaster/internal/types"
)

// ArticleSink is the write side the scraper fills.
type ArticleSink interface {
	KnownLinks(ctx context.Context) (map[string]struct{}, error)
	InsertArticle(ctx context.Context, a *types.Article) (bool, error)
}
