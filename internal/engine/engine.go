package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"news-forecaster/internal/extract"
	"news-forecaster/internal/interfaces"
	"news-forecaster/internal/logger"
	"news-forecaster/internal/runlog"
	"news-forecaster/internal/trace"
	"news-forecaster/internal/types"
	"news-forecaster/internal/validate"
)

// Settings are the orchestrator inputs that come from configuration.
type Settings struct {
	Models                []string
	ForecastDays          int
	MaxPriority           int
	IndividualInstruction string
	AggregatedInstruction string
}

type Option func(*Orchestrator)

// WithShuffle replaces the per-pass model shuffle.
func WithShuffle(fn func([]string)) Option {
	return func(o *Orchestrator) { o.shuffle = fn }
}

// WithFailureLog records every non-Saved outcome to l.
func WithFailureLog(l *runlog.Log) Option {
	return func(o *Orchestrator) { o.failures = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator drives every configured model over the unprocessed article backlog.
type Orchestrator struct {
	settings Settings
	router   interfaces.ProviderRouter
	store    interfaces.AnalysisStore
	failures *runlog.Log
	shuffle  func([]string)
	now      func() time.Time
}

func newOrchestrator(s Settings, router interfaces.ProviderRouter, st interfaces.AnalysisStore, opts ...Option) *Orchestrator {
	if s.ForecastDays == 0 {
		s.ForecastDays = types.MaxForecastDays
	}
	o := &Orchestrator{
		settings: s,
		router:   router,
		store:    st,
		now:      time.Now,
		shuffle: func(m []string) {
			rand.Shuffle(len(m), func(i, j int) { m[i], m[j] = m[j], m[i] })
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type passKey struct{}

func passID(ctx context.Context) string {
	id, _ := ctx.Value(passKey{}).(string)
	return id
}

// RunPass processes every model once, in random order. A model whose
// provider reports quota exhaustion stops for the rest of the pass.
func (o *Orchestrator) RunPass(ctx context.Context) (types.PassStats, error) {
	stats := types.PassStats{PassID: uuid.NewString(), Started: o.now(), Outcomes: map[string]int{}}
	ctx = context.WithValue(ctx, passKey{}, stats.PassID)

	articles, err := o.store.ListArticlesByPriority(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to list articles", err)
		return stats, err
	}

	models := append([]string(nil), o.settings.Models...)
	o.shuffle(models)
	logger.Info(ctx, "Pass started", "pass_id", stats.PassID, "models", models, "articles", len(articles))

	for _, model := range models {
		if err := ctx.Err(); err != nil {
			stats.Finished = o.now()
			return stats, err
		}
		stats.Models++
		o.runModel(ctx, model, articles, &stats)
	}

	stats.Finished = o.now()
	return stats, nil
}

func (o *Orchestrator) runModel(ctx context.Context, model string, articles []types.Article, stats *types.PassStats) {
	client, err := o.router.For(model)
	if err != nil {
		logger.ErrorWithErr(ctx, "No client for model, skipping", err, "model", model)
		return
	}
	processed, err := o.store.LoadProcessedArticleIDs(ctx, model)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load processed articles", err, "model", model)
		return
	}

	for _, a := range articles {
		if _, done := processed[a.ID]; done {
			continue
		}
		if a.Priority > o.settings.MaxPriority {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		state, res := o.ProcessArticle(ctx, client, model, a)
		stats.Count(state.String())

		if state == QuotaExceeded {
			stats.QuotaAborts = append(stats.QuotaAborts, model)
			logger.Warn(ctx, "Quota exceeded, stopping model for this pass", "model", model, "article_id", a.ID)
			return
		}
		if state != Saved {
			continue
		}

		agg := o.Aggregate(ctx, client, model, res.Ticker)
		switch agg {
		case Saved:
			stats.Aggregated++
		case QuotaExceeded:
			stats.Count("aggregate_" + agg.String())
			stats.QuotaAborts = append(stats.QuotaAborts, model)
			logger.Warn(ctx, "Quota exceeded during aggregation, stopping model for this pass", "model", model, "ticker", res.Ticker)
			return
		default:
			stats.Count("aggregate_" + agg.String())
		}
	}
}

// ProcessArticle runs one article through client, extraction, validation and
// storage. The result is non-nil only when the state is Saved.
func (o *Orchestrator) ProcessArticle(ctx context.Context, client interfaces.ProviderClient, model string, article types.Article) (State, *types.ForecastResult) {
	ctx, span := trace.StartArticle(ctx, model, article.ID, article.Priority)
	defer span.End()

	logger.Debug(ctx, "Dispatching article", "model", model, "article_id", article.ID, "priority", article.Priority)

	raw, err := client.Complete(ctx, o.settings.IndividualInstruction, article.Content)
	if err != nil {
		state := stateForKind(types.KindOf(err))
		o.articleOutcome(ctx, model, article, state, err)
		return state, nil
	}

	m, err := extract.JSONObject(raw)
	switch {
	case errors.Is(err, extract.ErrModelDeclined):
		if perr := o.store.IncrementPriority(ctx, article.ID); perr != nil {
			logger.ErrorWithErr(ctx, "Failed to escalate priority", perr, "article_id", article.ID)
		} else {
			logger.Escalation(ctx, article.ID, model, "priority", article.Priority+1)
		}
		o.articleOutcome(ctx, model, article, Declined, err)
		return Declined, nil
	case err != nil:
		o.articleOutcome(ctx, model, article, ParseFailed, err)
		return ParseFailed, nil
	}

	res, err := validate.Individual(m, o.settings.ForecastDays)
	if err != nil {
		o.articleOutcome(ctx, model, article, ValidationFailed, err)
		return ValidationFailed, nil
	}

	if _, err := o.store.SaveAnalysis(ctx, article, model, res); err != nil {
		o.articleOutcome(ctx, model, article, SaveFailed, err)
		return SaveFailed, nil
	}

	o.articleOutcome(ctx, model, article, Saved, nil, "ticker", res.Ticker)
	return Saved, &res
}

// Aggregate folds every stored analysis of (ticker, model) into one summarized forecast.
func (o *Orchestrator) Aggregate(ctx context.Context, client interfaces.ProviderClient, model, ticker string) State {
	ctx, span := trace.StartAggregate(ctx, model, ticker)
	defer span.End()

	ref, prompt, err := o.store.FetchAggregationInput(ctx, ticker, model)
	if err != nil {
		o.aggregateOutcome(ctx, model, ticker, SaveFailed, err)
		return SaveFailed
	}

	raw, err := client.Complete(ctx, o.settings.AggregatedInstruction, prompt)
	if err != nil {
		state := stateForKind(types.KindOf(err))
		o.aggregateOutcome(ctx, model, ticker, state, err)
		return state
	}

	m, err := extract.JSONObject(raw)
	switch {
	case errors.Is(err, extract.ErrModelDeclined):
		o.aggregateOutcome(ctx, model, ticker, Declined, err)
		return Declined
	case err != nil:
		o.aggregateOutcome(ctx, model, ticker, ParseFailed, err)
		return ParseFailed
	}

	res, err := validate.Aggregated(m, o.settings.ForecastDays)
	if err != nil {
		o.aggregateOutcome(ctx, model, ticker, ValidationFailed, err)
		return ValidationFailed
	}

	if _, err := o.store.SaveSummarizedAnalysis(ctx, model, ticker, ref, res); err != nil {
		o.aggregateOutcome(ctx, model, ticker, SaveFailed, err)
		return SaveFailed
	}

	o.aggregateOutcome(ctx, model, ticker, Saved, nil)
	return Saved
}

func (o *Orchestrator) articleOutcome(ctx context.Context, model string, a types.Article, state State, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "reason", err.Error())
	}
	logger.Outcome(ctx, model, a.ID, state.String(), append(fields, "link", a.Link)...)
	if state == Saved {
		return
	}
	o.recordFailure(ctx, runlog.Entry{
		Phase:     "article",
		Model:     model,
		ArticleID: a.ID,
		Link:      a.Link,
		State:     state.String(),
		Reason:    reason(err),
	})
}

func (o *Orchestrator) aggregateOutcome(ctx context.Context, model, ticker string, state State, err error) {
	if state == Saved {
		logger.Info(ctx, "Aggregation saved", "model", model, "ticker", ticker)
		return
	}
	logger.Warn(ctx, "Aggregation failed", "model", model, "ticker", ticker, "state", state.String(), "reason", reason(err))
	o.recordFailure(ctx, runlog.Entry{
		Phase:  "aggregate",
		Model:  model,
		Ticker: ticker,
		State:  state.String(),
		Reason: reason(err),
	})
}

func (o *Orchestrator) recordFailure(ctx context.Context, e runlog.Entry) {
	if o.failures == nil {
		return
	}
	e.PassID = passID(ctx)
	if err := o.failures.Append(e); err != nil {
		logger.ErrorWithErr(ctx, "Failed to write failure log", err)
	}
}

func reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
