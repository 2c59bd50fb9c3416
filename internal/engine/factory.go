package engine

import (
	"news-forecaster/internal/interfaces"
	"news-forecaster/internal/store"
)

// New builds an Orchestrator from the loaded configuration and instruction texts.
func New(cfg *store.Config, individual, aggregated string, router interfaces.ProviderRouter, st interfaces.AnalysisStore, opts ...Option) *Orchestrator {
	maxPriority := 20
	if cfg.Analysis.MaxPriority != nil {
		maxPriority = *cfg.Analysis.MaxPriority
	}
	return newOrchestrator(Settings{
		Models:                cfg.Models,
		ForecastDays:          cfg.Analysis.ForecastDays,
		MaxPriority:           maxPriority,
		IndividualInstruction: individual,
		AggregatedInstruction: aggregated,
	}, router, st, opts...)
}
