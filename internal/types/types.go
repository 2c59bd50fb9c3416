package types

import "time"

// MaxForecastDays is the widest horizon a reply may carry.
const MaxForecastDays = 12

// Candle is one daily bar from the price source. Ts is the session date in unix seconds.
type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// DayForecast is a validated per-day forecast. Change is a signed fraction in [-1,1].
type DayForecast struct {
	Day        int     `json:"day"`
	Change     float64 `json:"change"`
	Confidence float64 `json:"confidence"`
}

// ForecastResult is a model reply that passed validation.
type ForecastResult struct {
	Stock   string        `json:"stock"`
	Ticker  string        `json:"ticker"`
	Summary string        `json:"summary"`
	Days    []DayForecast `json:"days"`
}

// PassStats counts outcomes of one orchestrator pass.
type PassStats struct {
	PassID      string         `json:"pass_id"`
	Started     time.Time      `json:"started"`
	Finished    time.Time      `json:"finished"`
	Models      int            `json:"models"`
	Outcomes    map[string]int `json:"outcomes"`
	Aggregated  int            `json:"aggregated"`
	QuotaAborts []string       `json:"quota_aborts,omitempty"`
}

func (s *PassStats) Count(state string) {
	if s.Outcomes == nil {
		s.Outcomes = make(map[string]int)
	}
	s.Outcomes[state]++
}

// AggregationPoint and AggregationEntry form the JSON payload of an aggregation prompt.
type AggregationPoint struct {
	Date       string  `json:"date"`
	Prediction float64 `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

type AggregationEntry struct {
	AnalysisID  uint               `json:"analysis_id"`
	Published   string             `json:"published"`
	Summary     string             `json:"summary"`
	Predictions []AggregationPoint `json:"predictions"`
}

// StockRef is a distinct (ticker, stock) pair seen in stored analyses.
type StockRef struct {
	Ticker string `json:"ticker"`
	Stock  string `json:"stock"`
}
