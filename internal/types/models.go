package types

import "time"

// DateLayout is the storage format of every date-only column.
const DateLayout = "2006-01-02"

type Article struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Priority  int       `gorm:"not null;default:0;index" json:"priority"`
	Link      string    `gorm:"uniqueIndex;not null" json:"link"`
	Title     string    `json:"title"`
	Published time.Time `json:"published"`
	Source    string    `json:"source"`
	Content   string    `json:"content,omitempty"`
}

func (Article) TableName() string { return "articles" }

// Analysis is one model's reading of one article. (model_name, article_id) is unique.
type Analysis struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	ArticleID   uint         `gorm:"not null;uniqueIndex:idx_analysis_model_article,priority:2" json:"article_id"`
	Article     *Article     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ModelName   string       `gorm:"not null;uniqueIndex:idx_analysis_model_article,priority:1;index:idx_analysis_ticker_model,priority:2" json:"model_name"`
	Published   string       `gorm:"column:published" json:"published"`
	Ticker      string       `gorm:"index:idx_analysis_ticker_model,priority:1" json:"ticker"`
	Stock       string       `json:"stock"`
	Summary     string       `json:"summary"`
	Predictions []Prediction `gorm:"foreignKey:AnalysisID;constraint:OnDelete:CASCADE" json:"predictions,omitempty"`
}

func (Analysis) TableName() string { return "analysis" }

// Prediction holds an absolute price target for one day after the article was published.
type Prediction struct {
	ID         uint    `gorm:"primaryKey" json:"-"`
	AnalysisID uint    `gorm:"not null;index" json:"-"`
	Date       string  `json:"date"`
	Price      float64 `gorm:"column:prediction" json:"prediction"`
	Confidence float64 `json:"confidence"`
}

func (Prediction) TableName() string { return "predictions" }

type SummarizedAnalysis struct {
	ID          uint                   `gorm:"primaryKey" json:"id"`
	ModelName   string                 `gorm:"not null;uniqueIndex:idx_summary_model_ticker,priority:1" json:"model_name"`
	Ticker      string                 `gorm:"not null;uniqueIndex:idx_summary_model_ticker,priority:2" json:"ticker"`
	LastUpdated time.Time              `json:"last_updated"`
	SummaryText string                 `json:"summary_text"`
	Predictions []SummarizedPrediction `gorm:"foreignKey:SummarizedAnalysisID;constraint:OnDelete:CASCADE" json:"predictions,omitempty"`
}

func (SummarizedAnalysis) TableName() string { return "summarized_analysis" }

type SummarizedPrediction struct {
	ID                   uint    `gorm:"primaryKey" json:"-"`
	SummarizedAnalysisID uint    `gorm:"not null;index" json:"-"`
	Date                 string  `json:"date"`
	Price                float64 `gorm:"column:prediction" json:"prediction"`
	Confidence           float64 `json:"confidence"`
}

func (SummarizedPrediction) TableName() string { return "summarized_predictions" }
