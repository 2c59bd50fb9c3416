package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Provider names understood by the llm router.
const (
	ProviderGemini     = "gemini"
	ProviderGroq       = "groq"
	ProviderOpenRouter = "openrouter"
	ProviderClaude     = "claude"
)

// Route maps a model name onto a provider. Match is "prefix" or "exact".
type Route struct {
	Match    string `yaml:"match" validate:"oneof=prefix exact"`
	Pattern  string `yaml:"pattern" validate:"required"`
	Provider string `yaml:"provider" validate:"oneof=gemini groq openrouter claude"`
}

type ProviderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	RequestsPerMinute int     `yaml:"requests_per_minute" validate:"gte=0"`
	MaxTokens         int     `yaml:"max_tokens" validate:"gte=0"`
	Temperature       float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" validate:"gte=0"`
}

type Config struct {
	Database struct {
		Path          string `yaml:"path" validate:"required"`
		BusyTimeoutMS int    `yaml:"busy_timeout_ms" validate:"gte=0"`
	} `yaml:"database"`

	Models    []string                  `yaml:"models" validate:"required,min=1,dive,required"`
	Routes    []Route                   `yaml:"routes" validate:"required,min=1,dive"`
	Providers map[string]ProviderConfig `yaml:"providers"`

	Instructions struct {
		IndividualPath string `yaml:"individual_path" validate:"required"`
		AggregatedPath string `yaml:"aggregated_path" validate:"required"`
	} `yaml:"instructions"`

	Analysis struct {
		ForecastDays int  `yaml:"forecast_days" validate:"oneof=7 12"`
		// nil means unset; 0 restricts passes to articles no model has declined
		MaxPriority  *int `yaml:"max_priority" validate:"omitnil,gte=0"`
	} `yaml:"analysis"`

	Price struct {
		BaseURL        string        `yaml:"base_url" validate:"required,url"`
		MaxAttempts    int           `yaml:"max_attempts" validate:"gte=1"`
		InitialBackoff time.Duration `yaml:"initial_backoff" validate:"gte=0"`
	} `yaml:"price"`

	Storage struct {
		MaxAttempts    int           `yaml:"max_attempts" validate:"gte=1"`
		InitialBackoff time.Duration `yaml:"initial_backoff" validate:"gte=0"`
	} `yaml:"storage"`

	Schedule struct {
		Cron string `yaml:"cron" validate:"required"`
	} `yaml:"schedule"`

	Server struct {
		Addr string `yaml:"addr" validate:"required"`
	} `yaml:"server"`

	Scraper struct {
		FeedURL   string `yaml:"feed_url" validate:"required,url"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"scraper"`

	LogDir string `yaml:"log_dir"`
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	// every configured model must be routable, otherwise the pass fails late
	for _, m := range c.Models {
		if _, ok := c.RouteFor(m); !ok {
			return fmt.Errorf("model '%s' matches no route", m)
		}
	}
	for name := range c.Providers {
		switch name {
		case ProviderGemini, ProviderGroq, ProviderOpenRouter, ProviderClaude:
		default:
			return fmt.Errorf("unknown provider '%s' in providers", name)
		}
	}
	return nil
}

// RouteFor returns the first route matching model. Exact matches win over prefixes
// regardless of order so that e.g. an OpenRouter-only name is not captured by a broad prefix.
func (c *Config) RouteFor(model string) (Route, bool) {
	for _, r := range c.Routes {
		if r.Match == "exact" && r.Pattern == model {
			return r, true
		}
	}
	for _, r := range c.Routes {
		if r.Match == "prefix" && strings.HasPrefix(model, r.Pattern) {
			return r, true
		}
	}
	return Route{}, false
}

// Provider returns the settings for name with defaults filled in.
func (c *Config) Provider(name string) ProviderConfig {
	p := c.Providers[name]
	if p.APIKeyEnv == "" {
		p.APIKeyEnv = defaultKeyEnv[name]
	}
	if p.BaseURL == "" {
		p.BaseURL = defaultBaseURL[name]
	}
	if p.TimeoutSeconds == 0 {
		p.TimeoutSeconds = 120
	}
	return p
}

var defaultKeyEnv = map[string]string{
	ProviderGemini:     "GEMINI_API_KEY",
	ProviderGroq:       "GROQ_API_KEY",
	ProviderOpenRouter: "OPENROUTER_API_KEY",
	ProviderClaude:     "ANTHROPIC_API_KEY",
}

var defaultBaseURL = map[string]string{
	ProviderGroq:       "https://api.groq.com/openai/v1",
	ProviderOpenRouter: "https://openrouter.ai/api/v1",
}

// ReadInstructions loads the individual and aggregated system instructions.
func (c *Config) ReadInstructions() (individual, aggregated string, err error) {
	b, err := os.ReadFile(c.Instructions.IndividualPath)
	if err != nil {
		return "", "", fmt.Errorf("read individual instruction: %w", err)
	}
	a, err := os.ReadFile(c.Instructions.AggregatedPath)
	if err != nil {
		return "", "", fmt.Errorf("read aggregated instruction: %w", err)
	}
	individual = strings.TrimSpace(string(b))
	aggregated = strings.TrimSpace(string(a))
	if individual == "" || aggregated == "" {
		return "", "", errors.New("system instructions cannot be empty")
	}
	return individual, aggregated, nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Database.Path == "" {
		c.Database.Path = "data/news.db"
	}
	if c.Database.BusyTimeoutMS == 0 {
		c.Database.BusyTimeoutMS = 5000
	}
	if c.Analysis.ForecastDays == 0 {
		c.Analysis.ForecastDays = 12
	}
	if c.Analysis.MaxPriority == nil {
		maxPriority := 20
		c.Analysis.MaxPriority = &maxPriority
	}
	if c.Price.BaseURL == "" {
		c.Price.BaseURL = "https://query1.finance.yahoo.com"
	}
	if c.Price.MaxAttempts == 0 {
		c.Price.MaxAttempts = 3
	}
	if c.Price.InitialBackoff == 0 {
		c.Price.InitialBackoff = 2 * time.Second
	}
	if c.Storage.MaxAttempts == 0 {
		c.Storage.MaxAttempts = 5
	}
	if c.Storage.InitialBackoff == 0 {
		c.Storage.InitialBackoff = time.Second
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "@every 10m"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Scraper.FeedURL == "" {
		c.Scraper.FeedURL = "https://finance.yahoo.com/news/rssindex"
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
}
