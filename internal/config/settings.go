package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/thinkdifferentdot/maybe/internal/common"
)

// NullTolerance controls how willing the model should be to guess instead of returning null.
type NullTolerance string

// Null tolerance policies.
const (
	NullTolerancePessimistic NullTolerance = "pessimistic"
	NullToleranceBalanced    NullTolerance = "balanced"
	NullToleranceOptimistic  NullTolerance = "optimistic"
)

// Provider names, in registry declaration order.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Batch size bounds accepted in settings.
const (
	MinBatchSize = 10
	MaxBatchSize = 200
)

// ProviderSettings holds the stored credential and model for one LLM provider.
type ProviderSettings struct {
	APIKey  string
	Model   string
	BaseURL string
}

// LLMSettings configures the provider gateway.
type LLMSettings struct {
	OpenAI            ProviderSettings
	Anthropic         ProviderSettings
	Gemini            ProviderSettings
	PreferredProvider string
	Temperature       float64
	MaxTokens         int
	MaxRetries        int
	RetryDelay        time.Duration
	RateLimit         int
	Timeout           time.Duration
}

// CategorizationSettings are the per-family knobs that shape prompts and batching.
type CategorizationSettings struct {
	NullTolerance         NullTolerance
	ConfidenceThreshold   int
	BatchSize             int
	PreferSubcategories   bool
	EnforceClassification bool
}

// Settings is the complete application configuration. It is built once in
// cmd and passed explicitly to every component that needs it.
type Settings struct {
	DatabasePath   string
	LogLevel       string
	LogFormat      string
	LLM            LLMSettings
	Categorization CategorizationSettings
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		DatabasePath: "$HOME/.local/share/autocat/autocat.db",
		LogLevel:     "info",
		LogFormat:    "console",
		LLM: LLMSettings{
			PreferredProvider: ProviderOpenAI,
			OpenAI: ProviderSettings{
				Model:   "gpt-4.1",
				BaseURL: "https://api.openai.com/v1",
			},
			Anthropic: ProviderSettings{
				Model:   "claude-sonnet-4-20250514",
				BaseURL: "https://api.anthropic.com/v1",
			},
			Gemini: ProviderSettings{
				Model: "gemini-2.0-flash",
			},
			Temperature: 0.1,
			MaxTokens:   4096,
			MaxRetries:  3,
			RetryDelay:  time.Second,
			RateLimit:   60,
			Timeout:     60 * time.Second,
		},
		Categorization: CategorizationSettings{
			ConfidenceThreshold:   60,
			BatchSize:             25,
			NullTolerance:         NullTolerancePessimistic,
			PreferSubcategories:   true,
			EnforceClassification: true,
		},
	}
}

// SetDefaults registers Default() with v so that config files only need to
// carry overrides.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("database.path", d.DatabasePath)
	v.SetDefault("logging.level", d.LogLevel)
	v.SetDefault("logging.format", d.LogFormat)
	v.SetDefault("llm.preferred_provider", d.LLM.PreferredProvider)
	v.SetDefault("llm.openai.model", d.LLM.OpenAI.Model)
	v.SetDefault("llm.openai.base_url", d.LLM.OpenAI.BaseURL)
	v.SetDefault("llm.anthropic.model", d.LLM.Anthropic.Model)
	v.SetDefault("llm.anthropic.base_url", d.LLM.Anthropic.BaseURL)
	v.SetDefault("llm.gemini.model", d.LLM.Gemini.Model)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.max_retries", d.LLM.MaxRetries)
	v.SetDefault("llm.retry_delay", d.LLM.RetryDelay)
	v.SetDefault("llm.rate_limit", d.LLM.RateLimit)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("categorization.confidence_threshold", d.Categorization.ConfidenceThreshold)
	v.SetDefault("categorization.batch_size", d.Categorization.BatchSize)
	v.SetDefault("categorization.null_tolerance", string(d.Categorization.NullTolerance))
	v.SetDefault("categorization.prefer_subcategories", d.Categorization.PreferSubcategories)
	v.SetDefault("categorization.enforce_classification", d.Categorization.EnforceClassification)
}

// Load reads Settings out of v and validates them.
func Load(v *viper.Viper) (Settings, error) {
	SetDefaults(v)

	s := Settings{
		DatabasePath: ExpandPath(v.GetString("database.path")),
		LogLevel:     v.GetString("logging.level"),
		LogFormat:    v.GetString("logging.format"),
		LLM: LLMSettings{
			PreferredProvider: v.GetString("llm.preferred_provider"),
			OpenAI: ProviderSettings{
				APIKey:  v.GetString("llm.openai.api_key"),
				Model:   v.GetString("llm.openai.model"),
				BaseURL: v.GetString("llm.openai.base_url"),
			},
			Anthropic: ProviderSettings{
				APIKey:  v.GetString("llm.anthropic.api_key"),
				Model:   v.GetString("llm.anthropic.model"),
				BaseURL: v.GetString("llm.anthropic.base_url"),
			},
			Gemini: ProviderSettings{
				APIKey: v.GetString("llm.gemini.api_key"),
				Model:  v.GetString("llm.gemini.model"),
			},
			Temperature: v.GetFloat64("llm.temperature"),
			MaxTokens:   v.GetInt("llm.max_tokens"),
			MaxRetries:  v.GetInt("llm.max_retries"),
			RetryDelay:  v.GetDuration("llm.retry_delay"),
			RateLimit:   v.GetInt("llm.rate_limit"),
			Timeout:     v.GetDuration("llm.timeout"),
		},
		Categorization: CategorizationSettings{
			ConfidenceThreshold:   v.GetInt("categorization.confidence_threshold"),
			BatchSize:             v.GetInt("categorization.batch_size"),
			NullTolerance:         NullTolerance(v.GetString("categorization.null_tolerance")),
			PreferSubcategories:   v.GetBool("categorization.prefer_subcategories"),
			EnforceClassification: v.GetBool("categorization.enforce_classification"),
		},
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks ranges and enums.
func (s Settings) Validate() error {
	if s.DatabasePath == "" {
		return fmt.Errorf("%w: database.path is required", common.ErrMissingConfig)
	}

	switch s.LLM.PreferredProvider {
	case "", ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("%w: unknown preferred provider %q", common.ErrInvalidConfig, s.LLM.PreferredProvider)
	}

	return s.Categorization.Validate()
}

// Validate checks the categorization knobs.
func (c CategorizationSettings) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100 {
		return fmt.Errorf("%w: confidence threshold must be between 0 and 100, got %d",
			common.ErrInvalidConfig, c.ConfidenceThreshold)
	}
	if c.BatchSize < MinBatchSize || c.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: batch size must be between %d and %d, got %d",
			common.ErrInvalidConfig, MinBatchSize, MaxBatchSize, c.BatchSize)
	}
	switch c.NullTolerance {
	case NullTolerancePessimistic, NullToleranceBalanced, NullToleranceOptimistic:
	default:
		return fmt.Errorf("%w: unknown null tolerance %q", common.ErrInvalidConfig, c.NullTolerance)
	}
	return nil
}
