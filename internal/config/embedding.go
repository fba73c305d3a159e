package config

import (
	"fmt"
	"time"
)

// EmbeddingConfig configures the embedding collaborator.
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"` // jina, openai
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
	CacheSize  int           `mapstructure:"cache_size"` // 0 disables the query embedding cache
}

// Validate checks that the embedding configuration has all required fields.
func (c *EmbeddingConfig) Validate() error {
	switch c.Provider {
	case "jina", "openai":
	default:
		return fmt.Errorf("embedding: unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("embedding %q: model is required", c.Provider)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("embedding %q: dimensions must be positive", c.Provider)
	}
	return nil
}

// GenerationConfig configures the text generation collaborator.
type GenerationConfig struct {
	Provider    string        `mapstructure:"provider"` // openai, openai-compatible
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Validate checks that the generation configuration has all required fields.
func (c *GenerationConfig) Validate() error {
	switch c.Provider {
	case "openai", "openai-compatible":
	default:
		return fmt.Errorf("generation: unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("generation %q: model is required", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("generation %q: temperature must be within [0, 2]", c.Provider)
	}
	return nil
}
