package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"doc_ai/internal/llm"
	"doc_ai/internal/processor"
)

type Config struct {
	APIKey            string        `env:"OPENAI_API_KEY"`
	BaseURL           string        `env:"OPENAI_BASE_URL"`
	Model             string        `env:"AI_MODEL" envDefault:"gpt-4o-mini"`
	ChunkSize         int           `env:"CHUNK_SIZE" envDefault:"0"`
	ContextTokens     int           `env:"CONTEXT_TOKENS" envDefault:"300"`
	MaxResponseTokens int           `env:"MAX_RESPONSE_TOKENS" envDefault:"4000"`
	Temperature       float64       `env:"TEMPERATURE" envDefault:"0.3"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"2m"`
	MaxRetries        int           `env:"MAX_RETRIES" envDefault:"2"`
	OutputFormat      string        `env:"OUTPUT_FORMAT" envDefault:"structured_json"`
	Task              string        `env:"AI_TASK" envDefault:"analyze and restructure"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON           bool          `env:"LOG_JSON" envDefault:"false"`
}

func Init(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

// Validate checks values env parsing cannot.
func (c *Config) Validate() error {
	if _, err := llm.ParseFormat(c.OutputFormat); err != nil {
		return err
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("CHUNK_SIZE must not be negative, got %d", c.ChunkSize)
	}
	if c.ContextTokens < 0 {
		return fmt.Errorf("CONTEXT_TOKENS must not be negative, got %d", c.ContextTokens)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	return nil
}

// ProcessorSettings maps the configuration onto processor defaults.
func (c *Config) ProcessorSettings() processor.Settings {
	format, err := llm.ParseFormat(c.OutputFormat)
	if err != nil {
		format = llm.FormatStructuredJSON
	}
	return processor.Settings{
		Model:             c.Model,
		Task:              c.Task,
		Format:            format,
		ChunkSize:         c.ChunkSize,
		ContextTokens:     c.ContextTokens,
		MaxResponseTokens: c.MaxResponseTokens,
		Temperature:       c.Temperature,
		RequestTimeout:    c.RequestTimeout,
	}
}

// ClientConfig maps the configuration onto the completion client.
func (c *Config) ClientConfig() llm.ClientConfig {
	return llm.ClientConfig{
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		MaxRetries: c.MaxRetries,
	}
}
