package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc_ai/internal/llm"
)

func TestInit(t *testing.T) {
	t.Run("Should apply defaults", func(t *testing.T) {
		var cfg Config
		require.NoError(t, Init(&cfg))

		assert.Equal(t, "gpt-4o-mini", cfg.Model)
		assert.Equal(t, 0, cfg.ChunkSize)
		assert.Equal(t, 300, cfg.ContextTokens)
		assert.Equal(t, 4000, cfg.MaxResponseTokens)
		assert.Equal(t, 0.3, cfg.Temperature)
		assert.Equal(t, 2*time.Minute, cfg.RequestTimeout)
		assert.Equal(t, "structured_json", cfg.OutputFormat)
	})

	t.Run("Should read environment overrides", func(t *testing.T) {
		t.Setenv("AI_MODEL", "gpt-4")
		t.Setenv("CHUNK_SIZE", "2000")
		t.Setenv("OUTPUT_FORMAT", "md")
		t.Setenv("REQUEST_TIMEOUT", "30s")
		t.Setenv("OPENAI_BASE_URL", "http://localhost:11434/v1")

		var cfg Config
		require.NoError(t, Init(&cfg))

		settings := cfg.ProcessorSettings()
		assert.Equal(t, "gpt-4", settings.Model)
		assert.Equal(t, 2000, settings.ChunkSize)
		assert.Equal(t, llm.FormatMarkdown, settings.Format)
		assert.Equal(t, 30*time.Second, settings.RequestTimeout)
		assert.Equal(t, "http://localhost:11434/v1", cfg.ClientConfig().BaseURL)
	})

	t.Run("Should reject invalid values", func(t *testing.T) {
		t.Setenv("OUTPUT_FORMAT", "yaml")
		var cfg Config
		assert.Error(t, Init(&cfg))
	})

	t.Run("Should reject negative chunk sizes", func(t *testing.T) {
		t.Setenv("CHUNK_SIZE", "-1")
		var cfg Config
		assert.ErrorContains(t, Init(&cfg), "CHUNK_SIZE")
	})
}
