package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateAPIKey("sk-test123", "openai"))
	assert.NoError(t, v.ValidateAPIKey("", "openai"), "empty key defers to OPENAI_API_KEY")
	assert.Error(t, v.ValidateAPIKey("invalid-key", "openai"))
	assert.NoError(t, v.ValidateAPIKey("anything", "ollama"))
}

func TestValidateProvider(t *testing.T) {
	v := NewValidator()

	for _, p := range []string{"local", "openai", "ollama"} {
		assert.NoError(t, v.ValidateProvider(p, false), p)
	}
	assert.Error(t, v.ValidateProvider("none", false))
	assert.NoError(t, v.ValidateProvider("none", true))
	assert.Error(t, v.ValidateProvider("gemini", true))
}

func TestValidateBaseURL(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateBaseURL(""))
	assert.NoError(t, v.ValidateBaseURL("http://localhost:11434/v1"))
	assert.Error(t, v.ValidateBaseURL("ftp://example.com"))
	assert.Error(t, v.ValidateBaseURL("://bad"))
}

func TestValidateChunking(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateChunking(400, 80))
	assert.NoError(t, v.ValidateChunking(10, 0))
	assert.Error(t, v.ValidateChunking(0, 0))
	assert.Error(t, v.ValidateChunking(10, 10))
	assert.Error(t, v.ValidateChunking(10, -1))

	assert.NoError(t, v.ValidateTokenizer("words"))
	assert.NoError(t, v.ValidateTokenizer("cl100k_base"))
	assert.Error(t, v.ValidateTokenizer("sentencepiece"))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("trace"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("defaults are valid", func(t *testing.T) {
		assert.Empty(t, v.ValidateConfig(DefaultConfig()))
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Provider = "openai"
		cfg.Fallback = "openai"
		cfg.Remote.APIKey = "bad"
		cfg.Query.MinScore = 2
		cfg.Chunking.Overlap = 500
		cfg.Logging.Level = "loud"

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 6)
	})
}
