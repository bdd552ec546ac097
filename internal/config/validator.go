package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/harun/recall/pkg/memory"
)

// Validator validates configuration values one field at a time so every
// problem can be reported at once.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	switch provider {
	case memory.ProviderOpenAI:
		// An empty key falls back to OPENAI_API_KEY
		if key != "" && !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}
	return nil
}

// ValidateProvider validates an embedding provider id
func (v *Validator) ValidateProvider(provider string, allowNone bool) error {
	valid := []string{memory.ProviderLocal, memory.ProviderOpenAI, memory.ProviderOllama}
	if allowNone {
		valid = append(valid, memory.FallbackNone)
	}
	for _, p := range valid {
		if provider == p {
			return nil
		}
	}
	return fmt.Errorf("invalid provider: %s (must be one of: %s)", provider, strings.Join(valid, ", "))
}

// ValidateBaseURL validates a remote endpoint
func (v *Validator) ValidateBaseURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid remote base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid remote base_url: scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// ValidateTokenizer validates the chunking tokenizer name
func (v *Validator) ValidateTokenizer(name string) error {
	switch name {
	case "", memory.TokenizerWords, memory.TokenizerCL100K:
		return nil
	}
	return fmt.Errorf("invalid tokenizer: %s (must be one of: %s, %s)", name, memory.TokenizerWords, memory.TokenizerCL100K)
}

// ValidateChunking validates the chunk window
func (v *Validator) ValidateChunking(tokens, overlap int) error {
	if tokens <= 0 {
		return fmt.Errorf("chunking.tokens must be positive, got %d", tokens)
	}
	if overlap < 0 || overlap >= tokens {
		return fmt.Errorf("chunking.overlap must be in [0, %d), got %d", tokens, overlap)
	}
	return nil
}

// ValidateMinScore validates a score threshold
func (v *Validator) ValidateMinScore(score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("query.min_score must be between 0 and 1, got %f", score)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateProvider(cfg.Provider, false); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateProvider(cfg.Fallback, true); err != nil {
		errors = append(errors, fmt.Errorf("fallback: %w", err))
	} else if cfg.Fallback == cfg.Provider {
		errors = append(errors, fmt.Errorf("fallback must differ from provider %s", cfg.Provider))
	}
	for _, p := range []string{cfg.Provider, cfg.Fallback} {
		if err := v.ValidateAPIKey(cfg.Remote.APIKey, p); err != nil {
			errors = append(errors, err)
		}
	}
	if err := v.ValidateBaseURL(cfg.Remote.BaseURL); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateTokenizer(cfg.Chunking.Tokenizer); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateChunking(cfg.Chunking.Tokens, cfg.Chunking.Overlap); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateMinScore(cfg.Query.MinScore); err != nil {
		errors = append(errors, err)
	}
	if cfg.Query.Hybrid.VectorWeight < 0 || cfg.Query.Hybrid.TextWeight < 0 {
		errors = append(errors, fmt.Errorf("query.hybrid weights must be >= 0"))
	} else if cfg.Query.Hybrid.VectorWeight == 0 && cfg.Query.Hybrid.TextWeight == 0 {
		errors = append(errors, fmt.Errorf("query.hybrid weights cannot both be zero"))
	}
	if cfg.Query.MaxResults < 0 {
		errors = append(errors, fmt.Errorf("query.max_results must be >= 0"))
	}

	if cfg.Sync.IntervalMinutes < 0 {
		errors = append(errors, fmt.Errorf("sync.interval_minutes must be >= 0"))
	}
	if cfg.Sync.WatchDebounceMs < 0 {
		errors = append(errors, fmt.Errorf("sync.watch_debounce_ms must be >= 0"))
	}
	if cfg.Cache.TTL < 0 || cfg.Cache.MaxEntries < 0 {
		errors = append(errors, fmt.Errorf("cache.ttl and cache.max_entries must be >= 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errors = append(errors, fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %f", cfg.Tracing.SampleRatio))
	}

	return errors
}
