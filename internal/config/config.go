package config

import (
	"encoding/json"
	"time"

	"github.com/harun/recall/pkg/memory"
	"github.com/rs/zerolog"
)

// Config represents the recall configuration file.
type Config struct {
	// Workspace holding MEMORY.md and memory/
	WorkspacePath string `json:"workspace_path" mapstructure:"workspace_path"`

	// Data directory for the index, logs and audit trail
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	ExtraPaths []string `json:"extra_paths" mapstructure:"extra_paths"`

	// Embeddings
	Provider string       `json:"provider" mapstructure:"provider"` // local, openai, ollama
	Fallback string       `json:"fallback" mapstructure:"fallback"` // none, local, openai, ollama
	Model    string       `json:"model" mapstructure:"model"`
	Remote   RemoteConfig `json:"remote" mapstructure:"remote"`
	Embed    EmbedConfig  `json:"embed" mapstructure:"embed"`

	Store    StoreConfig    `json:"store" mapstructure:"store"`
	Chunking ChunkingConfig `json:"chunking" mapstructure:"chunking"`
	Query    QueryConfig    `json:"query" mapstructure:"query"`
	Sync     SyncConfig     `json:"sync" mapstructure:"sync"`
	Cache    CacheConfig    `json:"cache" mapstructure:"cache"`

	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// RemoteConfig holds settings for OpenAI-compatible embedding endpoints
type RemoteConfig struct {
	APIKey         string            `json:"api_key" mapstructure:"api_key"`
	BaseURL        string            `json:"base_url" mapstructure:"base_url"`
	Headers        map[string]string `json:"headers" mapstructure:"headers"`
	MaxRetries     int               `json:"max_retries" mapstructure:"max_retries"`
	Timeout        int               `json:"timeout" mapstructure:"timeout"` // seconds
	MaxInputTokens int               `json:"max_input_tokens" mapstructure:"max_input_tokens"`
}

// EmbedConfig controls how sync batches embedding calls
type EmbedConfig struct {
	BatchSize   int `json:"batch_size" mapstructure:"batch_size"`
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`
}

// StoreConfig holds index storage configuration
type StoreConfig struct {
	Path              string `json:"path" mapstructure:"path"`
	Vector            bool   `json:"vector" mapstructure:"vector"`
	EmbeddingCache    bool   `json:"embedding_cache" mapstructure:"embedding_cache"`
	EmbeddingCacheMax int    `json:"embedding_cache_max" mapstructure:"embedding_cache_max"`
}

// ChunkingConfig holds chunk window configuration
type ChunkingConfig struct {
	Tokens    int    `json:"tokens" mapstructure:"tokens"`
	Overlap   int    `json:"overlap" mapstructure:"overlap"`
	Tokenizer string `json:"tokenizer" mapstructure:"tokenizer"`
}

// QueryConfig holds search defaults
type QueryConfig struct {
	MaxResults int          `json:"max_results" mapstructure:"max_results"`
	MinScore   float64      `json:"min_score" mapstructure:"min_score"`
	Hybrid     HybridConfig `json:"hybrid" mapstructure:"hybrid"`
	Timeout    int          `json:"timeout" mapstructure:"timeout"` // seconds
}

// HybridConfig weights vector and keyword relevance
type HybridConfig struct {
	VectorWeight float64 `json:"vector_weight" mapstructure:"vector_weight"`
	TextWeight   float64 `json:"text_weight" mapstructure:"text_weight"`
}

// SyncConfig selects what triggers a sync
type SyncConfig struct {
	Watch           bool `json:"watch" mapstructure:"watch"`
	WatchDebounceMs int  `json:"watch_debounce_ms" mapstructure:"watch_debounce_ms"`
	OnSessionStart  bool `json:"on_session_start" mapstructure:"on_session_start"`
	OnSearch        bool `json:"on_search" mapstructure:"on_search"`
	IntervalMinutes int  `json:"interval_minutes" mapstructure:"interval_minutes"`
}

// CacheConfig holds query result cache settings
type CacheConfig struct {
	Enabled    bool `json:"enabled" mapstructure:"enabled"`
	TTL        int  `json:"ttl" mapstructure:"ttl"` // seconds
	MaxEntries int  `json:"max_entries" mapstructure:"max_entries"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// MetricsConfig configures the Prometheus endpoint served by `recall watch`
type MetricsConfig struct {
	Listen string `json:"listen" mapstructure:"listen"` // empty disables
}

// TracingConfig configures span export
type TracingConfig struct {
	OTLPEndpoint string  `json:"otlp_endpoint" mapstructure:"otlp_endpoint"` // host:port, empty disables export
	SampleRatio  float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	mem := memory.DefaultConfig("", "")
	return &Config{
		Provider: mem.Provider,
		Fallback: mem.Fallback,
		Remote: RemoteConfig{
			Headers:    map[string]string{},
			MaxRetries: 2,
			Timeout:    60,
		},
		Embed: EmbedConfig{
			BatchSize:   mem.EmbedBatchSize,
			Concurrency: mem.EmbedConcurrency,
		},
		Store: StoreConfig{
			Vector:            mem.Store.VectorEnabled,
			EmbeddingCache:    mem.Store.EmbeddingCache,
			EmbeddingCacheMax: mem.Store.EmbeddingCacheMax,
		},
		Chunking: ChunkingConfig{
			Tokens:    mem.Chunking.Tokens,
			Overlap:   mem.Chunking.Overlap,
			Tokenizer: mem.Chunking.Tokenizer,
		},
		Query: QueryConfig{
			MaxResults: mem.Query.MaxResults,
			MinScore:   mem.Query.MinScore,
			Hybrid: HybridConfig{
				VectorWeight: mem.Query.VectorWeight,
				TextWeight:   mem.Query.TextWeight,
			},
			Timeout: int(mem.Query.Timeout / time.Second),
		},
		Sync: SyncConfig{
			Watch:           mem.Sync.Watch,
			WatchDebounceMs: int(mem.Sync.WatchDebounce / time.Millisecond),
			OnSessionStart:  mem.Sync.OnSessionStart,
			OnSearch:        mem.Sync.OnSearch,
		},
		Cache: CacheConfig{
			Enabled:    mem.Cache.Enabled,
			TTL:        int(mem.Cache.TTL / time.Second),
			MaxEntries: mem.Cache.MaxEntries,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   50,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
		ExtraPaths: []string{},
	}
}

// String returns a JSON representation of the config with the API key masked
func (c *Config) String() string {
	masked := *c
	if masked.Remote.APIKey != "" {
		masked.Remote.APIKey = "********"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// MemoryConfig maps the file configuration onto the memory manager's.
func (c *Config) MemoryConfig(logger zerolog.Logger) memory.Config {
	mem := memory.DefaultConfig(c.WorkspacePath, c.Store.Path)
	mem.Logger = logger
	mem.ExtraPaths = c.ExtraPaths

	mem.Provider = c.Provider
	mem.Fallback = c.Fallback
	mem.Model = c.Model
	mem.Remote = memory.RemoteConfig{
		APIKey:         c.Remote.APIKey,
		BaseURL:        c.Remote.BaseURL,
		Headers:        c.Remote.Headers,
		MaxRetries:     c.Remote.MaxRetries,
		Timeout:        time.Duration(c.Remote.Timeout) * time.Second,
		MaxInputTokens: c.Remote.MaxInputTokens,
	}
	mem.EmbedBatchSize = c.Embed.BatchSize
	mem.EmbedConcurrency = c.Embed.Concurrency

	mem.Store = memory.StoreConfig{
		VectorEnabled:     c.Store.Vector,
		EmbeddingCache:    c.Store.EmbeddingCache,
		EmbeddingCacheMax: c.Store.EmbeddingCacheMax,
	}
	mem.Chunking = memory.ChunkingConfig{
		Tokens:    c.Chunking.Tokens,
		Overlap:   c.Chunking.Overlap,
		Tokenizer: c.Chunking.Tokenizer,
	}
	mem.Query = memory.QueryConfig{
		MaxResults:   c.Query.MaxResults,
		MinScore:     c.Query.MinScore,
		VectorWeight: c.Query.Hybrid.VectorWeight,
		TextWeight:   c.Query.Hybrid.TextWeight,
		Timeout:      time.Duration(c.Query.Timeout) * time.Second,
	}
	mem.Sync = memory.SyncConfig{
		Watch:           c.Sync.Watch,
		WatchDebounce:   time.Duration(c.Sync.WatchDebounceMs) * time.Millisecond,
		OnSessionStart:  c.Sync.OnSessionStart,
		OnSearch:        c.Sync.OnSearch,
		IntervalMinutes: c.Sync.IntervalMinutes,
	}
	mem.Cache = memory.CacheConfig{
		Enabled:    c.Cache.Enabled,
		TTL:        time.Duration(c.Cache.TTL) * time.Second,
		MaxEntries: c.Cache.MaxEntries,
	}
	return mem
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := NewValidator().ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}
	return c.MemoryConfig(zerolog.Nop()).Validate()
}
