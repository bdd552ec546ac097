package memory

import (
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Provider identifiers accepted by Config.Provider and Config.Fallback.
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	FallbackNone   = "none"
)

// Config holds memory manager configuration
type Config struct {
	WorkspacePath string
	DBPath        string
	Logger        zerolog.Logger

	// ExtraPaths are additional markdown files or directories indexed next to
	// MEMORY.md and memory/. Relative entries resolve against WorkspacePath.
	ExtraPaths []string

	Provider string
	Fallback string
	Model    string
	Remote   RemoteConfig

	// EmbeddingProvider replaces the provider built from Provider/Model.
	// The fallback policy still applies on top of it.
	EmbeddingProvider EmbeddingProvider

	Store    StoreConfig
	Chunking ChunkingConfig
	Sync     SyncConfig
	Query    QueryConfig
	Cache    CacheConfig

	EmbedBatchSize   int
	EmbedConcurrency int

	// AllowUnsafeReindex lets forced reindexes run in place and skips the
	// degraded-provider guard. Meant for tests and explicit admin paths.
	AllowUnsafeReindex bool
}

// RemoteConfig configures OpenAI-compatible embedding endpoints.
type RemoteConfig struct {
	APIKey         string
	BaseURL        string
	Headers        map[string]string
	MaxRetries     int
	Timeout        time.Duration
	MaxInputTokens int
}

// StoreConfig configures the persisted index.
type StoreConfig struct {
	VectorEnabled     bool
	EmbeddingCache    bool
	EmbeddingCacheMax int
}

// ChunkingConfig configures the token windows.
type ChunkingConfig struct {
	Tokens    int
	Overlap   int
	Tokenizer string
}

// SyncConfig selects the sync triggers.
type SyncConfig struct {
	Watch           bool
	WatchDebounce   time.Duration
	OnSessionStart  bool
	OnSearch        bool
	IntervalMinutes int
}

// QueryConfig holds search defaults.
type QueryConfig struct {
	MaxResults   int
	MinScore     float64
	VectorWeight float64
	TextWeight   float64
	Timeout      time.Duration
}

// CacheConfig configures the query result cache.
type CacheConfig struct {
	Enabled    bool
	TTL        time.Duration
	MaxEntries int
}

// DefaultConfig returns the defaults for a workspace.
func DefaultConfig(workspacePath, dbPath string) Config {
	return Config{
		WorkspacePath: workspacePath,
		DBPath:        dbPath,
		Logger:        zerolog.Nop(),
		Provider:      ProviderLocal,
		Fallback:      FallbackNone,
		Store: StoreConfig{
			VectorEnabled:     true,
			EmbeddingCache:    true,
			EmbeddingCacheMax: 50000,
		},
		Chunking: ChunkingConfig{
			Tokens:    400,
			Overlap:   80,
			Tokenizer: TokenizerWords,
		},
		Sync: SyncConfig{
			Watch:          true,
			WatchDebounce:  1500 * time.Millisecond,
			OnSessionStart: true,
			OnSearch:       true,
		},
		Query: QueryConfig{
			MaxResults:   6,
			MinScore:     0.35,
			VectorWeight: 0.7,
			TextWeight:   0.3,
			Timeout:      30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:    false,
			TTL:        time.Minute,
			MaxEntries: 256,
		},
		EmbedBatchSize:   64,
		EmbedConcurrency: 2,
	}
}

// withDefaults fills zero numeric fields. Booleans are taken as given.
func (c Config) withDefaults() Config {
	if c.Provider == "" {
		c.Provider = ProviderLocal
	}
	if c.Fallback == "" {
		c.Fallback = FallbackNone
	}
	if c.Chunking.Tokens == 0 {
		c.Chunking.Tokens = 400
	}
	if c.Chunking.Tokenizer == "" {
		c.Chunking.Tokenizer = TokenizerWords
	}
	if c.Sync.WatchDebounce == 0 {
		c.Sync.WatchDebounce = 1500 * time.Millisecond
	}
	if c.Query.MaxResults == 0 {
		c.Query.MaxResults = 6
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Minute
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 256
	}
	if c.EmbedBatchSize == 0 {
		c.EmbedBatchSize = 64
	}
	if c.EmbedConcurrency == 0 {
		c.EmbedConcurrency = 2
	}
	return c
}

// Validate checks the configuration and returns the first ConfigError found.
func (c Config) Validate() error {
	if c.WorkspacePath == "" {
		return &ConfigError{Field: "workspace_path", Reason: "is required"}
	}
	if c.DBPath == "" {
		return &ConfigError{Field: "store.path", Reason: "is required"}
	}
	if c.Chunking.Tokens <= 0 {
		return &ConfigError{Field: "chunking.tokens", Reason: "must be positive"}
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Tokens {
		return &ConfigError{Field: "chunking.overlap", Reason: "must be in [0, chunking.tokens)"}
	}
	switch c.Chunking.Tokenizer {
	case "", TokenizerWords, TokenizerCL100K:
	default:
		return &ConfigError{Field: "chunking.tokenizer", Reason: "unknown tokenizer " + c.Chunking.Tokenizer}
	}
	if c.EmbeddingProvider == nil && !knownProvider(c.Provider) {
		return &ConfigError{Field: "provider", Reason: "unknown provider " + c.Provider}
	}
	if c.Fallback != "" && c.Fallback != FallbackNone {
		if !knownProvider(c.Fallback) {
			return &ConfigError{Field: "fallback", Reason: "unknown provider " + c.Fallback}
		}
		if c.EmbeddingProvider == nil && c.Fallback == c.Provider {
			return &ConfigError{Field: "fallback", Reason: "must differ from provider"}
		}
	}
	if invalidFloat(c.Query.MinScore) || c.Query.MinScore < 0 || c.Query.MinScore > 1 {
		return &ConfigError{Field: "query.min_score", Reason: "must be in [0, 1]"}
	}
	if err := validateWeights(c.Query.VectorWeight, c.Query.TextWeight); err != nil {
		return err
	}
	if c.Query.MaxResults < 0 {
		return &ConfigError{Field: "query.max_results", Reason: "must not be negative"}
	}
	if c.Sync.IntervalMinutes < 0 {
		return &ConfigError{Field: "sync.interval_minutes", Reason: "must not be negative"}
	}
	if c.Cache.TTL < 0 || c.Cache.MaxEntries < 0 {
		return &ConfigError{Field: "cache", Reason: "ttl and max_entries must not be negative"}
	}
	if c.EmbedBatchSize < 0 || c.EmbedConcurrency < 0 {
		return &ConfigError{Field: "embed_batch_size", Reason: "must not be negative"}
	}
	return nil
}

func validateWeights(vectorWeight, textWeight float64) error {
	if invalidFloat(vectorWeight) || vectorWeight < 0 {
		return &ConfigError{Field: "query.hybrid.vector_weight", Reason: "must be a non-negative number"}
	}
	if invalidFloat(textWeight) || textWeight < 0 {
		return &ConfigError{Field: "query.hybrid.text_weight", Reason: "must be a non-negative number"}
	}
	if vectorWeight == 0 && textWeight == 0 {
		return &ConfigError{Field: "query.hybrid", Reason: "vector_weight and text_weight cannot both be zero"}
	}
	return nil
}

func invalidFloat(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

func knownProvider(id string) bool {
	switch id {
	case ProviderLocal, ProviderOpenAI, ProviderOllama:
		return true
	}
	return false
}
