package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/harun/recall/internal/observability"
	"github.com/harun/recall/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Vector is an embedding tagged with the model key that produced it.
type Vector struct {
	Values []float32
	Model  string
}

// EmbeddingProvider generates vector embeddings from text
type EmbeddingProvider interface {
	ID() string
	Model() string
	// MaxInputTokens is the largest input the backend accepts, 0 if unbounded.
	MaxInputTokens() int
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
	EmbedQuery(ctx context.Context, text string) (Vector, error)
}

// ModelKey identifies the vector space of p.
func ModelKey(p EmbeddingProvider) string {
	return p.ID() + "/" + p.Model()
}

// IsDegenerate reports whether v carries no usable direction.
func IsDegenerate(v []float32) bool {
	if len(v) == 0 {
		return true
	}
	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return true
		}
		sum += f * f
	}
	return math.Sqrt(sum) < 1e-9
}

// NewEmbeddingProvider builds the provider chain described by cfg: the
// primary (cfg.EmbeddingProvider or the cfg.Provider backend) wrapped in
// instrumentation, then in a FallbackProvider when cfg.Fallback names one.
func NewEmbeddingProvider(cfg Config, logger zerolog.Logger) (EmbeddingProvider, error) {
	var secondary EmbeddingProvider
	if cfg.Fallback != "" && cfg.Fallback != FallbackNone {
		p, err := newBackend(cfg.Fallback, cfg)
		if err != nil {
			return nil, fmt.Errorf("build fallback provider %s: %w", cfg.Fallback, err)
		}
		secondary = instrument(p)
	}

	primary := cfg.EmbeddingProvider
	if primary == nil {
		p, err := newBackend(cfg.Provider, cfg)
		if err != nil {
			if secondary == nil {
				return nil, fmt.Errorf("build provider %s: %w", cfg.Provider, err)
			}
			logger.Warn().Err(err).
				Str("provider", cfg.Provider).
				Str("fallback", cfg.Fallback).
				Msg("Primary embedding provider unavailable, using fallback")
			return secondary, nil
		}
		primary = p
	}
	primary = instrument(primary)

	if secondary == nil {
		return primary, nil
	}
	return NewFallbackProvider(primary, secondary, logger), nil
}

func newBackend(id string, cfg Config) (EmbeddingProvider, error) {
	switch id {
	case ProviderLocal:
		return NewLocalProvider(0), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.Model, cfg.Remote)
	case ProviderOllama:
		return NewOllamaProvider(cfg.Model, cfg.Remote)
	default:
		return nil, &ConfigError{Field: "provider", Reason: "unknown provider " + id}
	}
}

// degradable is implemented by providers that track recent failures.
type degradable interface {
	Degraded() bool
}

// providerDegraded reports whether p or its chain saw a failure on its most
// recent call.
func providerDegraded(p EmbeddingProvider) bool {
	if d, ok := p.(degradable); ok {
		return d.Degraded()
	}
	return false
}

// instrumentedProvider records metrics and spans for every call and tracks
// whether the last call failed.
type instrumentedProvider struct {
	EmbeddingProvider

	mu      sync.Mutex
	lastErr error
}

func instrument(p EmbeddingProvider) EmbeddingProvider {
	if _, ok := p.(*instrumentedProvider); ok {
		return p
	}
	return &instrumentedProvider{EmbeddingProvider: p}
}

func (p *instrumentedProvider) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	ctx, span := tracing.StartSpan(ctx, "recall.memory", "memory.embed_batch",
		attribute.String("provider", p.ID()),
		attribute.Int("texts", len(texts)),
	)
	defer span.End()

	start := time.Now()
	vecs, err := p.EmbeddingProvider.EmbedBatch(ctx, texts)
	if err == nil && len(vecs) != len(texts) {
		err = &ProviderError{
			Provider: p.ID(),
			Op:       "embed_batch",
			Err:      fmt.Errorf("got %d vectors for %d texts", len(vecs), len(texts)),
		}
	}
	p.observe("embed_batch", len(texts), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return vecs, nil
}

func (p *instrumentedProvider) EmbedQuery(ctx context.Context, text string) (Vector, error) {
	ctx, span := tracing.StartSpan(ctx, "recall.memory", "memory.embed_query",
		attribute.String("provider", p.ID()),
	)
	defer span.End()

	start := time.Now()
	vec, err := p.EmbeddingProvider.EmbedQuery(ctx, text)
	p.observe("embed_query", 1, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return vec, err
}

func (p *instrumentedProvider) observe(op string, texts int, d time.Duration, err error) {
	// Cancellation says nothing about provider health.
	if errors.Is(err, context.Canceled) {
		return
	}
	observability.RecordEmbedding(p.ID(), op, texts, d, err == nil)
	observability.SetProviderDegraded(p.ID(), err != nil)

	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

func (p *instrumentedProvider) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr != nil
}
