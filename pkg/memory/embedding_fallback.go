package memory

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/harun/recall/internal/observability"
	"github.com/rs/zerolog"
)

// FallbackProvider answers with secondary whenever primary fails. Vectors
// coming from secondary carry secondary's model key so they are never
// compared against primary vectors.
type FallbackProvider struct {
	primary   EmbeddingProvider
	secondary EmbeddingProvider
	logger    zerolog.Logger
	degraded  atomic.Bool
}

// NewFallbackProvider chains primary and secondary.
func NewFallbackProvider(primary, secondary EmbeddingProvider, logger zerolog.Logger) *FallbackProvider {
	return &FallbackProvider{primary: primary, secondary: secondary, logger: logger}
}

func (p *FallbackProvider) ID() string { return p.primary.ID() }

func (p *FallbackProvider) Model() string { return p.primary.Model() }

// MaxInputTokens is the tighter limit of the two backends.
func (p *FallbackProvider) MaxInputTokens() int {
	a, b := p.primary.MaxInputTokens(), p.secondary.MaxInputTokens()
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	default:
		return min(a, b)
	}
}

// Degraded reports whether the last call needed the secondary or failed.
func (p *FallbackProvider) Degraded() bool {
	return p.degraded.Load() || providerDegraded(p.secondary)
}

func (p *FallbackProvider) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	vecs, err := p.primary.EmbedBatch(ctx, texts)
	if err == nil {
		p.degraded.Store(false)
		return vecs, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	p.activate("embed_batch", err)

	vecs, err2 := p.secondary.EmbedBatch(ctx, texts)
	if err2 != nil {
		return nil, p.bothFailed("embed_batch", err, err2)
	}
	key := ModelKey(p.secondary)
	for i := range vecs {
		vecs[i].Model = key
	}
	return vecs, nil
}

func (p *FallbackProvider) EmbedQuery(ctx context.Context, text string) (Vector, error) {
	vec, err := p.primary.EmbedQuery(ctx, text)
	if err == nil {
		p.degraded.Store(false)
		return vec, nil
	}
	if ctx.Err() != nil {
		return Vector{}, err
	}
	p.activate("embed_query", err)

	vec, err2 := p.secondary.EmbedQuery(ctx, text)
	if err2 != nil {
		return Vector{}, p.bothFailed("embed_query", err, err2)
	}
	vec.Model = ModelKey(p.secondary)
	return vec, nil
}

func (p *FallbackProvider) activate(op string, err error) {
	p.degraded.Store(true)
	observability.RecordEmbeddingFallback(p.primary.ID(), p.secondary.ID())
	p.logger.Warn().Err(err).
		Str("op", op).
		Str("primary", p.primary.ID()).
		Str("secondary", p.secondary.ID()).
		Msg("Embedding provider failed, falling back")
}

func (p *FallbackProvider) bothFailed(op string, primaryErr, secondaryErr error) error {
	return &ProviderError{
		Provider:  p.primary.ID() + "+" + p.secondary.ID(),
		Op:        op,
		Retryable: IsRetryable(primaryErr) || IsRetryable(secondaryErr),
		Err:       errors.Join(primaryErr, secondaryErr),
	}
}
