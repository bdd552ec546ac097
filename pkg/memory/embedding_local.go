package memory

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const defaultLocalDimensions = 256

var termPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// queryTerms extracts lowercased, de-duplicated terms in first-seen order.
func queryTerms(text string) []string {
	raw := termPattern.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]bool, len(raw))
	terms := raw[:0]
	for _, t := range raw {
		if seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

// LocalProvider embeds text offline with signed feature hashing over a
// bag of words. It never fails and needs no network.
type LocalProvider struct {
	dims int
}

// NewLocalProvider creates a hashing embedder with dims dimensions.
func NewLocalProvider(dims int) *LocalProvider {
	if dims <= 0 {
		dims = defaultLocalDimensions
	}
	return &LocalProvider{dims: dims}
}

func (p *LocalProvider) ID() string { return ProviderLocal }

func (p *LocalProvider) Model() string { return fmt.Sprintf("hashed-bow-%d", p.dims) }

func (p *LocalProvider) MaxInputTokens() int { return 0 }

func (p *LocalProvider) EmbedQuery(ctx context.Context, text string) (Vector, error) {
	if err := ctx.Err(); err != nil {
		return Vector{}, err
	}
	return Vector{Values: p.embed(text), Model: ModelKey(p)}, nil
}

func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	key := ModelKey(p)
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = Vector{Values: p.embed(text), Model: key}
	}
	return out, nil
}

// embed returns the L2-normalized hashed term vector. Text without terms
// yields the zero vector.
func (p *LocalProvider) embed(text string) []float32 {
	counts := make(map[string]int)
	for _, t := range termPattern.FindAllString(strings.ToLower(text), -1) {
		counts[t]++
	}

	acc := make([]float64, p.dims)
	for term, tf := range counts {
		h := xxhash.Sum64String(term)
		idx := int(h % uint64(p.dims))
		weight := 1 + math.Log(float64(tf))
		if h&(1<<63) != 0 {
			weight = -weight
		}
		acc[idx] += weight
	}

	var norm float64
	for _, x := range acc {
		norm += x * x
	}
	norm = math.Sqrt(norm)

	out := make([]float32, p.dims)
	if norm == 0 {
		return out
	}
	for i, x := range acc {
		out[i] = float32(x / norm)
	}
	return out
}
