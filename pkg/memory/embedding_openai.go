package memory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultOpenAIModel          = "text-embedding-3-small"
	defaultOpenAIMaxInputTokens = 8191

	defaultOllamaBaseURL = "http://localhost:11434/v1"
	defaultOllamaModel   = "nomic-embed-text"
	defaultOllamaAPIKey  = "ollama"
)

// lookupEnv is swapped in tests.
var lookupEnv = os.Getenv

// OpenAIProvider embeds through any OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	client         openai.Client
	id             string
	model          string
	maxInputTokens int
}

// NewOpenAIProvider creates a provider for the OpenAI API. An API key is
// required either in remote or in OPENAI_API_KEY.
func NewOpenAIProvider(model string, remote RemoteConfig) (*OpenAIProvider, error) {
	if model == "" {
		model = defaultOpenAIModel
	}
	if remote.MaxInputTokens == 0 {
		remote.MaxInputTokens = defaultOpenAIMaxInputTokens
	}
	return newOpenAICompatible(ProviderOpenAI, model, remote, remote.APIKey == "")
}

// NewOllamaProvider creates a provider for a local Ollama server through its
// OpenAI-compatible API.
func NewOllamaProvider(model string, remote RemoteConfig) (*OpenAIProvider, error) {
	if model == "" {
		model = defaultOllamaModel
	}
	if remote.BaseURL == "" {
		remote.BaseURL = defaultOllamaBaseURL
	}
	if remote.APIKey == "" {
		remote.APIKey = defaultOllamaAPIKey
	}
	return newOpenAICompatible(ProviderOllama, model, remote, false)
}

func newOpenAICompatible(id, model string, remote RemoteConfig, keyFromEnv bool) (*OpenAIProvider, error) {
	opts := []option.RequestOption{}
	if remote.APIKey != "" {
		opts = append(opts, option.WithAPIKey(remote.APIKey))
	} else if keyFromEnv && lookupEnv("OPENAI_API_KEY") == "" {
		return nil, &ConfigError{Field: "remote.api_key", Reason: "is required for provider " + id}
	}
	if remote.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(remote.BaseURL))
	}
	for k, v := range remote.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	if remote.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(remote.MaxRetries))
	}
	if remote.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(remote.Timeout))
	}

	return &OpenAIProvider{
		client:         openai.NewClient(opts...),
		id:             id,
		model:          model,
		maxInputTokens: remote.MaxInputTokens,
	}, nil
}

func (p *OpenAIProvider) ID() string { return p.id }

func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) MaxInputTokens() int { return p.maxInputTokens }

func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) (Vector, error) {
	vecs, err := p.embed(ctx, "embed_query", []string{text})
	if err != nil {
		return Vector{}, err
	}
	return vecs[0], nil
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return p.embed(ctx, "embed_batch", texts)
}

func (p *OpenAIProvider) embed(ctx context.Context, op string, texts []string) ([]Vector, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, p.wrap(op, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &ProviderError{
			Provider: p.id,
			Op:       op,
			Err:      fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)),
		}
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	key := p.id + "/" + p.model
	out := make([]Vector, len(data))
	for i, d := range data {
		values := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			values[j] = float32(f)
		}
		out[i] = Vector{Values: values, Model: key}
	}
	return out, nil
}

// wrap classifies err. Rate limits and server errors are retryable, other
// API errors are not. Transport failures are retryable unless ctx ended.
func (p *OpenAIProvider) wrap(op string, err error) error {
	perr := &ProviderError{Provider: p.id, Op: op, Err: err}

	var apiErr *openai.Error
	switch {
	case errors.As(err, &apiErr):
		perr.Retryable = apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		perr.Retryable = true
	}
	return perr
}
