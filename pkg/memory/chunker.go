package memory

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer names accepted by ChunkingConfig.Tokenizer.
const (
	TokenizerWords  = "words"
	TokenizerCL100K = "cl100k_base"
)

// Tokenizer splits text into tokens whose concatenation is the original text.
type Tokenizer interface {
	Name() string
	Tokenize(text string) []string
}

// NewTokenizer returns the tokenizer registered under name.
func NewTokenizer(name string) (Tokenizer, error) {
	switch name {
	case "", TokenizerWords:
		return wordTokenizer{}, nil
	case TokenizerCL100K:
		enc, err := cl100kEncoding()
		if err != nil {
			return nil, fmt.Errorf("load %s encoding: %w", name, err)
		}
		return &bpeTokenizer{name: name, enc: enc}, nil
	default:
		return nil, &ConfigError{Field: "chunking.tokenizer", Reason: "unknown tokenizer " + name}
	}
}

// wordTokenizer emits one token per whitespace-delimited word, carrying the
// whitespace that precedes it. Trailing whitespace becomes its own token.
type wordTokenizer struct{}

var wordPattern = regexp.MustCompile(`\s*\S+|\s+`)

func (wordTokenizer) Name() string { return TokenizerWords }

func (wordTokenizer) Tokenize(text string) []string {
	return wordPattern.FindAllString(text, -1)
}

type bpeTokenizer struct {
	name string
	enc  *tiktoken.Tiktoken
}

var (
	cl100kOnce sync.Once
	cl100kEnc  *tiktoken.Tiktoken
	cl100kErr  error
)

func cl100kEncoding() (*tiktoken.Tiktoken, error) {
	cl100kOnce.Do(func() {
		cl100kEnc, cl100kErr = tiktoken.GetEncoding(TokenizerCL100K)
	})
	return cl100kEnc, cl100kErr
}

func (t *bpeTokenizer) Name() string { return t.name }

// Tokenize decodes every BPE token on its own. A token may hold a partial
// UTF-8 sequence; the concatenation is still byte-exact.
func (t *bpeTokenizer) Tokenize(text string) []string {
	ids := t.enc.Encode(text, nil, nil)
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tokens[i] = t.enc.Decode([]int{id})
	}
	return tokens
}

// ChunkSpan is one window of a document's token sequence.
type ChunkSpan struct {
	Ordinal    int
	TokenStart int
	TokenEnd   int
	StartLine  int
	EndLine    int
	Text       string
}

// Chunk splits tokens into windows of at most maxTokens tokens where
// consecutive windows share overlap tokens. Line numbers are left zero.
func Chunk(tokens []string, maxTokens, overlap int) ([]ChunkSpan, error) {
	if maxTokens <= 0 {
		return nil, &ConfigError{Field: "chunking.tokens", Reason: "must be positive"}
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, &ConfigError{Field: "chunking.overlap", Reason: "must be in [0, chunking.tokens)"}
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	step := maxTokens - overlap
	var spans []ChunkSpan
	for start := 0; ; start += step {
		end := min(start+maxTokens, len(tokens))
		spans = append(spans, ChunkSpan{
			Ordinal:    len(spans),
			TokenStart: start,
			TokenEnd:   end,
			Text:       strings.Join(tokens[start:end], ""),
		})
		if end == len(tokens) {
			break
		}
	}
	return spans, nil
}

// Chunker binds a tokenizer to a window size.
type Chunker struct {
	tokenizer Tokenizer
	maxTokens int
	overlap   int
}

// NewChunker validates the window parameters.
func NewChunker(tokenizer Tokenizer, maxTokens, overlap int) (*Chunker, error) {
	if _, err := Chunk(nil, maxTokens, overlap); err != nil {
		return nil, err
	}
	return &Chunker{tokenizer: tokenizer, maxTokens: maxTokens, overlap: overlap}, nil
}

// MaxTokens returns the window size.
func (c *Chunker) MaxTokens() int { return c.maxTokens }

// Overlap returns the shared token count between neighbours.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks text and annotates every span with 1-based line numbers of
// its first and last non-blank characters.
func (c *Chunker) Split(text string) ([]ChunkSpan, error) {
	tokens := c.tokenizer.Tokenize(text)
	spans, err := Chunk(tokens, c.maxTokens, c.overlap)
	if err != nil {
		return nil, err
	}

	offsets := make([]int, len(tokens)+1)
	for i, tok := range tokens {
		offsets[i+1] = offsets[i] + len(tok)
	}

	for i := range spans {
		startByte := offsets[spans[i].TokenStart]
		endByte := offsets[spans[i].TokenEnd]
		body := text[startByte:endByte]

		lead := len(body) - len(strings.TrimLeft(body, " \t\r\n"))
		trail := len(body) - len(strings.TrimRight(body, " \t\r\n"))
		if lead == len(body) {
			line := 1 + strings.Count(text[:startByte], "\n")
			spans[i].StartLine, spans[i].EndLine = line, line
			continue
		}
		spans[i].StartLine = 1 + strings.Count(text[:startByte+lead], "\n")
		spans[i].EndLine = 1 + strings.Count(text[:endByte-trail], "\n")
	}
	return spans, nil
}
