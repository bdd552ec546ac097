package memory

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const snippetMaxChars = 700

// SearchResult represents a search result with relevance score
type SearchResult struct {
	Path         string    `json:"path"`
	StartLine    int       `json:"start_line"`
	EndLine      int       `json:"end_line"`
	Snippet      string    `json:"snippet"`
	Score        float64   `json:"score"`
	VectorScore  *float64  `json:"vector_score,omitempty"`
	KeywordScore *float64  `json:"keyword_score,omitempty"`
	Chunk        int       `json:"chunk"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// SearchOptions overrides the configured query defaults. Zero fields keep
// the defaults; MinScore is a pointer so a caller can ask for 0.
type SearchOptions struct {
	MaxResults   int
	MinScore     *float64
	VectorWeight float64
	TextWeight   float64
}

type searchParams struct {
	maxResults   int
	minScore     float64
	vectorWeight float64
	textWeight   float64
}

// candidateMultiplier sizes each candidate list relative to the result count.
const candidateMultiplier = 8

// candidateLimit bounds the keyword and vector candidate lists; zero means
// unbounded.
func (p searchParams) candidateLimit() int {
	if p.maxResults <= 0 {
		return 0
	}
	return max(p.maxResults*candidateMultiplier, 50)
}

// resolveSearch merges opts over the configured defaults.
func resolveSearch(cfg QueryConfig, opts *SearchOptions) (searchParams, error) {
	p := searchParams{
		maxResults:   cfg.MaxResults,
		minScore:     cfg.MinScore,
		vectorWeight: cfg.VectorWeight,
		textWeight:   cfg.TextWeight,
	}
	if opts != nil {
		if opts.MaxResults > 0 {
			p.maxResults = opts.MaxResults
		}
		if opts.MinScore != nil {
			p.minScore = *opts.MinScore
		}
		if opts.VectorWeight != 0 || opts.TextWeight != 0 {
			p.vectorWeight = opts.VectorWeight
			p.textWeight = opts.TextWeight
		}
	}
	if invalidFloat(p.minScore) || p.minScore < 0 || p.minScore > 1 {
		return searchParams{}, &ConfigError{Field: "query.min_score", Reason: "must be in [0, 1]"}
	}
	if err := validateWeights(p.vectorWeight, p.textWeight); err != nil {
		return searchParams{}, err
	}
	return p, nil
}

// ftsMatch turns a free-text query into an FTS5 expression matching any of
// its terms. Terms only hold letters, digits and underscores, so quoting
// them is enough to keep FTS5 operators out.
func ftsMatch(query string) string {
	terms := queryTerms(query)
	for i, t := range terms {
		terms[i] = `"` + t + `"`
	}
	return strings.Join(terms, " OR ")
}

// rankCandidates turns store candidates into ranked results.
//
// Keyword scores are bm25 ranks divided by the best rank among the
// candidates, in [0, 1]. The vector score is 1 - cosine distance clamped at
// 0 and exists only for candidates whose distance was computed. Without a
// vector score the combined score is the keyword score.
func rankCandidates(cands []ChunkCandidate, p searchParams) []SearchResult {
	var best float64
	for _, c := range cands {
		if c.BM25 != nil && *c.BM25 > best {
			best = *c.BM25
		}
	}

	results := make([]SearchResult, 0, len(cands))
	for _, c := range cands {
		var keyword float64
		if c.BM25 != nil && best > 0 {
			keyword = math.Max(0, *c.BM25/best)
		}

		var vector *float64
		if c.Distance != nil {
			v := math.Max(0, 1-*c.Distance)
			vector = &v
		}

		if vector == nil && keyword == 0 {
			continue
		}
		score := keyword
		if vector != nil {
			score = p.vectorWeight**vector + p.textWeight*keyword
		}
		if score < p.minScore {
			continue
		}

		ks := keyword
		results = append(results, SearchResult{
			Path:         c.DocumentPath,
			StartLine:    c.StartLine,
			EndLine:      c.EndLine,
			Snippet:      truncateRunes(strings.TrimSpace(c.Text), snippetMaxChars),
			Score:        score,
			VectorScore:  vector,
			KeywordScore: &ks,
			Chunk:        c.Ordinal,
			ModifiedAt:   c.ModTime,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.ModifiedAt.Equal(b.ModifiedAt) {
			return a.ModifiedAt.After(b.ModifiedAt)
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Chunk < b.Chunk
	})

	if p.maxResults > 0 && len(results) > p.maxResults {
		results = results[:p.maxResults]
	}
	return results
}

// normalizeQuery trims and collapses whitespace.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func cloneResults(in []SearchResult) []SearchResult {
	if in == nil {
		return nil
	}
	out := make([]SearchResult, len(in))
	for i, r := range in {
		if r.VectorScore != nil {
			v := *r.VectorScore
			r.VectorScore = &v
		}
		if r.KeywordScore != nil {
			k := *r.KeywordScore
			r.KeywordScore = &k
		}
		out[i] = r
	}
	return out
}
