package domain

// SearchOptions configures a single retrieval call.
type SearchOptions struct {
	// Collection restricts results to one collection when non-empty.
	Collection string

	// Limit is the maximum number of results (default 10).
	Limit int

	// Threshold drops vector results scoring below it.
	Threshold float64
}

// QueryOptions configures the full hybrid pipeline.
type QueryOptions struct {
	SearchOptions

	// Expand enables LLM query expansion (lexical variants, rephrasings
	// and a hypothetical passage). Off, the raw query is used as both
	// the lexical and vector query.
	Expand bool

	// Rerank enables cross-encoder rescoring of the fused candidates.
	Rerank bool
}

// Expansion is the structured output of the query expander.
type Expansion struct {
	// LexicalQueries are short keyword variants (1-3 tokens each).
	LexicalQueries []string `json:"lexical_queries"`

	// VectorQueries are natural-language rephrasings preserving intent.
	VectorQueries []string `json:"vector_queries"`

	// HydePassage is a hypothetical answer passage used as an extra
	// vector query.
	HydePassage string `json:"hyde_passage"`
}

// IdentityExpansion is the fallback when the expander fails: the raw
// query as the sole lexical and vector variant.
func IdentityExpansion(query string) Expansion {
	return Expansion{
		LexicalQueries: []string{query},
		VectorQueries:  []string{query},
	}
}

// FTSHit is one row of a full-text query, pre-sorted by the store with
// the best match first. Score follows the BM25 convention: more
// negative is better.
type FTSHit struct {
	MirrorHash string
	Seq        int
	Score      float64
	DocID      string
	URI        string
	Title      string
	Collection string
	RelPath    string
}

// NearestHit is one row of a nearest-neighbour query. Distance is
// cosine distance, ascending: smaller is closer.
type NearestHit struct {
	MirrorHash string
	Seq        int
	Distance   float64
}

// ResultSource describes the source file behind a ranked result.
type ResultSource struct {
	RelPath   string `json:"rel_path"`
	MIME      string `json:"mime"`
	Ext       string `json:"ext"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// SnippetRange locates a snippet within the canonical markdown,
// 1-based inclusive.
type SnippetRange struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// RankedResult is the public result shape. Score is always in [0,1].
type RankedResult struct {
	DocID   string        `json:"docid"`
	Score   float64       `json:"score"`
	URI     string        `json:"uri"`
	Title   string        `json:"title,omitempty"`
	Snippet string        `json:"snippet"`
	Source  ResultSource  `json:"source"`
	Range   *SnippetRange `json:"snippet_range,omitempty"`
}
