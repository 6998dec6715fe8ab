package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
	"github.com/custodia-labs/gnosis/internal/core/ports/driving"
	"github.com/custodia-labs/gnosis/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// DefaultSearchLimit is used when the caller does not set one.
const DefaultSearchLimit = 10

// maxSnippetRunes bounds the snippet text returned to callers.
const maxSnippetRunes = 240

// SearchService runs the retrieval pipeline: lexical and semantic
// search, reciprocal-rank fusion and optional expansion and reranking.
type SearchService struct {
	store    searchStore
	expander *Expander
	llm      driven.LLMService
	bm25     bm25Searcher
	vector   vectorSearcher
}

// NewSearchService creates a search service. The embedding and LLM
// services are optional; without them vector search and expansion or
// reranking degrade gracefully.
func NewSearchService(
	store searchStore,
	vectorIndex driven.VectorIndex,
	embeddingService driven.EmbeddingService,
	llmService driven.LLMService,
) *SearchService {
	return &SearchService{
		store:    store,
		expander: NewExpander(llmService),
		llm:      llmService,
		bm25:     bm25Searcher{store: store},
		vector: vectorSearcher{
			store:    store,
			index:    vectorIndex,
			embedder: embeddingService,
		},
	}
}

// SetPromptStore customises the expansion prompt template.
func (s *SearchService) SetPromptStore(store driven.PromptStore) {
	s.expander.SetPromptStore(store)
}

// SearchBM25 runs pure lexical retrieval for one query.
func (s *SearchService) SearchBM25(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.RankedResult, error) {
	query, limit, err := normalizeQuery(query, &opts)
	if err != nil {
		return nil, err
	}

	lists, err := s.bm25.search(ctx, []string{query}, opts)
	if err != nil {
		return nil, err
	}
	return s.assembleResults(ctx, lists[0], limit)
}

// SearchVector runs pure semantic retrieval for one query.
func (s *SearchService) SearchVector(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.RankedResult, error) {
	query, limit, err := normalizeQuery(query, &opts)
	if err != nil {
		return nil, err
	}

	lists, err := s.vector.search(ctx, []string{query}, "", opts)
	if err != nil {
		return nil, err
	}

	// Dedupe by document, keeping the best-scoring chunk.
	best := make(map[string]candidate)
	for _, cand := range lists[0] {
		if prev, ok := best[cand.docID]; !ok || cand.score > prev.score {
			best[cand.docID] = cand
		}
	}
	deduped := lo.Values(best)
	sortCandidates(deduped)
	return s.assembleResults(ctx, deduped, limit)
}

// Query runs the full hybrid pipeline.
func (s *SearchService) Query(ctx context.Context, query string, opts domain.QueryOptions) ([]domain.RankedResult, error) {
	query, limit, err := normalizeQuery(query, &opts.SearchOptions)
	if err != nil {
		return nil, err
	}
	logger.Section("Query Pipeline")
	logger.Debug("Query: %q, limit: %d, expand: %t, rerank: %t",
		query, limit, opts.Expand, opts.Rerank)

	expansion := s.expand(ctx, query, opts.Expand)

	lexLists, vecLists, err := s.retrieve(ctx, expansion, opts.SearchOptions)
	if err != nil {
		return nil, err
	}

	fused := fuseRRF(append(lexLists, vecLists...), defaultRRFK)
	if len(fused) > defaultFuseTopN {
		fused = fused[:defaultFuseTopN]
	}
	logger.Debug("Fused %d lexical + %d vector lists into %d candidates",
		len(lexLists), len(vecLists), len(fused))

	if opts.Rerank && s.llm != nil {
		rerank(ctx, s.llm, query, fused, defaultRerankAlpha)
	} else {
		normalizeRRF(fused)
	}

	ranked := lo.Map(fused, func(d fusedDoc, _ int) candidate {
		cand := d.best
		cand.score = d.score
		return cand
	})
	return s.assembleResults(ctx, ranked, limit)
}

// expand produces the query variants, falling back to the identity
// expansion when expansion is off or fails.
func (s *SearchService) expand(ctx context.Context, query string, enabled bool) domain.Expansion {
	if !enabled || s.llm == nil {
		return domain.IdentityExpansion(query)
	}
	expansion, err := s.expander.Expand(ctx, query)
	if err != nil {
		logger.Warn("Query expansion failed, using identity: %v", err)
		return domain.IdentityExpansion(query)
	}
	if len(expansion.LexicalQueries) == 0 {
		expansion.LexicalQueries = []string{query}
	}
	if len(expansion.VectorQueries) == 0 {
		expansion.VectorQueries = []string{query}
	}
	logger.Debug("Expansion: %d lexical, %d vector, hyde=%t",
		len(expansion.LexicalQueries), len(expansion.VectorQueries), expansion.HydePassage != "")
	return expansion
}

// retrieve runs lexical and vector retrieval concurrently. A missing
// vector side degrades the query to lexical only; a lexical failure is
// fatal.
func (s *SearchService) retrieve(ctx context.Context, expansion domain.Expansion, opts domain.SearchOptions) (lexLists, vecLists [][]candidate, err error) {
	var vecErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		vecLists, vecErr = s.vector.search(ctx, expansion.VectorQueries, expansion.HydePassage, opts)
	}()

	lexLists, err = s.bm25.search(ctx, expansion.LexicalQueries, opts)
	wg.Wait()
	if err != nil {
		return nil, nil, err
	}

	if vecErr != nil {
		if !errors.Is(vecErr, domain.ErrVecUnavailable) && domain.KindOf(vecErr) != domain.KindVecUnavailable {
			return nil, nil, vecErr
		}
		logger.Debug("Vector retrieval unavailable, lexical only")
		vecLists = nil
	}
	return lexLists, vecLists, nil
}

// assembleResults enriches the ranked candidates with source metadata
// in one batched document fetch and shapes the public results.
func (s *SearchService) assembleResults(ctx context.Context, ranked []candidate, limit int) ([]domain.RankedResult, error) {
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	if len(ranked) == 0 {
		return []domain.RankedResult{}, nil
	}

	hashes := lo.Uniq(lo.Map(ranked, func(c candidate, _ int) string { return c.mirrorHash }))
	docsByMirror, err := s.store.GetDocumentsForMirrors(ctx, hashes)
	if err != nil {
		return nil, err
	}
	byDocID := make(map[string]domain.Document)
	for _, docs := range docsByMirror {
		for _, doc := range docs {
			byDocID[doc.DocID] = doc
		}
	}

	results := make([]domain.RankedResult, 0, len(ranked))
	for _, cand := range ranked {
		doc, ok := byDocID[cand.docID]
		if !ok {
			// The document vanished between retrieval and assembly.
			continue
		}
		results = append(results, domain.RankedResult{
			DocID:   domain.FormatDocID(cand.docID),
			Score:   clamp01(cand.score),
			URI:     doc.URI,
			Title:   doc.Title,
			Snippet: makeSnippet(cand.text),
			Source: domain.ResultSource{
				RelPath:   doc.RelPath,
				MIME:      doc.SourceMIME,
				Ext:       doc.SourceExt,
				SizeBytes: doc.SourceSize,
			},
			Range: &domain.SnippetRange{
				StartLine: cand.startLine,
				EndLine:   cand.endLine,
			},
		})
	}
	return results, nil
}

// normalizeQuery validates the query and applies the default limit.
func normalizeQuery(query string, opts *domain.SearchOptions) (string, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", 0, domain.WrapError(domain.KindValidation, "empty query", domain.ErrInvalidInput)
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}
	return query, opts.Limit, nil
}

// sortCandidates orders by score descending, docid ascending on ties.
func sortCandidates(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].docID < cands[j].docID
	})
}

// makeSnippet trims the chunk text to a display-sized excerpt on a
// rune boundary.
func makeSnippet(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxSnippetRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxSnippetRunes])) + "..."
}
