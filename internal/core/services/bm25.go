package services

import (
	"context"
	"math"

	"github.com/samber/lo"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/logger"
)

// candidate is one scored chunk attributed to a document, the common
// currency of the retrieval stages before fusion.
type candidate struct {
	docID      string
	uri        string
	title      string
	collection string
	relPath    string
	mirrorHash string
	seq        int
	text       string
	startLine  int
	endLine    int

	// score is normalized into [0,1], higher is better.
	score float64
}

// searchStore is the slice of the store the retrieval stages read.
type searchStore interface {
	SearchFTS(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.FTSHit, error)
	GetChunksBatch(ctx context.Context, hashes []string) (map[string][]domain.Chunk, error)
	GetDocumentsForMirrors(ctx context.Context, hashes []string) (map[string][]domain.Document, error)
}

// bm25Searcher runs lexical variants against the full-text index and
// hydrates chunk text in one batched fetch per call.
type bm25Searcher struct {
	store searchStore
}

// search returns one candidate list per variant, each ranked best
// first. Chunk hydration is a single batched query across all variants.
func (b bm25Searcher) search(ctx context.Context, variants []string, opts domain.SearchOptions) ([][]candidate, error) {
	hitLists := make([][]domain.FTSHit, 0, len(variants))
	for _, variant := range variants {
		hits, err := b.store.SearchFTS(ctx, variant, opts)
		if err != nil {
			return nil, err
		}
		logger.Debug("BM25 variant %q: %d hits", variant, len(hits))
		hitLists = append(hitLists, hits)
	}

	hashes := lo.Uniq(lo.FlatMap(hitLists, func(hits []domain.FTSHit, _ int) []string {
		return lo.Map(hits, func(h domain.FTSHit, _ int) string { return h.MirrorHash })
	}))
	byHash, err := b.store.GetChunksBatch(ctx, hashes)
	if err != nil {
		return nil, err
	}
	lookup := domain.NewChunkLookup(byHash)

	lists := make([][]candidate, len(hitLists))
	for i, hits := range hitLists {
		lists[i] = make([]candidate, 0, len(hits))
		for _, hit := range hits {
			chunk, ok := lookup.Get(hit.MirrorHash, hit.Seq)
			if !ok {
				continue
			}
			lists[i] = append(lists[i], candidate{
				docID:      hit.DocID,
				uri:        hit.URI,
				title:      hit.Title,
				collection: hit.Collection,
				relPath:    hit.RelPath,
				mirrorHash: hit.MirrorHash,
				seq:        hit.Seq,
				text:       chunk.Text,
				startLine:  chunk.StartLine,
				endLine:    chunk.EndLine,
				score:      normalizeBM25(hit.Score),
			})
		}
	}
	return lists, nil
}

// normalizeBM25 maps a raw BM25 score (more negative is better) into
// [0,1] with a logistic curve, monotone decreasing in the raw score.
func normalizeBM25(raw float64) float64 {
	return 1 - 1/(1+math.Exp(-raw))
}
