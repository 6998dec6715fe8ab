package services

import (
	"context"
	"math"

	"github.com/samber/lo"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
	"github.com/custodia-labs/gnosis/internal/logger"
)

// maxNearestK caps the amplified k handed to the ANN index.
const maxNearestK = 200

// vectorSearcher embeds query variants and runs nearest-neighbour
// retrieval, hydrating hits back to documents and chunk text.
type vectorSearcher struct {
	store    searchStore
	index    driven.VectorIndex
	embedder queryEmbedder
}

// queryEmbedder is the slice of the embedding service query-time
// retrieval needs.
type queryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// available reports whether semantic retrieval can run at all.
func (v vectorSearcher) available() bool {
	return v.embedder != nil && v.index != nil && v.index.Available()
}

// search returns one candidate list per variant (the HyDE passage, when
// present, is one more variant), each ranked by similarity descending.
func (v vectorSearcher) search(ctx context.Context, variants []string, hyde string, opts domain.SearchOptions) ([][]candidate, error) {
	if !v.available() {
		return nil, domain.WrapError(domain.KindVecUnavailable, "vector search", domain.ErrVecUnavailable)
	}
	if hyde != "" {
		variants = append(append([]string{}, variants...), hyde)
	}

	// Over-fetch so collection filtering and doc-level dedupe still
	// leave enough candidates.
	k := opts.Limit * 5
	if k < opts.Limit {
		k = opts.Limit
	}
	if k > maxNearestK {
		k = maxNearestK
	}

	hitLists := make([][]domain.NearestHit, 0, len(variants))
	for _, variant := range variants {
		embedding, err := v.embedder.Embed(ctx, variant)
		if err != nil {
			return nil, domain.WrapError(domain.KindAdapterFailure, "embedding query variant", err)
		}
		unitNormalize(embedding)

		hits, err := v.index.SearchNearest(ctx, embedding, k)
		if err != nil {
			return nil, err
		}
		logger.Debug("Vector variant %q: %d hits", variant, len(hits))
		hitLists = append(hitLists, hits)
	}

	return v.hydrate(ctx, hitLists, opts)
}

// hydrate turns nearest hits into candidates with one batched document
// fetch and one batched chunk fetch across all variants.
func (v vectorSearcher) hydrate(ctx context.Context, hitLists [][]domain.NearestHit, opts domain.SearchOptions) ([][]candidate, error) {
	hashes := lo.Uniq(lo.FlatMap(hitLists, func(hits []domain.NearestHit, _ int) []string {
		return lo.Map(hits, func(h domain.NearestHit, _ int) string { return h.MirrorHash })
	}))

	docsByMirror, err := v.store.GetDocumentsForMirrors(ctx, hashes)
	if err != nil {
		return nil, err
	}
	byHash, err := v.store.GetChunksBatch(ctx, hashes)
	if err != nil {
		return nil, err
	}
	lookup := domain.NewChunkLookup(byHash)

	lists := make([][]candidate, len(hitLists))
	for i, hits := range hitLists {
		for _, hit := range hits {
			similarity := clamp01(1 - hit.Distance)
			if opts.Threshold > 0 && similarity < opts.Threshold {
				continue
			}
			chunk, ok := lookup.Get(hit.MirrorHash, hit.Seq)
			if !ok {
				continue
			}
			for _, doc := range docsByMirror[hit.MirrorHash] {
				if opts.Collection != "" && doc.Collection != opts.Collection {
					continue
				}
				lists[i] = append(lists[i], candidate{
					docID:      doc.DocID,
					uri:        doc.URI,
					title:      doc.Title,
					collection: doc.Collection,
					relPath:    doc.RelPath,
					mirrorHash: hit.MirrorHash,
					seq:        hit.Seq,
					text:       chunk.Text,
					startLine:  chunk.StartLine,
					endLine:    chunk.EndLine,
					score:      similarity,
				})
			}
		}
	}
	return lists, nil
}

// unitNormalize scales the vector to unit length in place. Zero
// vectors are left untouched.
func unitNormalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
