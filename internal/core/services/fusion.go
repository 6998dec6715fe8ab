package services

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
	"github.com/custodia-labs/gnosis/internal/logger"
)

const (
	// defaultRRFK dampens the weight of top ranks in fusion.
	defaultRRFK = 60

	// defaultFuseTopN is how many fused candidates go to the reranker.
	defaultFuseTopN = 20

	// defaultRerankAlpha blends reranker scores against normalized RRF.
	defaultRerankAlpha = 0.7
)

// fusedDoc is a document after reciprocal-rank fusion, carrying its
// best chunk for snippets and reranking.
type fusedDoc struct {
	best     candidate
	rrf      float64
	bestRank int // earliest 1-based rank across input lists

	// score is the final [0,1] score after normalization or blending.
	score float64
}

// fuseRRF merges candidate lists at the document level. The rank of a
// document within a list is the 1-based position of its first chunk,
// counting distinct documents only; absent documents contribute
// nothing. Permutation of the input lists does not change scores.
func fuseRRF(lists [][]candidate, k int) []fusedDoc {
	byDoc := make(map[string]*fusedDoc)

	for _, list := range lists {
		rank := 0
		seen := make(map[string]bool)
		for _, cand := range list {
			if seen[cand.docID] {
				continue
			}
			seen[cand.docID] = true
			rank++

			doc, ok := byDoc[cand.docID]
			if !ok {
				doc = &fusedDoc{best: cand, bestRank: rank}
				byDoc[cand.docID] = doc
			}
			doc.rrf += 1 / float64(k+rank)
			if rank < doc.bestRank {
				doc.bestRank = rank
			}
			// Keep the strongest chunk for snippets and reranking.
			if cand.score > doc.best.score {
				doc.best = cand
			}
		}
	}

	fused := lo.Map(lo.Values(byDoc), func(d *fusedDoc, _ int) fusedDoc { return *d })
	sortFused(fused, func(d fusedDoc) float64 { return d.rrf })
	return fused
}

// sortFused orders by the given score descending, breaking ties by the
// earlier best rank and then docid ascending.
func sortFused(fused []fusedDoc, score func(fusedDoc) float64) {
	sort.Slice(fused, func(i, j int) bool {
		si, sj := score(fused[i]), score(fused[j])
		if si != sj {
			return si > sj
		}
		if fused[i].bestRank != fused[j].bestRank {
			return fused[i].bestRank < fused[j].bestRank
		}
		return fused[i].best.docID < fused[j].best.docID
	})
}

// normalizeRRF min-max scales the RRF scores into [0,1] and assigns
// them as the final score. A degenerate range maps everything to 1.
func normalizeRRF(fused []fusedDoc) {
	if len(fused) == 0 {
		return
	}
	minScore, maxScore := fused[0].rrf, fused[0].rrf
	for _, d := range fused[1:] {
		if d.rrf < minScore {
			minScore = d.rrf
		}
		if d.rrf > maxScore {
			maxScore = d.rrf
		}
	}
	for i := range fused {
		if maxScore == minScore {
			fused[i].score = 1
		} else {
			fused[i].score = (fused[i].rrf - minScore) / (maxScore - minScore)
		}
	}
}

// rerank rescales the candidates with the cross-encoder and blends the
// result against normalized RRF. Reranker failure degrades to pure RRF.
func rerank(ctx context.Context, llm driven.LLMService, query string, fused []fusedDoc, alpha float64) {
	normalizeRRF(fused)
	if llm == nil || len(fused) == 0 {
		return
	}

	passages := lo.Map(fused, func(d fusedDoc, _ int) string { return d.best.text })
	scores, err := llm.Rerank(ctx, query, passages)
	if err != nil || len(scores) != len(fused) {
		logger.Warn("Rerank unavailable, keeping fusion order: %v", err)
		return
	}

	for i := range fused {
		fused[i].score = alpha*clamp01(scores[i]) + (1-alpha)*fused[i].score
	}
	sortFused(fused, func(d fusedDoc) float64 { return d.score })
}
