package driving

import (
	"context"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// SearchService exposes the retrieval operations to external actors.
// All scores returned to callers are in [0,1].
type SearchService interface {
	// SearchBM25 runs pure lexical retrieval over the full-text index.
	SearchBM25(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.RankedResult, error)

	// SearchVector runs pure semantic retrieval over the vector index.
	// Fails with a VEC_UNAVAILABLE error when nearest-neighbour search
	// is not usable.
	SearchVector(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.RankedResult, error)

	// Query runs the hybrid pipeline: optional query expansion, lexical
	// and vector retrieval, reciprocal-rank fusion and optional
	// cross-encoder reranking.
	Query(ctx context.Context, query string, opts domain.QueryOptions) ([]domain.RankedResult, error)
}
