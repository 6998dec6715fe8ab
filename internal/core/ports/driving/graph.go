package driving

import (
	"context"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// GraphService exposes the link graph and embedding-space neighbourhood
// of documents. Document identifiers are the external "#hex" form.
type GraphService interface {
	// GetLinks returns a document's outgoing links ordered by position.
	// linkType filters to one type when non-empty.
	GetLinks(ctx context.Context, docid string, linkType domain.LinkType) (*domain.LinkReport, error)

	// GetBacklinks returns the links pointing at a document, ordered by
	// source URI then position.
	GetBacklinks(ctx context.Context, docid string) (*domain.BacklinkReport, error)

	// GetSimilar returns documents close to the given one in embedding
	// space, best first.
	GetSimilar(ctx context.Context, docid string, opts domain.SimilarOptions) ([]domain.SimilarDoc, error)
}
