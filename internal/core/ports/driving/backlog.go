package driving

import (
	"context"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// BacklogProcessor drains the embedding backlog for the active model.
type BacklogProcessor interface {
	// Process embeds pending chunks in batches, stores the vectors, and
	// reconciles the vector side-index once at the end of the run.
	Process(ctx context.Context) (*domain.BacklogResult, error)

	// Pending reports how many chunks still lack a vector.
	Pending(ctx context.Context) (int, error)
}
