package driven

import (
	"context"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// Discovery enumerates the source files of a collection root.
type Discovery interface {
	// List walks the collection root and returns every candidate file,
	// ordered by relative path.
	List(ctx context.Context, c domain.Collection) ([]domain.DiscoveredFile, error)

	// Read loads the raw bytes of a discovered file.
	Read(ctx context.Context, f domain.DiscoveredFile) ([]byte, error)

	// Watch emits a file tuple for every create or modify under the
	// collection root until the context ends.
	Watch(ctx context.Context, c domain.Collection, events chan<- domain.DiscoveredFile) error
}
