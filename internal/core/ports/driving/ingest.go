package driving

import (
	"context"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// IngestService drives the write path: convert, store, chunk and link
// source files.
type IngestService interface {
	// IngestFile converts and stores one file, returning the updated
	// document row. Unchanged content is a no-op.
	IngestFile(ctx context.Context, f domain.DiscoveredFile, content []byte) (*domain.Document, error)

	// SyncCollection reconciles a collection against its root: ingests
	// new and changed files, tombstones vanished ones. Per-file
	// failures are recorded and never abort the pass.
	SyncCollection(ctx context.Context, c domain.Collection) (*domain.IngestResult, error)
}
