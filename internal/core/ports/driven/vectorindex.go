package driven

import (
	"context"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// VectorIndex mirrors durable vector rows into an ANN side-index and
// answers nearest-neighbour queries. The durable rows in the Store are
// the source of truth; the side-index is disposable and resynced.
type VectorIndex interface {
	// Available reports whether nearest-neighbour search is usable.
	// False when the ANN extension is not compiled in; vector writes
	// still succeed against the durable rows.
	Available() bool

	// UpsertVectors writes rows durably and mirrors them into the
	// side-index. Any side-index failure marks the index dirty instead
	// of failing the write.
	UpsertVectors(ctx context.Context, rows []domain.VectorRow) error

	// DeleteForMirror removes a mirror's vectors from rows and index.
	DeleteForMirror(ctx context.Context, mirrorHash, model string) error

	// SearchNearest returns the k closest chunks by cosine distance,
	// ascending. Returns a VEC_UNAVAILABLE error when Available is
	// false.
	SearchNearest(ctx context.Context, query []float32, k int) ([]domain.NearestHit, error)

	// NeedsSync reports whether the side-index diverges from the
	// durable rows.
	NeedsSync(ctx context.Context) (bool, error)

	// Sync reconciles the side-index against the durable rows: adds
	// missing keys, removes stale ones, clears the dirty flag.
	Sync(ctx context.Context) (added, removed int, err error)

	// Rebuild drops the side-index and repopulates it from the durable
	// rows.
	Rebuild(ctx context.Context) error

	// Close persists the side-index if supported.
	Close() error
}
