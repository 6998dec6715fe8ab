//go:build !cgo

package hnsw

import (
	"context"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// Default configuration values
const (
	DefaultMaxElements = 100000
)

// Hit is one nearest-neighbour result. Distance is cosine distance,
// smaller is closer.
type Hit struct {
	Key      string
	Distance float64
}

// Index provides vector similarity search using HNSWlib.
// This is a stub for builds without CGO: vectors still persist in the
// durable rows, only nearest-neighbour search is unavailable.
type Index struct {
	path      string
	dimension int
}

// New creates or opens an HNSW index at path.
// This is a stub for builds without CGO.
func New(path string, dimension int) (*Index, error) {
	return &Index{
		path:      path,
		dimension: dimension,
	}, nil
}

// Available reports that nearest-neighbour search is not usable.
func (idx *Index) Available() bool {
	return false
}

// Add inserts a vector under the given key.
func (idx *Index) Add(_ context.Context, _ string, _ []float32) error {
	return domain.ErrVecUnavailable
}

// Delete removes a vector from the index.
func (idx *Index) Delete(_ context.Context, _ string) error {
	return domain.ErrVecUnavailable
}

// Search finds the k nearest neighbours to the query vector.
func (idx *Index) Search(_ context.Context, _ []float32, _ int) ([]Hit, error) {
	return nil, domain.ErrVecUnavailable
}

// Keys lists every key currently in the index.
func (idx *Index) Keys(_ context.Context) ([]string, error) {
	return nil, domain.ErrVecUnavailable
}

// Count returns the number of vectors in the index.
func (idx *Index) Count(_ context.Context) (int, error) {
	return 0, domain.ErrVecUnavailable
}

// Close releases resources.
func (idx *Index) Close() error {
	return nil
}
