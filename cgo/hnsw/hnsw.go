//go:build cgo

package hnsw

/*
#cgo CXXFLAGS: -std=c++17 -O3 -I${SRCDIR}/../../clib/build/_deps/hnswlib-src
#cgo LDFLAGS: -lstdc++

#include "hnsw_wrapper.h"
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"errors"
	"sync"
	"unsafe"
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

// Index provides vector similarity search using HNSWlib. Keys are
// opaque strings chosen by the caller.
type Index struct {
	mu        sync.RWMutex
	idx       *C.HnswIndex
	path      string
	dimension int
}

// New creates or opens an HNSW index at path.
func New(path string, dimension int) (*Index, error) {
	if path == "" {
		return nil, errors.New("hnsw: path cannot be empty")
	}
	if dimension <= 0 {
		return nil, errors.New("hnsw: dimension must be positive")
	}

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	// Try to open existing index first
	idx := C.hnsw_open(cpath, C.int(dimension))
	if idx == nil {
		idx = C.hnsw_create(cpath, C.int(dimension), C.int(DefaultMaxElements))
		if idx == nil {
			return nil, errors.New("hnsw: failed to create index")
		}
	}

	return &Index{
		idx:       idx,
		path:      path,
		dimension: dimension,
	}, nil
}

// Available reports that nearest-neighbour search is usable.
func (idx *Index) Available() bool {
	return true
}

// Add inserts a vector under the given key, replacing any previous
// vector for that key.
func (idx *Index) Add(_ context.Context, key string, embedding []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.idx == nil {
		return errors.New("hnsw: index is closed")
	}
	if len(embedding) != idx.dimension {
		return errors.New("hnsw: embedding dimension mismatch")
	}

	cKey := C.CString(key)
	defer C.free(unsafe.Pointer(cKey))

	result := C.hnsw_add(
		idx.idx,
		cKey,
		(*C.float)(unsafe.Pointer(&embedding[0])),
		C.int(idx.dimension),
	)
	if result != 0 {
		return errors.New("hnsw: failed to add vector")
	}
	return nil
}

// Delete removes a vector from the index. Deleting an absent key is
// not an error.
func (idx *Index) Delete(_ context.Context, key string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.idx == nil {
		return errors.New("hnsw: index is closed")
	}

	cKey := C.CString(key)
	defer C.free(unsafe.Pointer(cKey))

	if result := C.hnsw_delete(idx.idx, cKey); result != 0 {
		return errors.New("hnsw: failed to delete vector")
	}
	return nil
}

// Search finds the k nearest neighbours to the query vector, closest
// first.
func (idx *Index) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.idx == nil {
		return nil, errors.New("hnsw: index is closed")
	}
	if len(query) != idx.dimension {
		return nil, errors.New("hnsw: query dimension mismatch")
	}
	if k <= 0 {
		return nil, nil
	}

	var results *C.HnswSearchResult
	count := C.hnsw_search(
		idx.idx,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.int(idx.dimension),
		C.int(k),
		&results,
	)
	if count < 0 {
		return nil, errors.New("hnsw: search failed")
	}
	if count == 0 || results == nil {
		return nil, nil
	}
	defer C.hnsw_free_results(results, count)

	hits := make([]Hit, int(count))
	cResults := unsafe.Slice(results, int(count))
	for i := 0; i < int(count); i++ {
		hits[i] = Hit{
			Key:      C.GoString(cResults[i].key),
			Distance: float64(cResults[i].distance),
		}
	}
	return hits, nil
}

// Keys lists every key currently in the index, for reconciliation
// against the durable rows.
func (idx *Index) Keys(_ context.Context) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.idx == nil {
		return nil, errors.New("hnsw: index is closed")
	}

	var cKeys **C.char
	count := C.hnsw_keys(idx.idx, &cKeys)
	if count < 0 {
		return nil, errors.New("hnsw: listing keys failed")
	}
	if count == 0 || cKeys == nil {
		return nil, nil
	}
	defer C.hnsw_free_keys(cKeys, count)

	keys := make([]string, int(count))
	cSlice := unsafe.Slice(cKeys, int(count))
	for i := 0; i < int(count); i++ {
		keys[i] = C.GoString(cSlice[i])
	}
	return keys, nil
}

// Count returns the number of vectors in the index.
func (idx *Index) Count(_ context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.idx == nil {
		return 0, errors.New("hnsw: index is closed")
	}
	return int(C.hnsw_count(idx.idx)), nil
}

// Close persists the index to disk and releases resources.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.idx != nil {
		C.hnsw_close(idx.idx)
		idx.idx = nil
	}
	return nil
}
