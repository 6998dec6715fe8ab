// Package vectorindex mirrors durable vector rows into a disposable
// HNSW side-index. The SQLite rows are the source of truth; the
// side-index is rebuilt or resynced whenever the two diverge.
package vectorindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/custodia-labs/gnosis/cgo/hnsw"
	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
	"github.com/custodia-labs/gnosis/internal/logger"
)

// Ensure Index implements the port.
var _ driven.VectorIndex = (*Index)(nil)

// vectorRows is the slice of the store the side-index needs.
type vectorRows interface {
	InsertVectorRows(ctx context.Context, rows []domain.VectorRow) error
	DeleteVectorRowsForMirror(ctx context.Context, mirrorHash, model string) error
	ListVectorKeys(ctx context.Context, model string) ([]domain.ChunkKey, error)
	GetVectorRows(ctx context.Context, model string, keys []domain.ChunkKey) ([]domain.VectorRow, error)
}

// ann is the nearest-neighbour index behind the adapter.
type ann interface {
	Available() bool
	Add(ctx context.Context, key string, embedding []float32) error
	Delete(ctx context.Context, key string) error
	Search(ctx context.Context, query []float32, k int) ([]hnsw.Hit, error)
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Index composes the durable vector rows with an ANN side-index for
// one embedding model.
type Index struct {
	rows  vectorRows
	ann   ann
	model string

	// dirty is set when a side-index write fails after the durable
	// write succeeded; Sync clears it.
	dirty atomic.Bool
}

// New wires the side-index over the durable rows for the given model.
func New(rows vectorRows, annIndex ann, model string) *Index {
	return &Index{rows: rows, ann: annIndex, model: model}
}

// Open creates or opens the HNSW index file and wires it over rows.
func Open(rows vectorRows, path string, dimension int, model string) (*Index, error) {
	annIndex, err := hnsw.New(path, dimension)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "opening vector side-index", err)
	}
	return New(rows, annIndex, model), nil
}

// Available reports whether nearest-neighbour search is usable.
func (i *Index) Available() bool {
	return i.ann.Available()
}

// Model returns the embedding model the index serves.
func (i *Index) Model() string {
	return i.model
}

// UpsertVectors writes rows durably, then mirrors them into the
// side-index. A side-index failure marks the index dirty; the durable
// write stands.
func (i *Index) UpsertVectors(ctx context.Context, rows []domain.VectorRow) error {
	if err := i.rows.InsertVectorRows(ctx, rows); err != nil {
		return err
	}
	if !i.ann.Available() {
		return nil
	}

	for _, row := range rows {
		if err := i.ann.Add(ctx, encodeKey(row.MirrorHash, row.Seq), row.Embedding); err != nil {
			logger.Warn("side-index add failed for %s#%d, marking dirty: %v",
				row.MirrorHash, row.Seq, err)
			i.dirty.Store(true)
			return nil
		}
	}
	return nil
}

// DeleteForMirror removes a mirror's vectors from the durable rows and
// the side-index.
func (i *Index) DeleteForMirror(ctx context.Context, mirrorHash, model string) error {
	if err := i.rows.DeleteVectorRowsForMirror(ctx, mirrorHash, model); err != nil {
		return err
	}
	if !i.ann.Available() {
		return nil
	}

	keys, err := i.ann.Keys(ctx)
	if err != nil {
		i.dirty.Store(true)
		return nil
	}
	prefix := mirrorHash + ":"
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := i.ann.Delete(ctx, key); err != nil {
			logger.Warn("side-index delete failed for %s, marking dirty: %v", key, err)
			i.dirty.Store(true)
			return nil
		}
	}
	return nil
}

// SearchNearest returns the k closest chunks by cosine distance,
// ascending.
func (i *Index) SearchNearest(ctx context.Context, query []float32, k int) ([]domain.NearestHit, error) {
	if !i.ann.Available() {
		return nil, domain.WrapError(domain.KindVecUnavailable,
			"vector search requires the ANN extension", domain.ErrVecUnavailable)
	}
	if len(query) == 0 {
		return nil, domain.WrapError(domain.KindValidation, "empty query vector", domain.ErrInvalidInput)
	}

	raw, err := i.ann.Search(ctx, query, k)
	if err != nil {
		return nil, domain.WrapError(domain.KindVecUnavailable, "vector search", err)
	}

	hits := make([]domain.NearestHit, 0, len(raw))
	for _, h := range raw {
		hash, seq, err := decodeKey(h.Key)
		if err != nil {
			logger.Warn("skipping malformed side-index key %q: %v", h.Key, err)
			continue
		}
		hits = append(hits, domain.NearestHit{
			MirrorHash: hash,
			Seq:        seq,
			Distance:   h.Distance,
		})
	}
	return hits, nil
}

// NeedsSync reports whether the side-index diverges from the durable
// rows.
func (i *Index) NeedsSync(ctx context.Context) (bool, error) {
	if i.dirty.Load() {
		return true, nil
	}
	if !i.ann.Available() {
		return false, nil
	}

	added, removed, err := i.diff(ctx)
	if err != nil {
		return false, err
	}
	return len(added) > 0 || len(removed) > 0, nil
}

// Sync reconciles the side-index against the durable rows: adds rows
// the index is missing, removes keys with no durable row, clears the
// dirty flag.
func (i *Index) Sync(ctx context.Context) (added, removed int, err error) {
	if !i.ann.Available() {
		i.dirty.Store(false)
		return 0, 0, nil
	}

	missing, stale, err := i.diff(ctx)
	if err != nil {
		return 0, 0, err
	}

	if len(missing) > 0 {
		rows, err := i.rows.GetVectorRows(ctx, i.model, missing)
		if err != nil {
			return 0, 0, err
		}
		for _, row := range rows {
			if err := i.ann.Add(ctx, encodeKey(row.MirrorHash, row.Seq), row.Embedding); err != nil {
				return added, removed, domain.WrapError(domain.KindVecSyncFailed,
					"adding to side-index", err)
			}
			added++
		}
	}

	for _, key := range stale {
		if err := i.ann.Delete(ctx, key); err != nil {
			return added, removed, domain.WrapError(domain.KindVecSyncFailed,
				"removing from side-index", err)
		}
		removed++
	}

	i.dirty.Store(false)
	return added, removed, nil
}

// Rebuild drops everything from the side-index and repopulates it from
// the durable rows.
func (i *Index) Rebuild(ctx context.Context) error {
	if !i.ann.Available() {
		return domain.WrapError(domain.KindVecUnavailable,
			"rebuild requires the ANN extension", domain.ErrVecUnavailable)
	}

	keys, err := i.ann.Keys(ctx)
	if err != nil {
		return domain.WrapError(domain.KindVecSyncFailed, "listing side-index keys", err)
	}
	for _, key := range keys {
		if err := i.ann.Delete(ctx, key); err != nil {
			return domain.WrapError(domain.KindVecSyncFailed, "clearing side-index", err)
		}
	}

	stored, err := i.rows.ListVectorKeys(ctx, i.model)
	if err != nil {
		return err
	}
	rows, err := i.rows.GetVectorRows(ctx, i.model, stored)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := i.ann.Add(ctx, encodeKey(row.MirrorHash, row.Seq), row.Embedding); err != nil {
			return domain.WrapError(domain.KindVecSyncFailed, "repopulating side-index", err)
		}
	}

	i.dirty.Store(false)
	return nil
}

// Close persists the side-index.
func (i *Index) Close() error {
	return i.ann.Close()
}

// diff returns the durable keys missing from the side-index and the
// side-index keys with no durable row.
func (i *Index) diff(ctx context.Context) (missing []domain.ChunkKey, stale []string, err error) {
	stored, err := i.rows.ListVectorKeys(ctx, i.model)
	if err != nil {
		return nil, nil, err
	}
	indexed, err := i.ann.Keys(ctx)
	if err != nil {
		return nil, nil, domain.WrapError(domain.KindVecSyncFailed, "listing side-index keys", err)
	}

	indexedSet := make(map[string]bool, len(indexed))
	for _, key := range indexed {
		indexedSet[key] = true
	}
	storedSet := make(map[string]bool, len(stored))
	for _, key := range stored {
		encoded := encodeKey(key.MirrorHash, key.Seq)
		storedSet[encoded] = true
		if !indexedSet[encoded] {
			missing = append(missing, key)
		}
	}
	for _, key := range indexed {
		if !storedSet[key] {
			stale = append(stale, key)
		}
	}
	return missing, stale, nil
}

// encodeKey joins a chunk identity into a side-index key. The mirror
// hash is hex, so ':' never appears in it.
func encodeKey(mirrorHash string, seq int) string {
	return mirrorHash + ":" + strconv.Itoa(seq)
}

func decodeKey(key string) (mirrorHash string, seq int, err error) {
	i := strings.LastIndexByte(key, ':')
	if i < 0 {
		return "", 0, fmt.Errorf("key %q has no seq separator", key)
	}
	seq, err = strconv.Atoi(key[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("key %q has a non-numeric seq", key)
	}
	return key[:i], seq, nil
}
