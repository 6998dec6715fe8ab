package driven

import (
	"context"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// Store is the content-addressed persistence layer: documents, mirrors,
// chunks, the full-text index, durable vector rows, links and ingest
// diagnostics. Backed by SQLite.
type Store interface {
	// UpsertCollection registers a collection by name.
	UpsertCollection(ctx context.Context, c domain.Collection) error

	// ListCollections returns all registered collections.
	ListCollections(ctx context.Context) ([]domain.Collection, error)

	// UpsertDocument inserts or updates a document by (collection,
	// rel_path). DocID is issued on first insert and never mutated.
	UpsertDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by (collection, rel_path).
	GetDocument(ctx context.Context, collection, relPath string) (*domain.Document, error)

	// GetDocumentByDocID retrieves a document by its short identifier.
	GetDocumentByDocID(ctx context.Context, docid string) (*domain.Document, error)

	// ListDocuments returns documents, optionally restricted to one
	// collection. Tombstoned documents are included.
	ListDocuments(ctx context.Context, collection string) ([]domain.Document, error)

	// GetDocumentsForMirrors returns the active documents referring to
	// each mirror hash, in one query.
	GetDocumentsForMirrors(ctx context.Context, hashes []string) (map[string][]domain.Document, error)

	// TombstoneDocument marks a document inactive, keeping the row.
	TombstoneDocument(ctx context.Context, collection, relPath string) error

	// SetDocumentError records the latest ingest failure on the row.
	SetDocumentError(ctx context.Context, collection, relPath string, code domain.Kind, message string) error

	// UpsertContent stores canonical markdown under its hash.
	// Idempotent: an existing hash is left untouched.
	UpsertContent(ctx context.Context, mirrorHash, markdown string) error

	// GetContent retrieves a mirror by hash.
	GetContent(ctx context.Context, mirrorHash string) (*domain.Content, error)

	// PutChunks replaces all chunks and FTS rows for a mirror in one
	// transaction.
	PutChunks(ctx context.Context, mirrorHash string, chunks []domain.Chunk) error

	// GetChunksBatch fetches chunks for many mirrors in a single query,
	// ordered by seq within each hash.
	GetChunksBatch(ctx context.Context, hashes []string) (map[string][]domain.Chunk, error)

	// SearchFTS runs a full-text query over chunk text. Scores follow
	// the BM25 convention (more negative is better) and rows come back
	// pre-sorted ascending.
	SearchFTS(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.FTSHit, error)

	// FTSTokenizer returns the tokenizer the index was built with.
	FTSTokenizer(ctx context.Context) (string, error)

	// NeedsFTSRebuild reports whether the configured tokenizer differs
	// from the one the index was built with.
	NeedsFTSRebuild(ctx context.Context) (bool, error)

	// RebuildFTS drops and repopulates the full-text index with the
	// configured tokenizer.
	RebuildFTS(ctx context.Context) error

	// InsertVectorRows stores embeddings keyed by (mirror_hash, seq,
	// model), replacing on conflict. EmbeddedAt is assigned here.
	InsertVectorRows(ctx context.Context, rows []domain.VectorRow) error

	// DeleteVectorRowsForMirror removes all vectors of one mirror under
	// one model.
	DeleteVectorRowsForMirror(ctx context.Context, mirrorHash, model string) error

	// ListVectorKeys returns all stored (mirror_hash, seq) keys for a
	// model, for side-index reconciliation.
	ListVectorKeys(ctx context.Context, model string) ([]domain.ChunkKey, error)

	// GetVectorRows loads the stored embeddings for the given keys.
	GetVectorRows(ctx context.Context, model string, keys []domain.ChunkKey) ([]domain.VectorRow, error)

	// NextBacklog returns up to limit chunks past the cursor that have
	// no vector under the model, with one owning document title each.
	NextBacklog(ctx context.Context, model string, cursor domain.BacklogCursor, limit int) ([]domain.BacklogItem, error)

	// CountBacklog counts chunks without a vector under the model.
	CountBacklog(ctx context.Context, model string) (int, error)

	// PutLinks replaces all parsed links of a source document.
	PutLinks(ctx context.Context, sourceDocID int64, links []domain.Link) error

	// GetLinksForDoc returns outgoing links of a document.
	GetLinksForDoc(ctx context.Context, sourceDocID int64) ([]domain.Link, error)

	// GetBacklinksForDoc returns documents whose links resolve to the
	// given docid or its rel_path.
	GetBacklinksForDoc(ctx context.Context, doc *domain.Document) ([]domain.Backlink, error)

	// RecordIngestError appends a diagnostic row, assigning id and
	// occurred_at when unset. Never aborts a batch.
	RecordIngestError(ctx context.Context, e *domain.IngestError) error

	// ListIngestErrors returns recent diagnostics, newest first.
	ListIngestErrors(ctx context.Context, collection string, limit int) ([]domain.IngestError, error)

	// CleanupOrphans removes content without a referring document,
	// vectors without a referring chunk, and FTS rows without a chunk.
	// Reentrant; returns the number of rows removed.
	CleanupOrphans(ctx context.Context) (int, error)

	// Stats reports a status snapshot.
	Stats(ctx context.Context) (*domain.StoreStats, error)

	// Close flushes and releases the database handle.
	Close() error
}
