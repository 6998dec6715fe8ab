package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/gnosis/internal/canonical"
	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "gnosis-test-*")
	require.NoError(t, err)

	store, err := Open(filepath.Join(tempDir, "gnosis.db"), "")
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		assert.NoError(t, store.Close())
		assert.NoError(t, os.RemoveAll(tempDir))
	}

	return store, cleanup
}

// seedDocument registers the collection, mirror, and document rows a
// test needs, returning the stored document with its identity filled.
func seedDocument(t *testing.T, store *Store, collection, relPath, markdown string) *domain.Document {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.UpsertCollection(ctx, domain.Collection{
		Name:     collection,
		RootPath: "/tmp/" + collection,
	}))

	mirrorHash := canonical.Hash(markdown)
	require.NoError(t, store.UpsertContent(ctx, mirrorHash, markdown))

	doc := &domain.Document{
		Collection: collection,
		RelPath:    relPath,
		SourceHash: "src-" + mirrorHash[:8],
		MirrorHash: mirrorHash,
		Title:      "Test " + relPath,
		Active:     true,
	}
	require.NoError(t, store.UpsertDocument(ctx, doc))
	return doc
}

// ==================== Open and Migration Tests ====================

func TestOpen_ErrorHandling(t *testing.T) {
	_, err := Open("/invalid\x00path/gnosis.db", "")
	assert.Error(t, err)
}

func TestOpen_UnknownTokenizer(t *testing.T) {
	tempDir := t.TempDir()
	_, err := Open(filepath.Join(tempDir, "gnosis.db"), "snowball")
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestOpen_Reopen(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "gnosis.db")

	store, err := Open(dbPath, "")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Migrations are idempotent across reopens.
	store, err = Open(dbPath, "")
	require.NoError(t, err)
	defer store.Close()

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SchemaVersion)
	assert.Equal(t, DefaultTokenizer, stats.FTSTokenizer)
}

// ==================== Collection Tests ====================

func TestUpsertCollection(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.UpsertCollection(ctx, domain.Collection{
		Name: "notes", RootPath: "/home/me/notes",
	}))
	require.NoError(t, store.UpsertCollection(ctx, domain.Collection{
		Name: "notes", RootPath: "/home/me/notes-moved",
	}))

	collections, err := store.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, collections, 1)
	assert.Equal(t, "notes", collections[0].Name)
	assert.Equal(t, "/home/me/notes-moved", collections[0].RootPath)
	assert.False(t, collections[0].CreatedAt.IsZero())
}

func TestUpsertCollection_InvalidName(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.UpsertCollection(context.Background(), domain.Collection{
		Name: "Bad Name!", RootPath: "/tmp",
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

// ==================== Document Tests ====================

func TestUpsertDocument_IdentityStable(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	doc := seedDocument(t, store, "notes", "go/errors.md", "# Errors\n")
	require.NotZero(t, doc.ID)
	require.NotEmpty(t, doc.DocID)
	assert.Equal(t, domain.DeriveDocID("notes", "go/errors.md"), doc.DocID)
	assert.Equal(t, "gno://notes/go/errors.md", doc.URI)
	firstID := doc.ID
	firstDocID := doc.DocID
	firstCreated := doc.CreatedAt

	// Re-upserting with new content keeps id, docid and created_at.
	doc.Title = "Errors, revised"
	doc.MirrorHash = canonical.Hash("# Errors v2\n")
	require.NoError(t, store.UpsertContent(ctx, doc.MirrorHash, "# Errors v2\n"))
	require.NoError(t, store.UpsertDocument(ctx, doc))

	got, err := store.GetDocument(ctx, "notes", "go/errors.md")
	require.NoError(t, err)
	assert.Equal(t, firstID, got.ID)
	assert.Equal(t, firstDocID, got.DocID)
	assert.WithinDuration(t, firstCreated, got.CreatedAt, time.Second)
	assert.Equal(t, "Errors, revised", got.Title)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))
}

func TestUpsertDocument_MissingKey(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.UpsertDocument(context.Background(), &domain.Document{Collection: "notes"})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestGetDocument_NotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.GetDocument(context.Background(), "notes", "missing.md")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetDocumentByDocID(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	doc := seedDocument(t, store, "notes", "a.md", "alpha\n")

	// Both the bare hex and the external form resolve.
	got, err := store.GetDocumentByDocID(ctx, doc.DocID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)

	got, err = store.GetDocumentByDocID(ctx, domain.FormatDocID(doc.DocID))
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)

	_, err = store.GetDocumentByDocID(ctx, "#deadbeef")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetDocumentsForMirrors(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	docA := seedDocument(t, store, "notes", "a.md", "shared body\n")
	docB := seedDocument(t, store, "notes", "b.md", "shared body\n")
	seedDocument(t, store, "notes", "c.md", "other body\n")
	seedDocument(t, store, "notes", "dead.md", "dead body\n")
	require.NoError(t, store.TombstoneDocument(ctx, "notes", "dead.md"))

	deadHash := canonical.Hash("dead body\n")
	byMirror, err := store.GetDocumentsForMirrors(ctx, []string{docA.MirrorHash, deadHash})
	require.NoError(t, err)

	// Two documents share the first mirror; the tombstoned one is out.
	require.Len(t, byMirror[docA.MirrorHash], 2)
	assert.Equal(t, docA.DocID, byMirror[docA.MirrorHash][0].DocID)
	assert.Equal(t, docB.DocID, byMirror[docA.MirrorHash][1].DocID)
	assert.Empty(t, byMirror[deadHash])

	empty, err := store.GetDocumentsForMirrors(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTombstoneDocument(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seedDocument(t, store, "notes", "gone.md", "bye\n")
	require.NoError(t, store.TombstoneDocument(ctx, "notes", "gone.md"))

	got, err := store.GetDocument(ctx, "notes", "gone.md")
	require.NoError(t, err)
	assert.False(t, got.Active)

	// Tombstones survive listing.
	docs, err := store.ListDocuments(ctx, "notes")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	err = store.TombstoneDocument(ctx, "notes", "never-was.md")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetDocumentError(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	seedDocument(t, store, "notes", "bad.pdf", "x\n")
	require.NoError(t, store.SetDocumentError(ctx, "notes", "bad.pdf",
		domain.KindCorrupt, "malformed xref table"))

	got, err := store.GetDocument(ctx, "notes", "bad.pdf")
	require.NoError(t, err)
	assert.Equal(t, string(domain.KindCorrupt), got.LastErrorCode)
	assert.Equal(t, "malformed xref table", got.LastErrorMessage)
	assert.False(t, got.LastErrorAt.IsZero())
}

// ==================== Content and Chunk Tests ====================

func TestUpsertContent_Idempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	hash := canonical.Hash("shared text\n")
	require.NoError(t, store.UpsertContent(ctx, hash, "shared text\n"))
	require.NoError(t, store.UpsertContent(ctx, hash, "shared text\n"))

	content, err := store.GetContent(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "shared text\n", content.Markdown)

	_, err = store.GetContent(ctx, "no-such-hash")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPutChunks_ReplacesAtomically(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	doc := seedDocument(t, store, "notes", "c.md", "one two\n")
	hash := doc.MirrorHash

	require.NoError(t, store.PutChunks(ctx, hash, []domain.Chunk{
		{MirrorHash: hash, Seq: 0, Pos: 0, Text: "old chunk text", StartLine: 1, EndLine: 1},
		{MirrorHash: hash, Seq: 1, Pos: 15, Text: "second old", StartLine: 2, EndLine: 2},
	}))
	require.NoError(t, store.PutChunks(ctx, hash, []domain.Chunk{
		{MirrorHash: hash, Seq: 0, Pos: 0, Text: "replacement chunk", StartLine: 1, EndLine: 1, TokenCount: 2},
	}))

	batch, err := store.GetChunksBatch(ctx, []string{hash})
	require.NoError(t, err)
	require.Len(t, batch[hash], 1)
	assert.Equal(t, "replacement chunk", batch[hash][0].Text)
	assert.Equal(t, 2, batch[hash][0].TokenCount)

	// The FTS index follows the chunk set.
	hits, err := store.SearchFTS(ctx, "replacement", domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = store.SearchFTS(ctx, "old", domain.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestGetChunksBatch_Ordering(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	a := seedDocument(t, store, "notes", "a.md", "doc a\n")
	b := seedDocument(t, store, "notes", "b.md", "doc b\n")
	require.NoError(t, store.PutChunks(ctx, a.MirrorHash, []domain.Chunk{
		{MirrorHash: a.MirrorHash, Seq: 1, Text: "a one"},
		{MirrorHash: a.MirrorHash, Seq: 0, Text: "a zero"},
	}))
	require.NoError(t, store.PutChunks(ctx, b.MirrorHash, []domain.Chunk{
		{MirrorHash: b.MirrorHash, Seq: 0, Text: "b zero"},
	}))

	batch, err := store.GetChunksBatch(ctx, []string{a.MirrorHash, b.MirrorHash})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Len(t, batch[a.MirrorHash], 2)
	assert.Equal(t, 0, batch[a.MirrorHash][0].Seq)
	assert.Equal(t, 1, batch[a.MirrorHash][1].Seq)

	empty, err := store.GetChunksBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// ==================== FTS Tests ====================

func TestSearchFTS(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	doc := seedDocument(t, store, "notes", "search.md", "searchable\n")
	require.NoError(t, store.PutChunks(ctx, doc.MirrorHash, []domain.Chunk{
		{MirrorHash: doc.MirrorHash, Seq: 0, Text: "the quick brown fox jumps"},
		{MirrorHash: doc.MirrorHash, Seq: 1, Text: "over the lazy dog"},
	}))

	hits, err := store.SearchFTS(ctx, "quick fox", domain.SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, doc.MirrorHash, hits[0].MirrorHash)
	assert.Equal(t, 0, hits[0].Seq)
	assert.Negative(t, hits[0].Score)
	assert.Equal(t, doc.DocID, hits[0].DocID)
	assert.Equal(t, "notes", hits[0].Collection)
}

func TestSearchFTS_CollectionFilter(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	a := seedDocument(t, store, "work", "w.md", "work doc\n")
	b := seedDocument(t, store, "home", "h.md", "home doc\n")
	require.NoError(t, store.PutChunks(ctx, a.MirrorHash, []domain.Chunk{
		{MirrorHash: a.MirrorHash, Seq: 0, Text: "shared keyword apple"},
	}))
	require.NoError(t, store.PutChunks(ctx, b.MirrorHash, []domain.Chunk{
		{MirrorHash: b.MirrorHash, Seq: 0, Text: "shared keyword apple"},
	}))

	hits, err := store.SearchFTS(ctx, "apple", domain.SearchOptions{Collection: "work"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "work", hits[0].Collection)
}

func TestSearchFTS_ExcludesTombstones(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	doc := seedDocument(t, store, "notes", "dead.md", "dead doc\n")
	require.NoError(t, store.PutChunks(ctx, doc.MirrorHash, []domain.Chunk{
		{MirrorHash: doc.MirrorHash, Seq: 0, Text: "zombie keyword"},
	}))
	require.NoError(t, store.TombstoneDocument(ctx, "notes", "dead.md"))

	hits, err := store.SearchFTS(ctx, "zombie", domain.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchFTS_QuotesPunctuation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	doc := seedDocument(t, store, "notes", "punct.md", "punct\n")
	require.NoError(t, store.PutChunks(ctx, doc.MirrorHash, []domain.Chunk{
		{MirrorHash: doc.MirrorHash, Seq: 0, Text: `calling store.Close is required, "quoted" (parens) included`},
	}))

	// Raw FTS5 syntax characters must not break the query. Every
	// quoted term must match, so the chunk holds all three.
	hits, err := store.SearchFTS(ctx, `store.Close "quoted" (parens)`, domain.SearchOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestSearchFTS_EmptyQuery(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.SearchFTS(context.Background(), "   ", domain.SearchOptions{})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestFTSRebuild_TokenizerChange(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "gnosis.db")
	ctx := context.Background()

	store, err := Open(dbPath, "unicode61")
	require.NoError(t, err)
	doc := seedDocument(t, store, "notes", "t.md", "tokenized\n")
	require.NoError(t, store.PutChunks(ctx, doc.MirrorHash, []domain.Chunk{
		{MirrorHash: doc.MirrorHash, Seq: 0, Text: "running quickly"},
	}))
	needs, err := store.NeedsFTSRebuild(ctx)
	require.NoError(t, err)
	assert.False(t, needs)
	require.NoError(t, store.Close())

	// Reopening with a different tokenizer flags the index stale.
	store, err = Open(dbPath, "porter")
	require.NoError(t, err)
	defer store.Close()

	needs, err = store.NeedsFTSRebuild(ctx)
	require.NoError(t, err)
	assert.True(t, needs)

	require.NoError(t, store.RebuildFTS(ctx))
	needs, err = store.NeedsFTSRebuild(ctx)
	require.NoError(t, err)
	assert.False(t, needs)

	tokenizer, err := store.FTSTokenizer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "porter", tokenizer)

	// Stemming works after the rebuild, and rows survived it.
	hits, err := store.SearchFTS(ctx, "run", domain.SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

// ==================== Vector Tests ====================

func TestInsertVectorRows_RoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	doc := seedDocument(t, store, "notes", "v.md", "vectors\n")
	require.NoError(t, store.PutChunks(ctx, doc.MirrorHash, []domain.Chunk{
		{MirrorHash: doc.MirrorHash, Seq: 0, Text: "chunk zero"},
		{MirrorHash: doc.MirrorHash, Seq: 1, Text: "chunk one"},
	}))

	rows := []domain.VectorRow{
		{MirrorHash: doc.MirrorHash, Seq: 0, Model: "test-model", Embedding: []float32{0.1, 0.2, 0.3}},
		{MirrorHash: doc.MirrorHash, Seq: 1, Model: "test-model", Embedding: []float32{-1, 0, 1}},
	}
	require.NoError(t, store.InsertVectorRows(ctx, rows))

	keys, err := store.ListVectorKeys(ctx, "test-model")
	require.NoError(t, err)
	require.Len(t, keys, 2)

	got, err := store.GetVectorRows(ctx, "test-model", keys)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got[0].Embedding)
	assert.False(t, got[0].EmbeddedAt.IsZero())

	// Missing keys are silently absent.
	got, err = store.GetVectorRows(ctx, "test-model", []domain.ChunkKey{
		{MirrorHash: doc.MirrorHash, Seq: 0},
		{MirrorHash: "absent", Seq: 9},
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestInsertVectorRows_EmptyEmbedding(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.InsertVectorRows(context.Background(), []domain.VectorRow{
		{MirrorHash: "h", Seq: 0, Model: "m"},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestDeleteVectorRowsForMirror(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	doc := seedDocument(t, store, "notes", "d.md", "delete me\n")
	require.NoError(t, store.PutChunks(ctx, doc.MirrorHash, []domain.Chunk{
		{MirrorHash: doc.MirrorHash, Seq: 0, Text: "text"},
	}))
	require.NoError(t, store.InsertVectorRows(ctx, []domain.VectorRow{
		{MirrorHash: doc.MirrorHash, Seq: 0, Model: "m", Embedding: []float32{1}},
	}))

	require.NoError(t, store.DeleteVectorRowsForMirror(ctx, doc.MirrorHash, "m"))
	keys, err := store.ListVectorKeys(ctx, "m")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFloat32BytesRoundTrip(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, 3.14159, -2.5e8}
	out := bytesToFloat32Slice(float32SliceToBytes(in))
	assert.Equal(t, in, out)

	assert.Nil(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))
}

// ==================== Backlog Tests ====================

func TestNextBacklog_CursorAndFilter(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	doc := seedDocument(t, store, "notes", "backlog.md", "backlog doc\n")
	require.NoError(t, store.PutChunks(ctx, doc.MirrorHash, []domain.Chunk{
		{MirrorHash: doc.MirrorHash, Seq: 0, Text: "first"},
		{MirrorHash: doc.MirrorHash, Seq: 1, Text: "second"},
		{MirrorHash: doc.MirrorHash, Seq: 2, Text: "third"},
	}))

	// One chunk already embedded: only the rest is backlog.
	require.NoError(t, store.InsertVectorRows(ctx, []domain.VectorRow{
		{MirrorHash: doc.MirrorHash, Seq: 0, Model: "m", Embedding: []float32{1}},
	}))

	n, err := store.CountBacklog(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	items, err := store.NextBacklog(ctx, "m", domain.BacklogCursor{}, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Seq)
	assert.Equal(t, "second", items[0].Text)
	assert.Equal(t, doc.Title, items[0].Title)

	// Advancing the cursor past the first item yields the remainder.
	cursor := domain.BacklogCursor{MirrorHash: items[0].MirrorHash, Seq: items[0].Seq}
	items, err = store.NextBacklog(ctx, "m", cursor, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Seq)
}

func TestNextBacklog_SkipsTombstonedDocuments(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	doc := seedDocument(t, store, "notes", "tomb.md", "tombstoned\n")
	require.NoError(t, store.PutChunks(ctx, doc.MirrorHash, []domain.Chunk{
		{MirrorHash: doc.MirrorHash, Seq: 0, Text: "chunk"},
	}))
	require.NoError(t, store.TombstoneDocument(ctx, "notes", "tomb.md"))

	items, err := store.NextBacklog(ctx, "m", domain.BacklogCursor{}, 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	n, err := store.CountBacklog(ctx, "m")
	require.NoError(t, err)
	assert.Zero(t, n)
}

// ==================== Link Tests ====================

func TestPutLinks_ReplacesAndReads(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	doc := seedDocument(t, store, "notes", "linker.md", "has links\n")

	links := []domain.Link{
		{
			TargetRef:     "Other Note#section",
			TargetRefNorm: domain.NormalizeRef("Other Note#section"),
			TargetAnchor:  "section",
			Type:          domain.LinkTypeWiki,
			StartLine:     3, StartCol: 1, EndLine: 3, EndCol: 22,
		},
		{
			TargetRef:     "docs/ref.md",
			TargetRefNorm: domain.NormalizeRef("docs/ref.md"),
			Type:          domain.LinkTypeMarkdown,
			Text:          "the reference",
			StartLine:     5, StartCol: 1, EndLine: 5, EndCol: 30,
		},
	}
	require.NoError(t, store.PutLinks(ctx, doc.ID, links))

	got, err := store.GetLinksForDoc(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "other note", got[0].TargetRefNorm)
	assert.Equal(t, domain.LinkTypeWiki, got[0].Type)
	assert.Equal(t, domain.LinkSourceParsed, got[0].Source)
	assert.Equal(t, "the reference", got[1].Text)

	// A second put replaces the first set wholesale.
	require.NoError(t, store.PutLinks(ctx, doc.ID, links[:1]))
	got, err = store.GetLinksForDoc(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, store.PutLinks(ctx, doc.ID, nil))
	got, err = store.GetLinksForDoc(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPutLinks_InvalidType(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	doc := seedDocument(t, store, "notes", "l.md", "x\n")
	err := store.PutLinks(context.Background(), doc.ID, []domain.Link{
		{TargetRef: "x", TargetRefNorm: "x", Type: "hyperlink"},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestGetBacklinksForDoc(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	target := seedDocument(t, store, "notes", "topics/target.md", "target\n")
	source := seedDocument(t, store, "notes", "source.md", "source\n")
	other := seedDocument(t, store, "notes", "other.md", "other\n")

	// Source links to the target by bare filename, by full rel_path,
	// and by docid; other links elsewhere.
	require.NoError(t, store.PutLinks(ctx, source.ID, []domain.Link{
		{TargetRef: "Target", TargetRefNorm: domain.NormalizeRef("Target"), Type: domain.LinkTypeWiki},
		{TargetRef: "topics/target.md", TargetRefNorm: domain.NormalizeRef("topics/target.md"), Type: domain.LinkTypeMarkdown},
		{TargetRef: target.DocID, TargetRefNorm: domain.NormalizeRef(target.DocID), Type: domain.LinkTypeWiki},
	}))
	require.NoError(t, store.PutLinks(ctx, other.ID, []domain.Link{
		{TargetRef: "unrelated", TargetRefNorm: "unrelated", Type: domain.LinkTypeWiki},
	}))

	backlinks, err := store.GetBacklinksForDoc(ctx, target)
	require.NoError(t, err)
	require.Len(t, backlinks, 3)
	for _, b := range backlinks {
		assert.Equal(t, source.ID, b.SourceDocID)
		assert.Equal(t, source.URI, b.SourceURI)
		assert.Equal(t, source.DocID, b.SourceDocIDHex)
		assert.Equal(t, source.Title, b.SourceTitle)
	}
}

func TestGetBacklinksForDoc_ExcludesInactiveSources(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	target := seedDocument(t, store, "notes", "target.md", "t\n")
	source := seedDocument(t, store, "notes", "src.md", "s\n")
	require.NoError(t, store.PutLinks(ctx, source.ID, []domain.Link{
		{TargetRef: "target", TargetRefNorm: "target", Type: domain.LinkTypeWiki},
	}))
	require.NoError(t, store.TombstoneDocument(ctx, "notes", "src.md"))

	backlinks, err := store.GetBacklinksForDoc(ctx, target)
	require.NoError(t, err)
	assert.Empty(t, backlinks)
}

// ==================== Diagnostics Tests ====================

func TestRecordIngestError(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	e := &domain.IngestError{
		Collection: "notes",
		RelPath:    "broken.docx",
		Code:       domain.KindCorrupt,
		Message:    "not a zip archive",
	}
	require.NoError(t, store.RecordIngestError(ctx, e))
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.OccurredAt.IsZero())

	// Append-only: a second failure for the same file adds a row.
	require.NoError(t, store.RecordIngestError(ctx, &domain.IngestError{
		Collection: "notes",
		RelPath:    "broken.docx",
		Code:       domain.KindTimeout,
		Message:    "conversion timed out",
		OccurredAt: time.Now().UTC().Add(time.Minute),
	}))

	errs, err := store.ListIngestErrors(ctx, "notes", 0)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, domain.KindTimeout, errs[0].Code)
	assert.Equal(t, "null", errs[0].DetailsJSON)

	errs, err = store.ListIngestErrors(ctx, "other", 0)
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = store.ListIngestErrors(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, errs, 1)
}

func TestCleanupOrphans(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	keep := seedDocument(t, store, "notes", "keep.md", "kept\n")
	require.NoError(t, store.PutChunks(ctx, keep.MirrorHash, []domain.Chunk{
		{MirrorHash: keep.MirrorHash, Seq: 0, Text: "kept chunk"},
	}))

	// An orphan mirror with chunks and a vector, referenced by no
	// document row.
	orphanHash := canonical.Hash("orphan\n")
	require.NoError(t, store.UpsertContent(ctx, orphanHash, "orphan\n"))
	require.NoError(t, store.PutChunks(ctx, orphanHash, []domain.Chunk{
		{MirrorHash: orphanHash, Seq: 0, Text: "orphan chunk"},
	}))
	require.NoError(t, store.InsertVectorRows(ctx, []domain.VectorRow{
		{MirrorHash: orphanHash, Seq: 0, Model: "m", Embedding: []float32{1}},
	}))

	// vector + fts row + chunk + mirror
	removed, err := store.CleanupOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	_, err = store.GetContent(ctx, orphanHash)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.GetContent(ctx, keep.MirrorHash)
	require.NoError(t, err)

	// Re-running removes nothing.
	removed, err = store.CleanupOrphans(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

// ==================== Stats Tests ====================

func TestStats(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	doc := seedDocument(t, store, "notes", "s.md", "stats\n")
	require.NoError(t, store.PutChunks(ctx, doc.MirrorHash, []domain.Chunk{
		{MirrorHash: doc.MirrorHash, Seq: 0, Text: "alpha"},
		{MirrorHash: doc.MirrorHash, Seq: 1, Text: "beta"},
	}))
	require.NoError(t, store.InsertVectorRows(ctx, []domain.VectorRow{
		{MirrorHash: doc.MirrorHash, Seq: 0, Model: "m", Embedding: []float32{1}},
	}))
	require.NoError(t, store.PutLinks(ctx, doc.ID, []domain.Link{
		{TargetRef: "x", TargetRefNorm: "x", Type: domain.LinkTypeWiki},
	}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.ActiveDocuments)
	assert.Equal(t, 1, stats.Contents)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 1, stats.Links)
	assert.Equal(t, map[string]int{"m": 1}, stats.Vectors)
	assert.Equal(t, map[string]int{"m": 1}, stats.Backlog)
	assert.Equal(t, DefaultTokenizer, stats.FTSTokenizer)
}
