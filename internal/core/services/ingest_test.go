package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/gnosis/internal/canonical"
	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// fakeIngestStore records the write path against in-memory maps.
type fakeIngestStore struct {
	collections []domain.Collection
	docs        map[string]*domain.Document
	content     map[string]string
	chunks      map[string][]domain.Chunk
	links       map[int64][]domain.Link
	diagnostics []domain.IngestError
	tombstoned  []string
	nextID      int64
}

func newFakeIngestStore() *fakeIngestStore {
	return &fakeIngestStore{
		docs:    make(map[string]*domain.Document),
		content: make(map[string]string),
		chunks:  make(map[string][]domain.Chunk),
		links:   make(map[int64][]domain.Link),
	}
}

func docKey(collection, relPath string) string { return collection + "\x00" + relPath }

func (f *fakeIngestStore) UpsertCollection(_ context.Context, c domain.Collection) error {
	f.collections = append(f.collections, c)
	return nil
}

func (f *fakeIngestStore) GetDocument(_ context.Context, collection, relPath string) (*domain.Document, error) {
	doc, ok := f.docs[docKey(collection, relPath)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeIngestStore) UpsertDocument(_ context.Context, doc *domain.Document) error {
	key := docKey(doc.Collection, doc.RelPath)
	if prev, ok := f.docs[key]; ok {
		doc.ID = prev.ID
		doc.DocID = prev.DocID
	} else {
		f.nextID++
		doc.ID = f.nextID
		doc.DocID = domain.DeriveDocID(doc.Collection, doc.RelPath)
	}
	doc.URI = domain.DocumentURI(doc.Collection, doc.RelPath)
	copied := *doc
	f.docs[key] = &copied
	return nil
}

func (f *fakeIngestStore) ListDocuments(_ context.Context, collection string) ([]domain.Document, error) {
	var out []domain.Document
	for _, doc := range f.docs {
		if doc.Collection == collection {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *fakeIngestStore) TombstoneDocument(_ context.Context, collection, relPath string) error {
	f.tombstoned = append(f.tombstoned, relPath)
	if doc, ok := f.docs[docKey(collection, relPath)]; ok {
		doc.Active = false
	}
	return nil
}

func (f *fakeIngestStore) SetDocumentError(_ context.Context, collection, relPath string, code domain.Kind, message string) error {
	if doc, ok := f.docs[docKey(collection, relPath)]; ok {
		doc.LastErrorCode = string(code)
		doc.LastErrorMessage = message
	}
	return nil
}

func (f *fakeIngestStore) UpsertContent(_ context.Context, mirrorHash, markdown string) error {
	f.content[mirrorHash] = markdown
	return nil
}

func (f *fakeIngestStore) PutChunks(_ context.Context, mirrorHash string, chunks []domain.Chunk) error {
	f.chunks[mirrorHash] = chunks
	return nil
}

func (f *fakeIngestStore) PutLinks(_ context.Context, sourceDocID int64, links []domain.Link) error {
	f.links[sourceDocID] = links
	return nil
}

func (f *fakeIngestStore) RecordIngestError(_ context.Context, e *domain.IngestError) error {
	f.diagnostics = append(f.diagnostics, *e)
	return nil
}

// fakeDiscovery serves a fixed file listing with canned contents.
type fakeDiscovery struct {
	files    []domain.DiscoveredFile
	contents map[string][]byte
	readErr  error
}

func (f *fakeDiscovery) List(_ context.Context, _ domain.Collection) ([]domain.DiscoveredFile, error) {
	return f.files, nil
}

func (f *fakeDiscovery) Read(_ context.Context, file domain.DiscoveredFile) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.contents[file.RelPath], nil
}

func (f *fakeDiscovery) Watch(_ context.Context, _ domain.Collection, _ chan<- domain.DiscoveredFile) error {
	return nil
}

// fakeConverter canonicalizes the input bytes as markdown.
type fakeConverter struct {
	calls int
}

func (f *fakeConverter) Convert(_ context.Context, input domain.ConvertInput) (*domain.ConversionArtifact, error) {
	f.calls++
	text := canonical.Canonicalize(string(input.Content))
	return &domain.ConversionArtifact{
		CanonicalMarkdown: text,
		MirrorHash:        canonical.Hash(text),
		Title:             "Converted " + input.RelPath,
		ConverterID:       "fake",
		ConverterVersion:  "1",
		SourceMIME:        input.MIME,
	}, nil
}

// fakeChunker emits the whole text as a single chunk.
type fakeChunker struct{}

func (fakeChunker) Chunk(markdown string) []domain.Chunk {
	return []domain.Chunk{{Seq: 0, Text: markdown, StartLine: 1, EndLine: 1 + strings.Count(markdown, "\n")}}
}

func discoveredFile(relPath string, size int64) domain.DiscoveredFile {
	return domain.DiscoveredFile{
		Collection: "notes",
		RelPath:    relPath,
		AbsPath:    "/col/" + relPath,
		Size:       size,
		MTime:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestIngestFile_StoresDocumentContentChunksLinks(t *testing.T) {
	store := newFakeIngestStore()
	svc := NewIngestService(store, nil, &fakeConverter{}, fakeChunker{})

	body := []byte("see [[other note]] for details\n")
	doc, err := svc.IngestFile(context.Background(), discoveredFile("a.md", int64(len(body))), body)
	require.NoError(t, err)

	assert.Equal(t, domain.DeriveDocID("notes", "a.md"), doc.DocID)
	assert.Equal(t, "gno://notes/a.md", doc.URI)
	assert.Equal(t, "text/markdown", doc.SourceMIME)
	assert.Equal(t, ".md", doc.SourceExt)
	assert.True(t, doc.Active)
	assert.NotEmpty(t, doc.MirrorHash)

	assert.Contains(t, store.content, doc.MirrorHash)
	require.Len(t, store.chunks[doc.MirrorHash], 1)
	require.Len(t, store.links[doc.ID], 1)
	assert.Equal(t, "other note", store.links[doc.ID][0].TargetRef)
	assert.Equal(t, doc.ID, store.links[doc.ID][0].SourceDocID)
}

func TestIngestFile_UnchangedContentIsNoop(t *testing.T) {
	store := newFakeIngestStore()
	conv := &fakeConverter{}
	svc := NewIngestService(store, nil, conv, fakeChunker{})

	body := []byte("stable content\n")
	f := discoveredFile("a.md", int64(len(body)))

	first, err := svc.IngestFile(context.Background(), f, body)
	require.NoError(t, err)
	second, err := svc.IngestFile(context.Background(), f, body)
	require.NoError(t, err)

	assert.Equal(t, 1, conv.calls)
	assert.Equal(t, first.DocID, second.DocID)
	assert.Equal(t, first.MirrorHash, second.MirrorHash)
}

func TestIngestFile_ChangedContentReconverts(t *testing.T) {
	store := newFakeIngestStore()
	conv := &fakeConverter{}
	svc := NewIngestService(store, nil, conv, fakeChunker{})

	f := discoveredFile("a.md", 10)
	first, err := svc.IngestFile(context.Background(), f, []byte("version one\n"))
	require.NoError(t, err)
	second, err := svc.IngestFile(context.Background(), f, []byte("version two\n"))
	require.NoError(t, err)

	assert.Equal(t, 2, conv.calls)
	// docid survives the re-ingest; the mirror moves.
	assert.Equal(t, first.DocID, second.DocID)
	assert.NotEqual(t, first.MirrorHash, second.MirrorHash)
}

func TestIngestFile_InvalidCollection(t *testing.T) {
	svc := NewIngestService(newFakeIngestStore(), nil, &fakeConverter{}, fakeChunker{})

	f := domain.DiscoveredFile{Collection: "Not Valid!", RelPath: "a.md"}
	_, err := svc.IngestFile(context.Background(), f, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestSyncCollection_IngestsAndTombstones(t *testing.T) {
	store := newFakeIngestStore()
	disco := &fakeDiscovery{
		files: []domain.DiscoveredFile{
			discoveredFile("keep.md", 5),
			discoveredFile("new.md", 7),
		},
		contents: map[string][]byte{
			"keep.md": []byte("keep\n"),
			"new.md":  []byte("brand new\n"),
		},
	}
	svc := NewIngestService(store, disco, &fakeConverter{}, fakeChunker{})

	// Pre-existing documents: keep.md survives, gone.md vanishes.
	_, err := svc.IngestFile(context.Background(), discoveredFile("keep.md", 5), []byte("keep\n"))
	require.NoError(t, err)
	_, err = svc.IngestFile(context.Background(), discoveredFile("gone.md", 3), []byte("bye\n"))
	require.NoError(t, err)

	result, err := svc.SyncCollection(context.Background(), domain.Collection{Name: "notes", RootPath: "/col"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Ingested)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, 1, result.Tombstoned)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, []string{"gone.md"}, store.tombstoned)
}

func TestSyncCollection_FailureDoesNotAbortBatch(t *testing.T) {
	store := newFakeIngestStore()
	disco := &fakeDiscovery{
		files: []domain.DiscoveredFile{
			discoveredFile("bad.md", 3),
			discoveredFile("good.md", 5),
		},
		contents: map[string][]byte{
			"bad.md":  []byte("bad\n"),
			"good.md": []byte("good\n"),
		},
	}
	// bad.md fails conversion, good.md succeeds.
	fallback := &fakeConverter{}
	conv := convertFunc(func(ctx context.Context, input domain.ConvertInput) (*domain.ConversionArtifact, error) {
		if input.RelPath == "bad.md" {
			return nil, domain.NewError(domain.KindCorrupt, "broken header")
		}
		return fallback.Convert(ctx, input)
	})
	svc := NewIngestService(store, disco, conv, fakeChunker{})

	result, err := svc.SyncCollection(context.Background(), domain.Collection{Name: "notes", RootPath: "/col"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Ingested)
	require.Len(t, store.diagnostics, 1)
	assert.Equal(t, "bad.md", store.diagnostics[0].RelPath)
	assert.Equal(t, domain.KindCorrupt, store.diagnostics[0].Code)
}

// convertFunc adapts a function to the converter interface.
type convertFunc func(ctx context.Context, input domain.ConvertInput) (*domain.ConversionArtifact, error)

func (f convertFunc) Convert(ctx context.Context, input domain.ConvertInput) (*domain.ConversionArtifact, error) {
	return f(ctx, input)
}

func TestSyncCollection_SkipsUnchangedBySizeAndMTime(t *testing.T) {
	store := newFakeIngestStore()
	f := discoveredFile("a.md", 5)
	disco := &fakeDiscovery{files: []domain.DiscoveredFile{f}, contents: map[string][]byte{"a.md": []byte("text\n")}}
	conv := &fakeConverter{}
	svc := NewIngestService(store, disco, conv, fakeChunker{})

	_, err := svc.IngestFile(context.Background(), f, []byte("text\n"))
	require.NoError(t, err)
	calls := conv.calls

	result, err := svc.SyncCollection(context.Background(), domain.Collection{Name: "notes", RootPath: "/col"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, calls, conv.calls)
}

func TestSyncCollection_InvalidCollection(t *testing.T) {
	svc := NewIngestService(newFakeIngestStore(), &fakeDiscovery{}, &fakeConverter{}, fakeChunker{})

	_, err := svc.SyncCollection(context.Background(), domain.Collection{Name: "UPPER"})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}
