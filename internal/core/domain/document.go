package domain

import "time"

// Document is the identity of a source file within a collection.
// The canonical text lives in Content, shared by mirror hash.
type Document struct {
	// ID is the surrogate row identifier.
	ID int64

	// Collection is the owning collection name.
	Collection string

	// RelPath is the path relative to the collection root, using '/'.
	RelPath string

	// DocID is the short hex identifier derived from (collection, rel_path).
	// Stable across re-ingests; never reissued once assigned.
	DocID string

	// URI is the canonical document locator: gno://<collection>/<rel_path>.
	URI string

	// SourceHash is the SHA-256 of the raw source bytes.
	SourceHash string

	// SourceMIME is the detected MIME type of the source.
	SourceMIME string

	// SourceExt is the lowercase file extension, including the dot.
	SourceExt string

	// SourceSize is the raw size in bytes.
	SourceSize int64

	// SourceMTime is the source modification time.
	SourceMTime time.Time

	// MirrorHash is the SHA-256 of the canonical markdown, once converted.
	// Empty until conversion succeeds.
	MirrorHash string

	// Title is the extracted document title.
	Title string

	// ConverterID identifies the converter that produced the mirror.
	ConverterID string

	// ConverterVersion is the converter version at conversion time.
	ConverterVersion string

	// LanguageHint is a BCP-47 tag guessed from the canonical text.
	LanguageHint string

	// Active is false for tombstoned documents retained for history.
	Active bool

	// LastErrorCode, LastErrorMessage and LastErrorAt record the most
	// recent ingest failure for this document, if any.
	LastErrorCode    string
	LastErrorMessage string
	LastErrorAt      time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Content is a content-addressed canonical markdown mirror.
// All documents with identical canonical text share one row.
type Content struct {
	// MirrorHash is the SHA-256 of Markdown, lowercase hex.
	MirrorHash string

	// Markdown is the canonical text.
	Markdown string

	CreatedAt time.Time
}

// Chunk is a positional unit of a Content mirror.
// Chunks for a mirror are contiguous from seq 0, non-overlapping,
// and ordered by Pos ascending.
type Chunk struct {
	// MirrorHash keys the owning Content.
	MirrorHash string

	// Seq is the zero-based chunk ordinal.
	Seq int

	// Pos is the byte offset into the canonical markdown.
	Pos int

	// Text is the chunk text.
	Text string

	// StartLine and EndLine are 1-based inclusive line numbers
	// within the canonical markdown.
	StartLine int
	EndLine   int

	// Language is an optional code-fence language for code-dominant chunks.
	Language string

	// TokenCount is the estimated token count; never negative.
	TokenCount int
}

// ChunkKey identifies a chunk within a mirror.
type ChunkKey struct {
	MirrorHash string
	Seq        int
}

// VectorRow is a stored embedding for a chunk under a specific model.
type VectorRow struct {
	MirrorHash string
	Seq        int
	Model      string

	// Embedding is the vector; persisted as little-endian float32.
	Embedding []float32

	// EmbeddedAt is assigned by the store on write.
	EmbeddedAt time.Time
}

// BacklogItem is a chunk awaiting an embedding for the active model.
type BacklogItem struct {
	MirrorHash string
	Seq        int
	Text       string

	// Title of one owning document, used for contextual formatting.
	Title string
}

// BacklogCursor is a monotonic (mirror_hash, seq) position in the backlog.
type BacklogCursor struct {
	MirrorHash string
	Seq        int
}

// Zero reports whether the cursor is at the beginning.
func (c BacklogCursor) Zero() bool {
	return c.MirrorHash == "" && c.Seq == 0
}

// ChunkLookup builds O(1) access over a batched chunk fetch.
// The per-hash maps are built lazily on first access; duplicate seq values
// within one hash keep the first occurrence.
type ChunkLookup struct {
	byHash map[string][]Chunk
	built  map[string]map[int]Chunk
}

// NewChunkLookup wraps the result of a batched chunk fetch.
func NewChunkLookup(byHash map[string][]Chunk) *ChunkLookup {
	return &ChunkLookup{
		byHash: byHash,
		built:  make(map[string]map[int]Chunk),
	}
}

// Get returns the chunk at (mirrorHash, seq), if present.
func (l *ChunkLookup) Get(mirrorHash string, seq int) (Chunk, bool) {
	idx, ok := l.built[mirrorHash]
	if !ok {
		chunks, present := l.byHash[mirrorHash]
		if !present {
			return Chunk{}, false
		}
		idx = make(map[int]Chunk, len(chunks))
		for _, c := range chunks {
			// First wins on duplicate seq.
			if _, dup := idx[c.Seq]; !dup {
				idx[c.Seq] = c
			}
		}
		l.built[mirrorHash] = idx
	}
	c, ok := idx[seq]
	return c, ok
}
