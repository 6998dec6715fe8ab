package services

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/custodia-labs/gnosis/internal/canonical"
	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
	"github.com/custodia-labs/gnosis/internal/core/ports/driving"
	"github.com/custodia-labs/gnosis/internal/links"
	"github.com/custodia-labs/gnosis/internal/logger"
	"github.com/custodia-labs/gnosis/internal/mimetype"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// ingestStore is the slice of the store the write path uses.
type ingestStore interface {
	UpsertCollection(ctx context.Context, c domain.Collection) error
	GetDocument(ctx context.Context, collection, relPath string) (*domain.Document, error)
	UpsertDocument(ctx context.Context, doc *domain.Document) error
	ListDocuments(ctx context.Context, collection string) ([]domain.Document, error)
	TombstoneDocument(ctx context.Context, collection, relPath string) error
	SetDocumentError(ctx context.Context, collection, relPath string, code domain.Kind, message string) error
	UpsertContent(ctx context.Context, mirrorHash, markdown string) error
	PutChunks(ctx context.Context, mirrorHash string, chunks []domain.Chunk) error
	PutLinks(ctx context.Context, sourceDocID int64, links []domain.Link) error
	RecordIngestError(ctx context.Context, e *domain.IngestError) error
}

// converter is the conversion pipeline surface the write path calls.
type converter interface {
	Convert(ctx context.Context, input domain.ConvertInput) (*domain.ConversionArtifact, error)
}

// chunkSplitter splits canonical markdown into chunks.
type chunkSplitter interface {
	Chunk(markdown string) []domain.Chunk
}

// IngestService runs the write path: detect, convert, store the
// document with its content, chunks and links. Every stage is
// idempotent keyed by the content hash.
type IngestService struct {
	store     ingestStore
	discovery driven.Discovery
	convert   converter
	chunker   chunkSplitter
	detector  *mimetype.Detector
	limits    domain.ConvertLimits
}

// IngestOption configures the ingest service.
type IngestOption func(*IngestService)

// WithConvertLimits bounds each conversion call.
func WithConvertLimits(limits domain.ConvertLimits) IngestOption {
	return func(s *IngestService) { s.limits = limits }
}

// NewIngestService creates the write-path service.
func NewIngestService(store ingestStore, discovery driven.Discovery, convert converter, chunker chunkSplitter, opts ...IngestOption) *IngestService {
	s := &IngestService{
		store:     store,
		discovery: discovery,
		convert:   convert,
		chunker:   chunker,
		detector:  mimetype.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestFile converts and stores one file. Content identical to the
// stored source hash leaves the document untouched.
func (s *IngestService) IngestFile(ctx context.Context, f domain.DiscoveredFile, content []byte) (*domain.Document, error) {
	if !domain.ValidCollection(f.Collection) {
		return nil, domain.WrapError(domain.KindValidation, "collection name "+f.Collection, domain.ErrInvalidInput)
	}

	sourceHash := canonical.HashBytes(content)
	existing, err := s.store.GetDocument(ctx, f.Collection, f.RelPath)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Active && existing.MirrorHash != "" && existing.SourceHash == sourceHash {
		logger.Debug("Unchanged: %s/%s", f.Collection, f.RelPath)
		return existing, nil
	}

	ext := strings.ToLower(path.Ext(f.RelPath))
	detected := s.detector.Detect(content, ext)

	artifact, err := s.convert.Convert(ctx, domain.ConvertInput{
		AbsPath: f.AbsPath,
		RelPath: f.RelPath,
		Content: content,
		MIME:    detected.MIME,
		Ext:     ext,
		Limits:  s.limits,
	})
	if err != nil {
		return nil, err
	}

	doc := existing
	if doc == nil {
		doc = &domain.Document{Collection: f.Collection, RelPath: f.RelPath}
	}
	doc.SourceHash = sourceHash
	doc.SourceMIME = detected.MIME
	doc.SourceExt = ext
	doc.SourceSize = f.Size
	doc.SourceMTime = f.MTime
	doc.MirrorHash = artifact.MirrorHash
	doc.Title = artifact.Title
	doc.ConverterID = artifact.ConverterID
	doc.ConverterVersion = artifact.ConverterVersion
	doc.LanguageHint = artifact.LanguageHint
	doc.Active = true

	if err := s.store.UpsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.store.UpsertContent(ctx, artifact.MirrorHash, artifact.CanonicalMarkdown); err != nil {
		return nil, err
	}
	if err := s.store.PutChunks(ctx, artifact.MirrorHash, s.chunker.Chunk(artifact.CanonicalMarkdown)); err != nil {
		return nil, err
	}

	parsed := links.Extract(artifact.CanonicalMarkdown)
	for i := range parsed {
		parsed[i].SourceDocID = doc.ID
	}
	if err := s.store.PutLinks(ctx, doc.ID, parsed); err != nil {
		return nil, err
	}

	logger.Debug("Ingested %s/%s: mirror %.12s, %d links",
		f.Collection, f.RelPath, artifact.MirrorHash, len(parsed))
	return doc, nil
}

// SyncCollection reconciles a collection with its root directory.
func (s *IngestService) SyncCollection(ctx context.Context, c domain.Collection) (*domain.IngestResult, error) {
	if !domain.ValidCollection(c.Name) {
		return nil, domain.WrapError(domain.KindValidation, "collection name "+c.Name, domain.ErrInvalidInput)
	}
	if s.discovery == nil {
		return nil, domain.NewError(domain.KindInternal, "no discovery source configured")
	}
	if err := s.store.UpsertCollection(ctx, c); err != nil {
		return nil, err
	}
	logger.Section("Sync " + c.Name)

	files, err := s.discovery.List(ctx, c)
	if err != nil {
		return nil, err
	}

	result := &domain.IngestResult{}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		seen[f.RelPath] = true

		existing, err := s.store.GetDocument(ctx, c.Name, f.RelPath)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return result, err
		}
		if existing != nil && existing.Active && existing.MirrorHash != "" &&
			existing.SourceSize == f.Size && existing.SourceMTime.Equal(f.MTime) {
			result.Unchanged++
			continue
		}

		content, err := s.discovery.Read(ctx, f)
		if err != nil {
			s.recordFailure(ctx, f, err)
			result.Failed++
			continue
		}
		if _, err := s.IngestFile(ctx, f, content); err != nil {
			s.recordFailure(ctx, f, err)
			result.Failed++
			continue
		}
		result.Ingested++
	}

	docs, err := s.store.ListDocuments(ctx, c.Name)
	if err != nil {
		return result, err
	}
	for _, doc := range docs {
		if !doc.Active || seen[doc.RelPath] {
			continue
		}
		if err := s.store.TombstoneDocument(ctx, c.Name, doc.RelPath); err != nil {
			return result, err
		}
		result.Tombstoned++
	}

	logger.Info("Sync %s: %d ingested, %d unchanged, %d tombstoned, %d failed",
		c.Name, result.Ingested, result.Unchanged, result.Tombstoned, result.Failed)
	return result, nil
}

// recordFailure stores the latest error on the document row and appends
// a diagnostic. Recording failures never masks the original error.
func (s *IngestService) recordFailure(ctx context.Context, f domain.DiscoveredFile, cause error) {
	kind := domain.KindOf(cause)
	if err := s.store.SetDocumentError(ctx, f.Collection, f.RelPath, kind, cause.Error()); err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Warn("Recording document error failed: %v", err)
	}
	if err := s.store.RecordIngestError(ctx, &domain.IngestError{
		Collection: f.Collection,
		RelPath:    f.RelPath,
		Code:       kind,
		Message:    cause.Error(),
	}); err != nil {
		logger.Warn("Recording ingest diagnostic failed: %v", err)
	}
}
