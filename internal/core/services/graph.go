package services

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
	"github.com/custodia-labs/gnosis/internal/core/ports/driving"
	"github.com/custodia-labs/gnosis/internal/logger"
)

// Ensure GraphService implements the interface.
var _ driving.GraphService = (*GraphService)(nil)

// Similarity defaults.
const (
	DefaultSimilarLimit     = 10
	defaultSimilarThreshold = 0.5
	maxSimilarK             = 200
)

// graphStore is the slice of the store the graph accessor reads.
type graphStore interface {
	GetDocumentByDocID(ctx context.Context, docid string) (*domain.Document, error)
	GetLinksForDoc(ctx context.Context, sourceDocID int64) ([]domain.Link, error)
	GetBacklinksForDoc(ctx context.Context, doc *domain.Document) ([]domain.Backlink, error)
	GetChunksBatch(ctx context.Context, hashes []string) (map[string][]domain.Chunk, error)
	GetVectorRows(ctx context.Context, model string, keys []domain.ChunkKey) ([]domain.VectorRow, error)
	GetDocumentsForMirrors(ctx context.Context, hashes []string) (map[string][]domain.Document, error)
}

// GraphService answers link-graph and embedding-neighbourhood queries.
type GraphService struct {
	store graphStore
	index driven.VectorIndex
	model string
}

// NewGraphService creates a graph service. model names the embedding
// model whose stored vectors back similarity lookups; the index is
// optional and similarity degrades to unavailable without it.
func NewGraphService(store graphStore, index driven.VectorIndex, model string) *GraphService {
	return &GraphService{store: store, index: index, model: model}
}

// GetLinks returns the outgoing links of a document sorted by position,
// optionally filtered to one link type.
func (g *GraphService) GetLinks(ctx context.Context, docid string, linkType domain.LinkType) (*domain.LinkReport, error) {
	if linkType != "" && !domain.ValidLinkType(linkType) {
		return nil, domain.WrapError(domain.KindValidation, "unknown link type "+string(linkType), domain.ErrInvalidInput)
	}
	doc, err := g.resolve(ctx, docid)
	if err != nil {
		return nil, err
	}

	links, err := g.store.GetLinksForDoc(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if linkType != "" {
		links = lo.Filter(links, func(l domain.Link, _ int) bool { return l.Type == linkType })
	}
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].StartLine != links[j].StartLine {
			return links[i].StartLine < links[j].StartLine
		}
		return links[i].StartCol < links[j].StartCol
	})

	return &domain.LinkReport{Doc: docRef(doc), Links: links}, nil
}

// GetBacklinks returns the links pointing at a document sorted by
// source URI then position.
func (g *GraphService) GetBacklinks(ctx context.Context, docid string) (*domain.BacklinkReport, error) {
	doc, err := g.resolve(ctx, docid)
	if err != nil {
		return nil, err
	}

	backlinks, err := g.store.GetBacklinksForDoc(ctx, doc)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(backlinks, func(i, j int) bool {
		a, b := backlinks[i], backlinks[j]
		if a.SourceURI != b.SourceURI {
			return a.SourceURI < b.SourceURI
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		return a.StartCol < b.StartCol
	})

	return &domain.BacklinkReport{Doc: docRef(doc), Backlinks: backlinks}, nil
}

// GetSimilar finds documents near the given one in embedding space: the
// centroid of the document's stored chunk embeddings queried against
// the ANN index.
func (g *GraphService) GetSimilar(ctx context.Context, docid string, opts domain.SimilarOptions) ([]domain.SimilarDoc, error) {
	doc, err := g.resolve(ctx, docid)
	if err != nil {
		return nil, err
	}
	if g.index == nil || !g.index.Available() {
		return nil, domain.WrapError(domain.KindVecUnavailable, "similarity search", domain.ErrVecUnavailable)
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultSimilarLimit
	}
	if opts.Threshold <= 0 {
		opts.Threshold = defaultSimilarThreshold
	}

	centroid, err := g.centroid(ctx, doc)
	if err != nil {
		return nil, err
	}
	if centroid == nil {
		logger.Debug("Document %s has no stored embeddings", docid)
		return []domain.SimilarDoc{}, nil
	}

	k := opts.Limit * 20
	if k > maxSimilarK {
		k = maxSimilarK
	}
	hits, err := g.index.SearchNearest(ctx, centroid, k)
	if err != nil {
		return nil, err
	}

	return g.collect(ctx, doc, hits, opts)
}

// resolve parses the external docid and loads the document row.
func (g *GraphService) resolve(ctx context.Context, docid string) (*domain.Document, error) {
	bare, err := domain.ParseDocID(docid)
	if err != nil {
		return nil, domain.WrapError(domain.KindValidation, "docid", err)
	}
	doc, err := g.store.GetDocumentByDocID(ctx, bare)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// centroid averages the document's stored chunk embeddings and scales
// the mean to unit length. Nil when nothing is embedded yet.
func (g *GraphService) centroid(ctx context.Context, doc *domain.Document) ([]float32, error) {
	if doc.MirrorHash == "" {
		return nil, nil
	}
	byHash, err := g.store.GetChunksBatch(ctx, []string{doc.MirrorHash})
	if err != nil {
		return nil, err
	}
	keys := lo.Map(byHash[doc.MirrorHash], func(c domain.Chunk, _ int) domain.ChunkKey {
		return domain.ChunkKey{MirrorHash: c.MirrorHash, Seq: c.Seq}
	})
	if len(keys) == 0 {
		return nil, nil
	}

	rows, err := g.store.GetVectorRows(ctx, g.model, keys)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	mean := make([]float32, len(rows[0].Embedding))
	for _, row := range rows {
		for i, x := range row.Embedding {
			mean[i] += x
		}
	}
	n := float32(len(rows))
	for i := range mean {
		mean[i] /= n
	}
	unitNormalize(mean)
	return mean, nil
}

// collect hydrates nearest hits into similar documents: one batched
// document fetch, self excluded, deduped by docid, thresholded and
// sorted best first.
func (g *GraphService) collect(ctx context.Context, self *domain.Document, hits []domain.NearestHit, opts domain.SimilarOptions) ([]domain.SimilarDoc, error) {
	hashes := lo.Uniq(lo.Map(hits, func(h domain.NearestHit, _ int) string { return h.MirrorHash }))
	docsByMirror, err := g.store.GetDocumentsForMirrors(ctx, hashes)
	if err != nil {
		return nil, err
	}

	best := make(map[string]domain.SimilarDoc)
	for _, hit := range hits {
		score := clamp01(1 - hit.Distance)
		if score < opts.Threshold {
			continue
		}
		for _, doc := range docsByMirror[hit.MirrorHash] {
			if doc.DocID == self.DocID {
				continue
			}
			if !opts.CrossCollection && doc.Collection != self.Collection {
				continue
			}
			if prev, ok := best[doc.DocID]; ok && prev.Score >= score {
				continue
			}
			best[doc.DocID] = domain.SimilarDoc{
				DocID:      domain.FormatDocID(doc.DocID),
				Score:      score,
				URI:        doc.URI,
				Title:      doc.Title,
				Collection: doc.Collection,
				RelPath:    doc.RelPath,
			}
		}
	}

	similar := lo.Values(best)
	sort.Slice(similar, func(i, j int) bool {
		if similar[i].Score != similar[j].Score {
			return similar[i].Score > similar[j].Score
		}
		return similar[i].DocID < similar[j].DocID
	})
	if len(similar) > opts.Limit {
		similar = similar[:opts.Limit]
	}
	return similar, nil
}

func docRef(doc *domain.Document) domain.DocRef {
	return domain.DocRef{
		DocID: domain.FormatDocID(doc.DocID),
		URI:   doc.URI,
		Title: doc.Title,
	}
}
