package mcp

import (
	"context"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
	"github.com/custodia-labs/gnosis/internal/core/ports/driving"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results  []domain.RankedResult
	err      error
	lastMode string
	lastOpts domain.SearchOptions
	lastQry  domain.QueryOptions
}

func (m *mockSearchService) SearchBM25(
	_ context.Context,
	_ string,
	opts domain.SearchOptions,
) ([]domain.RankedResult, error) {
	m.lastMode, m.lastOpts = "bm25", opts
	return m.results, m.err
}

func (m *mockSearchService) SearchVector(
	_ context.Context,
	_ string,
	opts domain.SearchOptions,
) ([]domain.RankedResult, error) {
	m.lastMode, m.lastOpts = "vector", opts
	return m.results, m.err
}

func (m *mockSearchService) Query(
	_ context.Context,
	_ string,
	opts domain.QueryOptions,
) ([]domain.RankedResult, error) {
	m.lastMode, m.lastQry = "query", opts
	return m.results, m.err
}

// mockGraphService is a mock implementation of driving.GraphService.
type mockGraphService struct {
	links     *domain.LinkReport
	backlinks *domain.BacklinkReport
	similar   []domain.SimilarDoc
	err       error
	lastOpts  domain.SimilarOptions
}

func (m *mockGraphService) GetLinks(
	_ context.Context,
	_ string,
	_ domain.LinkType,
) (*domain.LinkReport, error) {
	return m.links, m.err
}

func (m *mockGraphService) GetBacklinks(
	_ context.Context,
	_ string,
) (*domain.BacklinkReport, error) {
	return m.backlinks, m.err
}

func (m *mockGraphService) GetSimilar(
	_ context.Context,
	_ string,
	opts domain.SimilarOptions,
) ([]domain.SimilarDoc, error) {
	m.lastOpts = opts
	return m.similar, m.err
}

// mockResourceStore stubs the store surface the resources read. The
// embedded interface panics on anything unexpected.
type mockResourceStore struct {
	driven.Store

	collections []domain.Collection
	documents   []domain.Document
	document    *domain.Document
	content     *domain.Content
	err         error
}

func (m *mockResourceStore) ListCollections(_ context.Context) ([]domain.Collection, error) {
	return m.collections, m.err
}

func (m *mockResourceStore) ListDocuments(_ context.Context, _ string) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockResourceStore) GetDocumentByDocID(_ context.Context, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockResourceStore) GetContent(_ context.Context, _ string) (*domain.Content, error) {
	return m.content, m.err
}

var (
	_ driving.SearchService = (*mockSearchService)(nil)
	_ driving.GraphService  = (*mockGraphService)(nil)
)

// testPorts returns a valid Ports wired to default mocks.
func testPorts() *Ports {
	return &Ports{
		Search: &mockSearchService{},
		Graph:  &mockGraphService{},
	}
}
