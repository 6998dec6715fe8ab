package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// QueryInput is the input schema for the retrieval tools.
type QueryInput struct {
	Query      string  `json:"query" jsonschema:"the search query"`
	Collection string  `json:"collection,omitempty" jsonschema:"restrict results to one collection"`
	Limit      int     `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	Threshold  float64 `json:"threshold,omitempty" jsonschema:"drop vector results scoring below this"`
	Expand     bool    `json:"expand,omitempty" jsonschema:"rewrite the query with the LLM before retrieval (query tool only)"`
	Rerank     bool    `json:"rerank,omitempty" jsonschema:"rescore fused candidates with the LLM (query tool only)"`
}

// QueryOutput is the output schema for the retrieval tools.
type QueryOutput struct {
	Results []domain.RankedResult `json:"results"`
	Count   int                   `json:"count"`
}

// DocInput is the input schema for the link-graph tools.
type DocInput struct {
	DocID    string `json:"docid" jsonschema:"the document identifier, e.g. #a1b2c3d4"`
	LinkType string `json:"link_type,omitempty" jsonschema:"filter links by type: wiki or markdown (get_links only)"`
}

// SimilarInput is the input schema for the get_similar tool.
type SimilarInput struct {
	DocID           string  `json:"docid" jsonschema:"the document identifier, e.g. #a1b2c3d4"`
	Limit           int     `json:"limit,omitempty" jsonschema:"maximum number of documents (default 10)"`
	Threshold       float64 `json:"threshold,omitempty" jsonschema:"drop documents scoring below this (default 0.5)"`
	CrossCollection bool    `json:"cross_collection,omitempty" jsonschema:"include documents from other collections"`
}

// SimilarOutput is the output schema for the get_similar tool.
type SimilarOutput struct {
	Docs  []domain.SimilarDoc `json:"docs"`
	Count int                 `json:"count"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query",
		Description: "Hybrid search across indexed collections, fusing keyword and semantic retrieval",
	}, s.handleQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_bm25",
		Description: "Keyword (BM25) search over the full-text index",
	}, s.handleSearchBM25)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_vector",
		Description: "Semantic nearest-neighbour search over the vector index",
	}, s.handleSearchVector)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_links",
		Description: "List a document's outgoing links, ordered by position",
	}, s.handleGetLinks)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_backlinks",
		Description: "List the links in other documents pointing at a document",
	}, s.handleGetBacklinks)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_similar",
		Description: "Find documents close to a document in embedding space",
	}, s.handleGetSimilar)
}

func searchOptions(input QueryInput) domain.SearchOptions {
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}
	return domain.SearchOptions{
		Collection: input.Collection,
		Limit:      limit,
		Threshold:  input.Threshold,
	}
}

func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	opts := domain.QueryOptions{
		SearchOptions: searchOptions(input),
		Expand:        input.Expand,
		Rerank:        input.Rerank,
	}

	results, err := s.ports.Search.Query(ctx, input.Query, opts)
	if err != nil {
		return nil, QueryOutput{}, err
	}
	return nil, resultsOutput(results), nil
}

func (s *Server) handleSearchBM25(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	results, err := s.ports.Search.SearchBM25(ctx, input.Query, searchOptions(input))
	if err != nil {
		return nil, QueryOutput{}, err
	}
	return nil, resultsOutput(results), nil
}

func (s *Server) handleSearchVector(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	results, err := s.ports.Search.SearchVector(ctx, input.Query, searchOptions(input))
	if err != nil {
		return nil, QueryOutput{}, err
	}
	return nil, resultsOutput(results), nil
}

func resultsOutput(results []domain.RankedResult) QueryOutput {
	if results == nil {
		results = []domain.RankedResult{}
	}
	return QueryOutput{Results: results, Count: len(results)}
}

func (s *Server) handleGetLinks(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocInput,
) (*mcp.CallToolResult, *domain.LinkReport, error) {
	linkType := domain.LinkType(input.LinkType)
	if input.LinkType != "" && !domain.ValidLinkType(linkType) {
		return nil, nil, domain.NewError(domain.KindValidation, "unknown link type: "+input.LinkType)
	}

	report, err := s.ports.Graph.GetLinks(ctx, input.DocID, linkType)
	if err != nil {
		return nil, nil, err
	}
	return nil, report, nil
}

func (s *Server) handleGetBacklinks(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocInput,
) (*mcp.CallToolResult, *domain.BacklinkReport, error) {
	report, err := s.ports.Graph.GetBacklinks(ctx, input.DocID)
	if err != nil {
		return nil, nil, err
	}
	return nil, report, nil
}

func (s *Server) handleGetSimilar(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SimilarInput,
) (*mcp.CallToolResult, SimilarOutput, error) {
	opts := domain.SimilarOptions{
		Limit:           input.Limit,
		Threshold:       input.Threshold,
		CrossCollection: input.CrossCollection,
	}

	docs, err := s.ports.Graph.GetSimilar(ctx, input.DocID, opts)
	if err != nil {
		return nil, SimilarOutput{}, err
	}
	if docs == nil {
		docs = []domain.SimilarDoc{}
	}
	return nil, SimilarOutput{Docs: docs, Count: len(docs)}, nil
}
