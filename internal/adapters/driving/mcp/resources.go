package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// uriScheme is the custom URI scheme for gnosis resources.
const uriScheme = "gnosis://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for listing collections.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "collections",
		Name:        "collections",
		Description: "List of all indexed collections",
		MIMEType:    "application/json",
	}, s.handleCollectionsResource)

	// Template for collection documents.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "collections/{collection}/documents",
		Name:        "collection-documents",
		Description: "Documents indexed in a specific collection",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	// Template for document content.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{docid}",
		Name:        "document-content",
		Description: "Canonical markdown of a specific document",
		MIMEType:    "text/markdown",
	}, s.handleDocumentContentResource)
}

// handleCollectionsResource returns a list of all indexed collections.
func (s *Server) handleCollectionsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Store == nil {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     "[]",
			}},
		}, nil
	}

	collections, err := s.ports.Store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	type collectionInfo struct {
		Name string `json:"name"`
		Root string `json:"root"`
	}

	infos := make([]collectionInfo, len(collections))
	for i, c := range collections {
		infos[i] = collectionInfo{Name: c.Name, Root: c.RootPath}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling collections: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleDocumentsResource returns the documents of a collection.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Store == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	collection := extractCollection(req.Params.URI)
	if collection == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	docs, err := s.ports.Store.ListDocuments(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	type docInfo struct {
		DocID   string `json:"docid"`
		Title   string `json:"title,omitempty"`
		URI     string `json:"uri"`
		RelPath string `json:"rel_path"`
		Active  bool   `json:"active"`
	}

	infos := make([]docInfo, len(docs))
	for i := range docs {
		infos[i] = docInfo{
			DocID:   docs[i].DocID,
			Title:   docs[i].Title,
			URI:     docs[i].URI,
			RelPath: docs[i].RelPath,
			Active:  docs[i].Active,
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling documents: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleDocumentContentResource returns a document's canonical markdown.
func (s *Server) handleDocumentContentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Store == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	docid := extractDocID(req.Params.URI)
	if docid == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Store.GetDocumentByDocID(ctx, docid)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	if doc.MirrorHash == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	content, err := s.ports.Store.GetContent(ctx, doc.MirrorHash)
	if err != nil {
		return nil, fmt.Errorf("getting document content: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     content.Markdown,
		}},
	}, nil
}

// extractCollection parses gnosis://collections/{collection}/documents.
func extractCollection(uri string) string {
	const prefix = uriScheme + "collections/"
	const suffix = "/documents"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	uri = strings.TrimPrefix(uri, prefix)
	if !strings.HasSuffix(uri, suffix) {
		return ""
	}

	return strings.TrimSuffix(uri, suffix)
}

// extractDocID parses gnosis://documents/{docid}.
func extractDocID(uri string) string {
	const prefix = uriScheme + "documents/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	return strings.TrimPrefix(uri, prefix)
}
