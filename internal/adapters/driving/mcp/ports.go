package mcp

import (
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
	"github.com/custodia-labs/gnosis/internal/core/ports/driving"
)

// Ports aggregates the port interfaces the MCP server is built on.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search provides lexical, vector and hybrid retrieval.
	Search driving.SearchService

	// Graph provides link and similarity lookups.
	Graph driving.GraphService

	// Store backs the collection and document resources. Optional;
	// without it the collections resource answers an empty list and
	// the document resources answer not found.
	Store driven.Store
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	if p.Graph == nil {
		return ErrMissingGraphService
	}
	return nil
}
