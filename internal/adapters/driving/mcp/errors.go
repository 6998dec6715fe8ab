// Package mcp provides a Model Context Protocol server adapter for
// gnosis. It exposes the retrieval and link-graph operations as tools
// AI assistants can call.
package mcp

import "errors"

// Required-port errors returned by Ports.Validate.
var (
	ErrMissingSearchService = errors.New("mcp: search service is required")
	ErrMissingGraphService  = errors.New("mcp: graph service is required")
)
