// Package services implements the driving port interfaces: the ingest
// write path, the retrieval pipeline and the graph accessors.
// Services contain the core business logic and orchestrate calls to
// driven ports (adapters).
//
// Services are pure Go with no CGO or external dependencies.
package services
