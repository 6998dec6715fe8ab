// Package hnsw provides CGO bindings for HNSWlib, keyed by chunk
// identity. It backs the disposable nearest-neighbour side-index; the
// durable vector rows live in SQLite.
//
// Build requires:
//   - HNSWlib header (fetched via CMake FetchContent)
//   - C++17 compiler
package hnsw
