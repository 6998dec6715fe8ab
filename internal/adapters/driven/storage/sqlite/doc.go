// Package sqlite provides the SQLite-backed implementation of the Store
// port: content-addressed document persistence, chunk storage with an
// FTS5 index, durable embedding rows, links and ingest diagnostics.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation
// that requires no CGO, enabling easy cross-compilation.
//
// # Schema
//
// The relational schema is managed through versioned migrations stored
// in the migrations/ directory. The chunk FTS5 virtual table is created
// at open time instead, because its tokenizer is configurable; the
// tokenizer the index was built with is recorded in the meta table so a
// configuration change is detectable as a pending rebuild.
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking
// provided by SQLite in WAL mode.
package sqlite
