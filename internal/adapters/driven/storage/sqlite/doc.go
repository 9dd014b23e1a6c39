// Package sqlite implements the metadata side of the storage engine.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO, enabling easy cross-compilation. It persists document
// metadata, tags, wikilinks and the activity log, and serves full-text search
// through two FTS5 indexes (title and body) so title hits can be weighted
// above body hits.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking
// provided by SQLite in WAL mode.
package sqlite
