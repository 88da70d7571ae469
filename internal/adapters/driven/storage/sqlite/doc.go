// Package sqlite provides a SQLite-based implementation of the knowledge store.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO, enabling easy cross-compilation. It is intended for local
// development and single-node deployments.
//
// SQLite has no native vector index, so nearest-neighbour queries load the
// candidate embeddings for the tenant and rerank them in memory. This is fine
// for the corpus sizes a single tenant produces; larger deployments should use
// the Postgres adapter, which runs the same query natively with pgvector.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.ragcore/data/knowledge.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
