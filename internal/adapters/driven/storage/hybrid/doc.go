// Package hybrid composes the SQLite metadata store and the columnar
// vector store into the full storage engine.
//
// Writes fan out to the backend that owns the data; searches run the
// vector and text legs in parallel and fuse the two ranked lists, with a
// score boost for documents matched by both legs and a recency boost for
// freshly modified documents. A TTL query cache sits in front of the
// fused search path and is invalidated by every write.
//
// The engine tracks a coarse lifecycle: uninitialized, initializing,
// ready, optimizing, backing up. Optimize and Backup are exclusive with
// each other but reads and writes stay available while they run.
package hybrid
