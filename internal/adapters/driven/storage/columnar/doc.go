// Package columnar implements the vector side of the storage engine.
//
// Data is organised into two collections, one for document-level vectors
// and one for block-level vectors. Each collection is a directory of
// immutable column-oriented fragment files (optionally lz4-compressed),
// a JSON manifest listing the live fragments, and a roaring bitmap of
// tombstoned rows. Updates never rewrite fragments: replaced rows are
// tombstoned and new rows land in a fresh fragment. Compaction merges
// the live rows into a single fragment and clears the tombstones.
//
// Search is an exact scan over the in-memory row set using cosine
// similarity. The configured index kind (ivf, hnsw, flat) is recorded in
// the manifest for forward compatibility; all kinds currently execute as
// the exact scan.
//
// # Thread Safety
//
// All operations are thread-safe. Each collection is guarded by a
// read-write mutex; compaction snapshots the live rows and merges them
// outside the lock.
package columnar
