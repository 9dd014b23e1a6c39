// Package domain defines the core business entities for Mnemo.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - DocumentMetadata / DocumentRecord: the indexed vault documents
//   - DocumentEmbeddings / BlockEmbedding: vector representations
//   - SearchResult and friends: ranked query output
//   - StorageStats / VaultAnalytics: observability surface
//   - StorageConfig: construction-time engine configuration
package domain
