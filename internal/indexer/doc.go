// Package indexer walks a vault directory and drives files through the
// parse, store and embed pipeline. It detects unchanged files by content
// hash, honours ignore patterns, throttles with a rate limiter and can
// watch the vault for live changes.
package indexer
