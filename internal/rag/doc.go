// Package rag assembles retrieval context for language-model prompting.
// It retrieves the top-K documents for a question through the storage
// engine and formats them into a citation-numbered context block, with
// the related-knowledge bundle (tags, related documents, backlinks)
// attached to every source.
package rag
