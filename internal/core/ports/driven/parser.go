package driven

import "github.com/mnemo-labs/mnemo-cli/internal/core/domain"

// ParsedDocument is the output of parsing a single vault file: extracted
// metadata, the searchable plain text, and the block decomposition that
// block-level embeddings are computed from.
type ParsedDocument struct {
	Metadata  domain.DocumentMetadata
	PlainText string
	Blocks    []domain.Block
}

// DocumentParser turns a vault file into a ParsedDocument.
// The markdown implementation understands Obsidian conventions:
// YAML frontmatter, #tags and [[wikilinks]].
type DocumentParser interface {
	// Parse parses raw file content. path is the vault-relative path and
	// is used for the fallback title and file type detection.
	Parse(path string, content []byte) (*ParsedDocument, error)

	// Supports reports whether the parser handles the given file type.
	Supports(fileType domain.FileType) bool
}
