// Package parser implements the DocumentParser port for Obsidian-style
// markdown vaults. It extracts YAML frontmatter, inline #tags and
// [[wikilinks]], decomposes the body into typed blocks with byte offsets,
// and renders a plain-text form of the document for full-text indexing.
package parser
