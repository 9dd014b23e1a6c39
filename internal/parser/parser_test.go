package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
)

const sampleNote = `---
title: Borrowing Rules
tags: [rust, memory]
created: 2024-03-01
project: compilers
---
# Ownership

Every value has a single owner. See [[Lifetimes]] and
[[Advanced Rust|the advanced notes]] for details. #ownership

## Borrowing

- shared references
- mutable references

> [!warning]
> Aliasing a mutable reference is rejected.

` + "```rust\nlet x = &mut v;\n```" + `

![[diagram.png]]
`

func parseSample(t *testing.T) *domainParsed {
	t.Helper()
	p := New()
	doc, err := p.Parse("notes/borrowing.md", []byte(sampleNote))
	require.NoError(t, err)
	return &domainParsed{doc.Metadata, doc.PlainText, doc.Blocks}
}

type domainParsed struct {
	meta   domain.DocumentMetadata
	plain  string
	blocks []domain.Block
}

func TestParseFrontmatter(t *testing.T) {
	doc := parseSample(t)

	assert.Equal(t, "Borrowing Rules", doc.meta.Title)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), doc.meta.CreatedAt)
	assert.Equal(t, "compilers", doc.meta.CustomFields["project"])
}

func TestParseTags(t *testing.T) {
	doc := parseSample(t)

	// Frontmatter and inline tags, sorted and deduplicated.
	assert.Equal(t, []string{"memory", "ownership", "rust"}, doc.meta.Tags)
}

func TestParseLinks(t *testing.T) {
	doc := parseSample(t)

	assert.Contains(t, doc.meta.Links, "Lifetimes")
	assert.Contains(t, doc.meta.Links, "Advanced Rust")
	assert.Contains(t, doc.meta.Links, "diagram.png")
}

func TestParsePlainText(t *testing.T) {
	doc := parseSample(t)

	assert.Contains(t, doc.plain, "Every value has a single owner")
	// Wikilinks resolve to display text.
	assert.Contains(t, doc.plain, "Lifetimes")
	assert.Contains(t, doc.plain, "the advanced notes")
	assert.NotContains(t, doc.plain, "[[")
	// Inline tags and code are stripped.
	assert.NotContains(t, doc.plain, "#ownership")
	assert.NotContains(t, doc.plain, "let x")
	assert.Positive(t, doc.meta.WordCount)
}

func TestParseBlocks(t *testing.T) {
	doc := parseSample(t)

	types := make([]domain.BlockType, 0, len(doc.blocks))
	for _, b := range doc.blocks {
		types = append(types, b.Type)
	}
	assert.Equal(t, []domain.BlockType{
		domain.BlockHeading,
		domain.BlockParagraph,
		domain.BlockHeading,
		domain.BlockList,
		domain.BlockCallout,
		domain.BlockCode,
		domain.BlockEmbed,
	}, types)

	for _, b := range doc.blocks {
		assert.NotEmpty(t, b.ID)
		assert.NotEmpty(t, b.Content)
	}
}

func TestBlockOffsetsPointIntoFile(t *testing.T) {
	doc := parseSample(t)

	// The first heading block's offsets must locate the heading line in
	// the original file, past the frontmatter.
	heading := doc.blocks[0]
	require.Equal(t, domain.BlockHeading, heading.Type)
	assert.Equal(t, "# Ownership", sampleNote[heading.StartPos:heading.EndPos])

	code := findBlock(t, doc.blocks, domain.BlockCode)
	assert.Contains(t, sampleNote[code.StartPos:code.EndPos], "let x = &mut v;")
	assert.True(t, strings.HasPrefix(sampleNote[code.StartPos:], "```rust"))
}

func TestParseWithoutFrontmatter(t *testing.T) {
	p := New()

	doc, err := p.Parse("daily/2024-06-01.md", []byte("Just a quick note.\n"))
	require.NoError(t, err)
	assert.Equal(t, "2024 06 01", doc.Metadata.Title)
	assert.Equal(t, "Just a quick note.", doc.PlainText)
	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, domain.BlockParagraph, doc.Blocks[0].Type)
}

func TestParseTitleFromHeading(t *testing.T) {
	p := New()

	doc, err := p.Parse("n.md", []byte("# Actual Title\n\nBody.\n"))
	require.NoError(t, err)
	assert.Equal(t, "Actual Title", doc.Metadata.Title)
}

func TestParseUnterminatedFrontmatter(t *testing.T) {
	p := New()

	doc, err := p.Parse("n.md", []byte("---\ntitle: Oops\nno closing fence\n"))
	require.NoError(t, err)
	// Treated as body, so the filename wins.
	assert.Equal(t, "n", doc.Metadata.Title)
}

func TestParseMalformedFrontmatter(t *testing.T) {
	p := New()

	doc, err := p.Parse("n.md", []byte("---\n: [broken\n---\nBody text here.\n"))
	require.NoError(t, err)
	assert.Contains(t, doc.PlainText, "Body text here")
}

func TestParseEmptyPath(t *testing.T) {
	p := New()
	_, err := p.Parse("", []byte("content"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSupports(t *testing.T) {
	p := New()
	assert.True(t, p.Supports(domain.FileTypeMarkdown))
	assert.True(t, p.Supports(domain.FileTypeText))
	assert.False(t, p.Supports(domain.FileTypeImage))
}

func TestParseTable(t *testing.T) {
	p := New()

	content := "| a | b |\n|---|---|\n| 1 | 2 |\n"
	doc, err := p.Parse("t.md", []byte(content))
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, domain.BlockTable, doc.Blocks[0].Type)
}

func TestParseMath(t *testing.T) {
	p := New()

	doc, err := p.Parse("m.md", []byte("$$e = mc^2$$\n"))
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, domain.BlockMath, doc.Blocks[0].Type)
	assert.Equal(t, "e = mc^2", doc.Blocks[0].Content)
}

func findBlock(t *testing.T, blocks []domain.Block, blockType domain.BlockType) domain.Block {
	t.Helper()
	for _, b := range blocks {
		if b.Type == blockType {
			return b
		}
	}
	t.Fatalf("no block of type %s", blockType)
	return domain.Block{}
}
