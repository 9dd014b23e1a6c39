package domain

import "time"

// BlockType classifies a block extracted from a markdown document.
type BlockType string

// Recognised block types.
const (
	BlockParagraph BlockType = "paragraph"
	BlockHeading   BlockType = "heading"
	BlockCode      BlockType = "code"
	BlockQuote     BlockType = "quote"
	BlockList      BlockType = "list"
	BlockTable     BlockType = "table"
	BlockCallout   BlockType = "callout"
	BlockMath      BlockType = "math"
	BlockEmbed     BlockType = "embed"
)

// IsValid returns true if the block type is recognised.
func (t BlockType) IsValid() bool {
	switch t {
	case BlockParagraph, BlockHeading, BlockCode, BlockQuote, BlockList,
		BlockTable, BlockCallout, BlockMath, BlockEmbed:
		return true
	default:
		return false
	}
}

// Block is a structural unit extracted from a document by the parser.
// Blocks are the granularity at which block-level embeddings are computed.
type Block struct {
	// ID is unique within the document.
	ID string

	Type    BlockType
	Content string

	// StartPos and EndPos are byte offsets into the original file.
	StartPos int
	EndPos   int
}

// DocumentEmbeddings is the whole-document vector representation.
type DocumentEmbeddings struct {
	// Vector is the document-level embedding. Its length must equal the
	// vector store's configured dimension or the write is rejected
	// before any I/O.
	Vector []float32

	// ModelName identifies the embedding model that produced the vector.
	ModelName string

	// Dimension is the vector length as reported by the producer.
	Dimension int

	// CreatedAt is when the embedding was generated.
	CreatedAt time.Time

	// Checksum ties the embedding to the content it was computed from.
	Checksum string
}

// BlockEmbedding is the vector representation of a single document block.
// BlockID is unique within its document.
type BlockEmbedding struct {
	BlockID   string
	BlockType BlockType
	Content   string
	Vector    []float32
	StartPos  int
	EndPos    int
	CreatedAt time.Time
}
