package domain

import "time"

// FileType classifies a vault file by its content kind.
type FileType string

// Recognised file types.
const (
	FileTypeMarkdown FileType = "markdown"
	FileTypeText     FileType = "text"
	FileTypeImage    FileType = "image"
	FileTypeAudio    FileType = "audio"
	FileTypeVideo    FileType = "video"
	FileTypeDocument FileType = "document"
	FileTypeCode     FileType = "code"
	FileTypeUnknown  FileType = "unknown"
)

// IsValid returns true if the file type is recognised.
func (t FileType) IsValid() bool {
	switch t {
	case FileTypeMarkdown, FileTypeText, FileTypeImage, FileTypeAudio,
		FileTypeVideo, FileTypeDocument, FileTypeCode, FileTypeUnknown:
		return true
	default:
		return false
	}
}

// FileTypeForExtension maps a file extension (with or without the leading
// dot) to a FileType.
func FileTypeForExtension(ext string) FileType {
	if len(ext) > 0 && ext[0] == '.' {
		ext = ext[1:]
	}
	switch ext {
	case "md", "markdown":
		return FileTypeMarkdown
	case "txt":
		return FileTypeText
	case "png", "jpg", "jpeg", "gif", "webp", "svg":
		return FileTypeImage
	case "mp3", "wav", "flac", "ogg", "m4a":
		return FileTypeAudio
	case "mp4", "mov", "mkv", "webm":
		return FileTypeVideo
	case "pdf", "doc", "docx", "odt":
		return FileTypeDocument
	case "go", "rs", "py", "js", "ts", "c", "cpp", "java", "sh":
		return FileTypeCode
	default:
		return FileTypeUnknown
	}
}

// DocumentMetadata describes an indexed vault document.
// Path is the unique key; a re-index with an unchanged ContentHash and Size
// is treated as a no-op by the metadata store.
type DocumentMetadata struct {
	// Path is the vault-relative file path and unique document key.
	Path string

	// Title is the human-readable title extracted by the parser.
	Title string

	// ContentHash is the hex-encoded hash of the raw file content,
	// used by the indexer for dirty detection.
	ContentHash string

	// Size is the file size in bytes.
	Size int64

	// WordCount is the number of words in the plain-text body.
	WordCount int

	// CreatedAt is the file creation time.
	CreatedAt time.Time

	// ModifiedAt is the file modification time. Recency boosting in
	// hybrid search is derived from this field.
	ModifiedAt time.Time

	// IndexedAt is when the document was last written to the store.
	IndexedAt time.Time

	// Tags are the document's tags (frontmatter and inline #tags).
	Tags []string

	// Links are outbound wikilink targets.
	Links []string

	// FileType classifies the file.
	FileType FileType

	// Language is an optional detected language code.
	Language string

	// CustomFields carries arbitrary parser-supplied key-value pairs.
	CustomFields map[string]any
}

// DocumentRecord is a document as returned from the store, optionally
// carrying a content snippet and highlight.
type DocumentRecord struct {
	Metadata  DocumentMetadata
	Snippet   string
	Highlight string
}

// ActivityType classifies an entry in the document activity log.
type ActivityType string

// Recognised activity types.
const (
	ActivityCreated  ActivityType = "created"
	ActivityModified ActivityType = "modified"
	ActivityAccessed ActivityType = "accessed"
	ActivityIndexed  ActivityType = "indexed"
)

// ActivityRecord is one entry of the document activity log.
type ActivityRecord struct {
	DocumentPath string
	Activity     ActivityType
	Timestamp    time.Time
}

// TagStat reports how many documents carry a tag.
type TagStat struct {
	Tag      string
	Count    int
	LastUsed time.Time
}
