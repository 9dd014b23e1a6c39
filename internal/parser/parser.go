package parser

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo-cli/internal/logger"
)

// Ensure Parser implements the interface.
var _ driven.DocumentParser = (*Parser)(nil)

var (
	wikilinkRe    = regexp.MustCompile(`\[\[([^\]|]+)(?:\|([^\]]+))?\]\]`)
	embedRe       = regexp.MustCompile(`!\[\[([^\]]+)\]\]`)
	tagRe         = regexp.MustCompile(`(?:^|\s)#([a-zA-Z0-9_/][a-zA-Z0-9_/-]*)`)
	calloutRe     = regexp.MustCompile(`^>\s*\[!(\w+)\][+-]?\s*(.*)`)
	headingLineRe = regexp.MustCompile(`^(#{1,6})\s+(.*)`)
	listLineRe    = regexp.MustCompile(`^\s*(?:[-*+]|\d+\.)\s+`)

	codeBlockRe    = regexp.MustCompile("(?s)```[^`]*```")
	inlineCodeRe   = regexp.MustCompile("`[^`]+`")
	imageRe        = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	mdLinkRe       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headingMarkRe  = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	blockquoteRe   = regexp.MustCompile(`(?m)^>\s*`)
	hrRe           = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	listMarkerRe   = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numberedListRe = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
)

// Parser parses Obsidian-flavoured markdown documents.
type Parser struct{}

// New creates a new markdown parser.
func New() *Parser {
	return &Parser{}
}

// Supports reports whether the parser handles the given file type.
func (p *Parser) Supports(fileType domain.FileType) bool {
	return fileType == domain.FileTypeMarkdown || fileType == domain.FileTypeText
}

// Parse parses raw file content. ContentHash, Size on disk and file
// timestamps are the indexer's concern; the parser fills what the text
// itself provides (frontmatter dates override nothing downstream unless
// the file times are unknown).
func (p *Parser) Parse(path string, content []byte) (*driven.ParsedDocument, error) {
	if path == "" {
		return nil, domain.ErrInvalidInput
	}

	text := string(content)
	fm, bodyOffset := splitFrontmatter(text)
	body := text[bodyOffset:]

	front := parseFrontmatter(fm, path)
	title := extractTitle(path, front.title, body)
	blocks := extractBlocks(body, bodyOffset)
	plain := plainText(body)

	meta := domain.DocumentMetadata{
		Path:         path,
		Title:        title,
		Size:         int64(len(content)),
		WordCount:    len(strings.Fields(plain)),
		CreatedAt:    front.created,
		ModifiedAt:   front.modified,
		Tags:         extractTags(body, front.tags),
		Links:        extractLinks(body),
		FileType:     domain.FileTypeForExtension(filepath.Ext(path)),
		CustomFields: front.custom,
	}

	return &driven.ParsedDocument{
		Metadata:  meta,
		PlainText: plain,
		Blocks:    blocks,
	}, nil
}

// frontmatter holds the recognised YAML frontmatter fields.
type frontmatter struct {
	title    string
	tags     []string
	created  time.Time
	modified time.Time
	custom   map[string]any
}

// splitFrontmatter returns the YAML source between the leading "---"
// fence pair and the byte offset where the document body starts. Content
// without a terminated fence is treated as all body.
func splitFrontmatter(text string) (string, int) {
	if !strings.HasPrefix(text, "---") {
		return "", 0
	}
	lines := strings.SplitAfter(text, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return "", 0
	}

	offset := len(lines[0])
	var b strings.Builder
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "---" {
			return b.String(), offset + len(line)
		}
		b.WriteString(line)
		offset += len(line)
	}
	return "", 0
}

// parseFrontmatter decodes the YAML frontmatter, tolerating malformed
// input. Unrecognised keys are preserved as custom fields.
func parseFrontmatter(src, path string) frontmatter {
	var fm frontmatter
	if src == "" {
		return fm
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(src), &raw); err != nil {
		logger.Debug("ignoring malformed frontmatter in %s: %v", path, err)
		return fm
	}

	for key, value := range raw {
		switch key {
		case "title":
			if s, ok := value.(string); ok {
				fm.title = s
			}
		case "tags":
			fm.tags = toStringList(value)
		case "created":
			fm.created = parseDate(value)
		case "modified":
			fm.modified = parseDate(value)
		default:
			if fm.custom == nil {
				fm.custom = make(map[string]any)
			}
			fm.custom[key] = value
		}
	}
	return fm
}

// toStringList accepts a scalar string or a list of strings.
func toStringList(value any) []string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// parseDate accepts time.Time (yaml decodes ISO dates natively) or a
// string in a few common layouts.
func parseDate(value any) time.Time {
	switch v := value.(type) {
	case time.Time:
		return v.UTC()
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

// extractTitle picks the frontmatter title, then the first H1 heading,
// then the filename.
func extractTitle(path, fmTitle, body string) string {
	if fmTitle != "" {
		return fmTitle
	}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}

	filename := filepath.Base(path)
	if ext := filepath.Ext(filename); ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}

// extractTags merges frontmatter tags with inline #tags from the body.
// Code blocks are stripped first so language directives are not mistaken
// for tags. The result is sorted and deduplicated.
func extractTags(body string, fmTags []string) []string {
	seen := make(map[string]struct{})
	for _, tag := range fmTags {
		seen[strings.TrimPrefix(tag, "#")] = struct{}{}
	}

	stripped := codeBlockRe.ReplaceAllString(body, "")
	for _, m := range tagRe.FindAllStringSubmatch(stripped, -1) {
		seen[m[1]] = struct{}{}
	}

	if len(seen) == 0 {
		return nil
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// extractLinks collects wikilink and embed targets in order of first
// appearance. Section references ([[Page#Heading]]) resolve to the page.
func extractLinks(body string) []string {
	var links []string
	seen := make(map[string]struct{})

	for _, m := range wikilinkRe.FindAllStringSubmatch(body, -1) {
		target := strings.TrimSpace(m[1])
		if i := strings.Index(target, "#"); i >= 0 {
			target = strings.TrimSpace(target[:i])
		}
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		links = append(links, target)
	}
	return links
}

// plainText renders the body as a single-line plain text form suitable
// for full-text indexing. Wikilinks resolve to their display text and
// inline tags are dropped.
func plainText(body string) string {
	s := codeBlockRe.ReplaceAllString(body, "")
	s = inlineCodeRe.ReplaceAllString(s, "")
	s = embedRe.ReplaceAllString(s, "")
	s = wikilinkRe.ReplaceAllStringFunc(s, func(match string) string {
		m := wikilinkRe.FindStringSubmatch(match)
		if m[2] != "" {
			return m[2]
		}
		return m[1]
	})
	s = imageRe.ReplaceAllString(s, "")
	s = mdLinkRe.ReplaceAllString(s, "$1")
	s = tagRe.ReplaceAllString(s, " ")
	s = headingMarkRe.ReplaceAllString(s, "")
	s = blockquoteRe.ReplaceAllString(s, "")
	s = hrRe.ReplaceAllString(s, "")
	s = listMarkerRe.ReplaceAllString(s, "")
	s = numberedListRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	s = strings.ReplaceAll(s, "*", "")

	return strings.Join(strings.Fields(s), " ")
}

// newBlock assembles a block with a fresh ID. Positions are byte offsets
// into the original file, not the frontmatter-stripped body.
func newBlock(blockType domain.BlockType, content string, start, end int) domain.Block {
	return domain.Block{
		ID:       uuid.New().String(),
		Type:     blockType,
		Content:  strings.TrimSpace(content),
		StartPos: start,
		EndPos:   end,
	}
}

// bodyLine is one line of the body with its byte offset.
type bodyLine struct {
	text  string // without the trailing newline
	start int    // offset of the first byte
	end   int    // offset one past the last content byte
}

func splitLines(body string) []bodyLine {
	raw := strings.SplitAfter(body, "\n")
	lines := make([]bodyLine, 0, len(raw))
	offset := 0
	for _, r := range raw {
		text := strings.TrimRight(r, "\n")
		text = strings.TrimRight(text, "\r")
		lines = append(lines, bodyLine{
			text:  text,
			start: offset,
			end:   offset + len(text),
		})
		offset += len(r)
	}
	return lines
}

// extractBlocks decomposes the body into typed blocks. base is the byte
// offset of the body within the original file so positions point into
// the file as stored on disk.
func extractBlocks(body string, base int) []domain.Block {
	lines := splitLines(body)
	var blocks []domain.Block

	flushParagraph := func(start, end int, content []string) {
		text := strings.TrimSpace(strings.Join(content, "\n"))
		if text == "" {
			return
		}
		blocks = append(blocks, newBlock(domain.BlockParagraph, text, base+start, base+end))
	}

	var para []string
	paraStart := -1

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line.text)

		flushPending := func() {
			if paraStart >= 0 {
				flushParagraph(paraStart, lines[i-1].end, para)
				para, paraStart = nil, -1
			}
		}

		switch {
		case trimmed == "":
			flushPending()
			i++

		case strings.HasPrefix(trimmed, "```"):
			flushPending()
			start := line.start
			var content []string
			j := i + 1
			for j < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[j].text), "```") {
				content = append(content, lines[j].text)
				j++
			}
			end := lines[min(j, len(lines)-1)].end
			blocks = append(blocks, newBlock(domain.BlockCode,
				strings.Join(content, "\n"), base+start, base+end))
			i = j + 1

		case strings.HasPrefix(trimmed, "$$"):
			flushPending()
			start := line.start
			inner := strings.TrimPrefix(trimmed, "$$")
			if closed := strings.HasSuffix(inner, "$$") && inner != ""; closed {
				blocks = append(blocks, newBlock(domain.BlockMath,
					strings.TrimSuffix(inner, "$$"), base+start, base+line.end))
				i++
				break
			}
			var content []string
			if inner != "" {
				content = append(content, inner)
			}
			j := i + 1
			for j < len(lines) && !strings.HasSuffix(strings.TrimSpace(lines[j].text), "$$") {
				content = append(content, lines[j].text)
				j++
			}
			if j < len(lines) {
				last := strings.TrimSuffix(strings.TrimSpace(lines[j].text), "$$")
				if last != "" {
					content = append(content, last)
				}
			}
			end := lines[min(j, len(lines)-1)].end
			blocks = append(blocks, newBlock(domain.BlockMath,
				strings.Join(content, "\n"), base+start, base+end))
			i = j + 1

		case embedRe.MatchString(trimmed) && wikilinkRe.ReplaceAllString(strings.TrimPrefix(trimmed, "!"), "") == "":
			// A line that is nothing but an embed.
			flushPending()
			target := embedRe.FindStringSubmatch(trimmed)[1]
			blocks = append(blocks, newBlock(domain.BlockEmbed, target,
				base+line.start, base+line.end))
			i++

		case headingLineRe.MatchString(trimmed):
			flushPending()
			m := headingLineRe.FindStringSubmatch(trimmed)
			blocks = append(blocks, newBlock(domain.BlockHeading, m[2],
				base+line.start, base+line.end))
			i++

		case strings.HasPrefix(trimmed, ">"):
			flushPending()
			start := line.start
			blockType := domain.BlockQuote
			var content []string
			if m := calloutRe.FindStringSubmatch(trimmed); m != nil {
				blockType = domain.BlockCallout
				if m[2] != "" {
					content = append(content, m[2])
				}
				i++
			}
			for i < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i].text), ">") {
				stripped := strings.TrimSpace(lines[i].text)
				stripped = strings.TrimSpace(strings.TrimPrefix(stripped, ">"))
				content = append(content, stripped)
				i++
			}
			blocks = append(blocks, newBlock(blockType,
				strings.Join(content, "\n"), base+start, base+lines[i-1].end))

		case listLineRe.MatchString(line.text):
			flushPending()
			start := line.start
			var content []string
			for i < len(lines) && (listLineRe.MatchString(lines[i].text) ||
				(strings.TrimSpace(lines[i].text) != "" && strings.HasPrefix(lines[i].text, "  "))) {
				content = append(content, lines[i].text)
				i++
			}
			blocks = append(blocks, newBlock(domain.BlockList,
				strings.Join(content, "\n"), base+start, base+lines[i-1].end))

		case strings.HasPrefix(trimmed, "|"):
			flushPending()
			start := line.start
			var content []string
			for i < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i].text), "|") {
				content = append(content, lines[i].text)
				i++
			}
			blocks = append(blocks, newBlock(domain.BlockTable,
				strings.Join(content, "\n"), base+start, base+lines[i-1].end))

		default:
			if paraStart < 0 {
				paraStart = line.start
			}
			para = append(para, line.text)
			i++
		}
	}

	if paraStart >= 0 {
		flushParagraph(paraStart, lines[len(lines)-1].end, para)
	}
	return blocks
}
