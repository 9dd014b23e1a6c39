package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mnemo-labs/mnemo-cli/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driven"
)

const (
	// titleWeight is the multiplier applied to title FTS scores before
	// they are combined with body scores.
	titleWeight = 2.0

	// snippetMaxLen is the maximum snippet length in bytes.
	snippetMaxLen = 200

	// analyticsWindow is the trailing window over which the average
	// search latency is reported.
	analyticsWindow = 24 * time.Hour
)

// Store is the SQLite-backed metadata side of the storage engine. It owns
// document metadata, tags, wikilinks, the activity log and the FTS5
// full-text indexes. Embedding writes are accepted as no-ops so the store
// satisfies the full StorageEngine surface.
type Store struct {
	cfg    domain.MetadataConfig
	db     *sql.DB
	dbPath string

	mu            sync.Mutex
	initialized   bool
	lastOptimized time.Time
}

var _ driven.StorageEngine = (*Store)(nil)

// NewStore creates a metadata store for the given configuration. The
// database is not opened until Initialize is called.
func NewStore(cfg domain.MetadataConfig) *Store {
	return &Store{cfg: cfg}
}

// Initialize opens the database, applies pragmas and runs migrations.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return domain.ErrAlreadyInitialized
	}
	if s.cfg.DatabasePath == "" {
		return fmt.Errorf("metadata store: %w: empty database path", domain.ErrInvalidInput)
	}

	if err := os.MkdirAll(s.cfg.DatabasePath, 0o700); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}
	s.dbPath = filepath.Join(s.cfg.DatabasePath, "metadata.db")

	// Transactions begin immediate so a read-then-write inside a
	// transaction cannot fail with a snapshot conflict that the busy
	// handler is unable to retry. Plain reads stay in autocommit and
	// are unaffected.
	dsn := s.dbPath + "?_txlock=immediate&_pragma=busy_timeout(5000)"
	if s.cfg.WALMode {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return fmt.Errorf("enabling foreign keys: %w", err)
	}
	if s.cfg.CacheSizeMB > 0 {
		// Negative cache_size is interpreted by SQLite as KiB.
		pragma := fmt.Sprintf("PRAGMA cache_size = %d", -s.cfg.CacheSizeMB*1024)
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("setting cache size: %w", err)
		}
	}

	s.db = db
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		s.db = nil
		return fmt.Errorf("running migrations: %w", err)
	}

	s.initialized = true
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.initialized = false
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// ready reports whether Initialize has completed.
func (s *Store) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return domain.ErrNotInitialized
	}
	return nil
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}
		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Document Writes ====================

// StoreDocumentMetadata stores or updates a document's metadata.
func (s *Store) StoreDocumentMetadata(ctx context.Context, path string, meta domain.DocumentMetadata) error {
	return s.storeDocument(ctx, path, meta, nil)
}

// StoreDocumentContent stores a document's metadata together with its
// searchable plain text.
func (s *Store) StoreDocumentContent(
	ctx context.Context,
	path string,
	meta domain.DocumentMetadata,
	plainText string,
) error {
	return s.storeDocument(ctx, path, meta, &plainText)
}

// storeDocument performs the shared upsert. A write carrying the same
// content hash and size as the stored row is skipped entirely: no row
// update, no FTS churn, no activity entry.
func (s *Store) storeDocument(
	ctx context.Context,
	path string,
	meta domain.DocumentMetadata,
	plainText *string,
) error {
	if err := s.ready(); err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("metadata store: %w: empty path", domain.ErrInvalidInput)
	}
	meta.Path = path

	customJSON, err := json.Marshal(meta.CustomFields)
	if err != nil {
		return fmt.Errorf("marshalling custom fields: %w", err)
	}

	now := time.Now().UTC()
	if meta.IndexedAt.IsZero() {
		meta.IndexedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var (
		id           int64
		existingHash string
		existingSize int64
	)
	// A new document logs "indexed" when it arrives with its searchable
	// text and "created" for a metadata-only write; updates log
	// "modified" either way.
	activity := domain.ActivityCreated
	if plainText != nil {
		activity = domain.ActivityIndexed
	}
	isNew := true
	err = tx.QueryRowContext(ctx,
		"SELECT id, content_hash, size FROM documents WHERE path = ?", path,
	).Scan(&id, &existingHash, &existingSize)
	switch {
	case err == sql.ErrNoRows:
		// New document.
	case err != nil:
		return fmt.Errorf("looking up document: %w", err)
	default:
		if existingHash == meta.ContentHash && existingSize == meta.Size {
			// Unchanged re-index, nothing to do.
			return nil
		}
		activity = domain.ActivityModified
		isNew = false
	}

	if isNew {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO documents
				(path, title, content_hash, size, word_count, file_type, language,
				 custom_fields, created_at, modified_at, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, path, meta.Title, meta.ContentHash, meta.Size, meta.WordCount,
			string(meta.FileType), meta.Language, string(customJSON),
			meta.CreatedAt, meta.ModifiedAt, meta.IndexedAt)
		if err != nil {
			return fmt.Errorf("inserting document: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting document id: %w", err)
		}
	} else {
		_, err := tx.ExecContext(ctx, `
			UPDATE documents SET
				title = ?, content_hash = ?, size = ?, word_count = ?,
				file_type = ?, language = ?, custom_fields = ?,
				created_at = ?, modified_at = ?, indexed_at = ?
			WHERE id = ?
		`, meta.Title, meta.ContentHash, meta.Size, meta.WordCount,
			string(meta.FileType), meta.Language, string(customJSON),
			meta.CreatedAt, meta.ModifiedAt, meta.IndexedAt, id)
		if err != nil {
			return fmt.Errorf("updating document: %w", err)
		}
	}

	if err := replaceTags(ctx, tx, id, meta.Tags); err != nil {
		return err
	}
	if err := replaceLinks(ctx, tx, id, meta.Links); err != nil {
		return err
	}

	// The title index is refreshed on every write; the body index only
	// when plain text is supplied.
	if _, err := tx.ExecContext(ctx, "DELETE FROM title_fts WHERE rowid = ?", id); err != nil {
		return fmt.Errorf("clearing title index: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO title_fts (rowid, title) VALUES (?, ?)", id, meta.Title); err != nil {
		return fmt.Errorf("indexing title: %w", err)
	}
	if plainText != nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM content_fts WHERE rowid = ?", id); err != nil {
			return fmt.Errorf("clearing content index: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO content_fts (rowid, plain_text) VALUES (?, ?)", id, *plainText); err != nil {
			return fmt.Errorf("indexing content: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO activity_log (document_path, activity, occurred_at)
		VALUES (?, ?, ?)
	`, path, string(activity), now); err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// replaceTags replaces the document's tag links inside tx.
func replaceTags(ctx context.Context, tx *sql.Tx, docID int64, tags []string) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM document_tags WHERE document_id = ?", docID); err != nil {
		return fmt.Errorf("clearing tags: %w", err)
	}
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO tags (name) VALUES (?)", tag); err != nil {
			return fmt.Errorf("inserting tag: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO document_tags (document_id, tag_id)
			SELECT ?, id FROM tags WHERE name = ?
		`, docID, tag); err != nil {
			return fmt.Errorf("linking tag: %w", err)
		}
	}
	return nil
}

// replaceLinks replaces the document's outbound wikilinks inside tx.
func replaceLinks(ctx context.Context, tx *sql.Tx, docID int64, links []string) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM links WHERE document_id = ?", docID); err != nil {
		return fmt.Errorf("clearing links: %w", err)
	}
	for _, target := range links {
		if target == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO links (document_id, target) VALUES (?, ?)",
			docID, target); err != nil {
			return fmt.Errorf("inserting link: %w", err)
		}
	}
	return nil
}

// ==================== Embedding Writes (no-ops) ====================

// StoreDocumentEmbeddings is a no-op; embeddings live in the vector store.
func (s *Store) StoreDocumentEmbeddings(ctx context.Context, path string, emb domain.DocumentEmbeddings) error {
	return s.ready()
}

// StoreBlockEmbeddings is a no-op; embeddings live in the vector store.
func (s *Store) StoreBlockEmbeddings(ctx context.Context, path string, blocks []domain.BlockEmbedding) error {
	return s.ready()
}

// ==================== Search ====================

// SemanticSearch serves only the text leg of a hybrid query; the vector
// leg belongs to the vector store.
func (s *Store) SemanticSearch(ctx context.Context, query domain.HybridQuery) ([]domain.SearchResult, error) {
	if query.Text == "" {
		return nil, s.ready()
	}
	return s.TextSearch(ctx, query.Text, query.Limit)
}

// TextSearch runs the query against both FTS indexes and combines the BM25
// scores, weighting title hits above body hits.
func (s *Store) TextSearch(ctx context.Context, text string, limit int) ([]domain.SearchResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if text == "" || limit <= 0 {
		return nil, nil
	}
	match := ftsQuery(text)
	if match == "" {
		return nil, nil
	}
	start := time.Now()

	scores := make(map[int64]float64)

	// bm25() returns negative values where more negative is better, so
	// the sign is flipped to make higher scores better.
	if err := s.collectScores(ctx,
		"SELECT rowid, -bm25(title_fts) FROM title_fts WHERE title_fts MATCH ?",
		match, scores, titleWeight); err != nil {
		return nil, fmt.Errorf("searching titles: %w", err)
	}
	if err := s.collectScores(ctx,
		"SELECT rowid, -bm25(content_fts) FROM content_fts WHERE content_fts MATCH ?",
		match, scores, 1.0); err != nil {
		return nil, fmt.Errorf("searching content: %w", err)
	}
	if len(scores) == 0 {
		s.recordSearch(ctx, text, 0, time.Since(start))
		return nil, nil
	}

	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	docs, err := s.loadDocuments(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(docs))
	for id, doc := range docs {
		results = append(results, domain.SearchResult{
			Document:       doc,
			Score:          float32(scores[id]),
			MatchType:      domain.MatchFullText,
			MatchedContent: text,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.Metadata.Path < results[j].Document.Metadata.Path
	})
	if len(results) > limit {
		results = results[:limit]
	}

	// Snippets are only built for the returned page.
	for i := range results {
		id := idForPath(docs, results[i].Document.Metadata.Path)
		var body string
		err := s.db.QueryRowContext(ctx,
			"SELECT plain_text FROM content_fts WHERE rowid = ?", id).Scan(&body)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("loading snippet source: %w", err)
		}
		results[i].Document.Snippet = makeSnippet(body, text)
	}

	s.recordSearch(ctx, text, len(results), time.Since(start))
	return results, nil
}

// recordSearch appends one row to the search analytics. Best-effort,
// like the activity log.
func (s *Store) recordSearch(ctx context.Context, query string, count int, elapsed time.Duration) {
	s.db.ExecContext(ctx, //nolint:errcheck
		`INSERT INTO search_analytics (query, result_count, execution_time_ms, executed_at)
		 VALUES (?, ?, ?, ?)`,
		query, count, float64(elapsed.Microseconds())/1000, time.Now().UTC())
}

// collectScores adds weighted FTS scores for one index into scores.
func (s *Store) collectScores(
	ctx context.Context,
	query, match string,
	scores map[int64]float64,
	weight float64,
) error {
	rows, err := s.db.QueryContext(ctx, query, match)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return err
		}
		scores[id] += score * weight
	}
	return rows.Err()
}

// ftsQuery turns free text into an FTS5 MATCH expression by quoting each
// term, so user input cannot inject FTS syntax.
func ftsQuery(text string) string {
	terms := strings.Fields(text)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ReplaceAll(term, `"`, `""`)
		quoted = append(quoted, `"`+term+`"`)
	}
	return strings.Join(quoted, " ")
}

// makeSnippet extracts a window around the first case-insensitive
// occurrence of query in content. When the query does not occur literally,
// the head of the content is returned instead.
func makeSnippet(content, query string) string {
	if content == "" {
		return ""
	}
	idx := strings.Index(strings.ToLower(content), strings.ToLower(query))
	if idx < 0 {
		if len(content) <= snippetMaxLen {
			return content
		}
		return content[:snapRuneStart(content, snippetMaxLen)] + "..."
	}

	start := idx - snippetMaxLen/2
	if start < 0 {
		start = 0
	}
	end := idx + len(query) + snippetMaxLen/2
	if end > len(content) {
		end = len(content)
	}
	start = snapRuneStart(content, start)
	end = snapRuneStart(content, end)

	snippet := content[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(content) {
		snippet += "..."
	}
	return snippet
}

// snapRuneStart moves pos backwards to the nearest UTF-8 rune boundary.
func snapRuneStart(s string, pos int) int {
	if pos >= len(s) {
		return len(s)
	}
	for pos > 0 && !utf8.RuneStart(s[pos]) {
		pos--
	}
	return pos
}

// ==================== Reads ====================

// GetDocument retrieves a document record by path. A missing path returns
// (nil, nil). Successful lookups are recorded in the activity log.
func (s *Store) GetDocument(ctx context.Context, path string) (*domain.DocumentRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, title, content_hash, size, word_count, file_type,
		       language, custom_fields, created_at, modified_at, indexed_at
		FROM documents WHERE path = ?
	`, path)

	id, doc, err := scanDocumentRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	if err := s.loadTagsAndLinks(ctx, id, &doc.Metadata); err != nil {
		return nil, err
	}

	// Access tracking is best-effort.
	s.db.ExecContext(ctx, //nolint:errcheck
		"INSERT INTO activity_log (document_path, activity, occurred_at) VALUES (?, ?, ?)",
		path, string(domain.ActivityAccessed), time.Now().UTC())

	return doc, nil
}

// GetDocumentsByTag returns documents carrying the given tag, most recently
// modified first.
func (s *Store) GetDocumentsByTag(ctx context.Context, tag string) ([]domain.DocumentRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.path, d.title, d.content_hash, d.size, d.word_count,
		       d.file_type, d.language, d.custom_fields, d.created_at,
		       d.modified_at, d.indexed_at
		FROM documents d
		JOIN document_tags dt ON dt.document_id = d.id
		JOIN tags t ON t.id = dt.tag_id
		WHERE t.name = ?
		ORDER BY d.modified_at DESC
	`, tag)
	if err != nil {
		return nil, fmt.Errorf("querying documents by tag: %w", err)
	}
	defer rows.Close()

	return s.collectDocuments(ctx, rows)
}

// GetRecentDocuments returns the most recently modified documents.
func (s *Store) GetRecentDocuments(ctx context.Context, limit int) ([]domain.DocumentRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, title, content_hash, size, word_count, file_type,
		       language, custom_fields, created_at, modified_at, indexed_at
		FROM documents
		ORDER BY modified_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent documents: %w", err)
	}
	defer rows.Close()

	return s.collectDocuments(ctx, rows)
}

// collectDocuments drains rows and hydrates tags and links per document.
func (s *Store) collectDocuments(ctx context.Context, rows *sql.Rows) ([]domain.DocumentRecord, error) {
	type loaded struct {
		id  int64
		doc *domain.DocumentRecord
	}
	var all []loaded
	for rows.Next() {
		id, doc, err := scanDocumentRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		all = append(all, loaded{id: id, doc: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	docs := make([]domain.DocumentRecord, 0, len(all))
	for _, l := range all {
		if err := s.loadTagsAndLinks(ctx, l.id, &l.doc.Metadata); err != nil {
			return nil, err
		}
		docs = append(docs, *l.doc)
	}
	return docs, nil
}

// loadDocuments loads document records for a set of rowids, keyed by rowid.
func (s *Store) loadDocuments(ctx context.Context, ids []int64) (map[int64]domain.DocumentRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, path, title, content_hash, size, word_count, file_type,
		       language, custom_fields, created_at, modified_at, indexed_at
		FROM documents WHERE id IN (%s)
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	defer rows.Close()

	docs := make(map[int64]domain.DocumentRecord, len(ids))
	for rows.Next() {
		id, doc, err := scanDocumentRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if err := s.loadTagsAndLinks(ctx, id, &doc.Metadata); err != nil {
			return nil, err
		}
		docs[id] = *doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// idForPath finds the rowid whose record carries path.
func idForPath(docs map[int64]domain.DocumentRecord, path string) int64 {
	for id, doc := range docs {
		if doc.Metadata.Path == path {
			return id
		}
	}
	return 0
}

// loadTagsAndLinks hydrates the tag and link slices of meta.
func (s *Store) loadTagsAndLinks(ctx context.Context, docID int64, meta *domain.DocumentMetadata) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN document_tags dt ON dt.tag_id = t.id
		WHERE dt.document_id = ?
		ORDER BY t.name
	`, docID)
	if err != nil {
		return fmt.Errorf("querying tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return fmt.Errorf("scanning tag: %w", err)
		}
		meta.Tags = append(meta.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating tags: %w", err)
	}

	linkRows, err := s.db.QueryContext(ctx,
		"SELECT target FROM links WHERE document_id = ? ORDER BY target", docID)
	if err != nil {
		return fmt.Errorf("querying links: %w", err)
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var target string
		if err := linkRows.Scan(&target); err != nil {
			return fmt.Errorf("scanning link: %w", err)
		}
		meta.Links = append(meta.Links, target)
	}
	if err := linkRows.Err(); err != nil {
		return fmt.Errorf("iterating links: %w", err)
	}
	return nil
}

// scanDocumentRow scans one documents row through the given scan function.
func scanDocumentRow(scan func(dest ...any) error) (int64, *domain.DocumentRecord, error) {
	var (
		id          int64
		doc         domain.DocumentRecord
		fileType    string
		customJSON  string
		createdAt   sql.NullTime
		modifiedAt  sql.NullTime
		indexedAt   sql.NullTime
	)
	err := scan(&id, &doc.Metadata.Path, &doc.Metadata.Title, &doc.Metadata.ContentHash,
		&doc.Metadata.Size, &doc.Metadata.WordCount, &fileType, &doc.Metadata.Language,
		&customJSON, &createdAt, &modifiedAt, &indexedAt)
	if err != nil {
		return 0, nil, err
	}

	doc.Metadata.FileType = domain.FileType(fileType)
	if customJSON != "" && customJSON != "{}" {
		if err := json.Unmarshal([]byte(customJSON), &doc.Metadata.CustomFields); err != nil {
			return 0, nil, fmt.Errorf("unmarshaling custom fields: %w", err)
		}
	}
	if createdAt.Valid {
		doc.Metadata.CreatedAt = createdAt.Time
	}
	if modifiedAt.Valid {
		doc.Metadata.ModifiedAt = modifiedAt.Time
	}
	if indexedAt.Valid {
		doc.Metadata.IndexedAt = indexedAt.Time
	}
	return id, &doc, nil
}

// ==================== Removal ====================

// RemoveDocument removes a document, its tags, links and FTS rows.
// Removing an unknown path is a no-op.
func (s *Store) RemoveDocument(ctx context.Context, path string) error {
	if err := s.ready(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM documents WHERE path = ?", path).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM title_fts WHERE rowid = ?", id); err != nil {
		return fmt.Errorf("clearing title index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM content_fts WHERE rowid = ?", id); err != nil {
		return fmt.Errorf("clearing content index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ==================== Stats and Maintenance ====================

// Stats reports document counts and on-disk size of the database.
func (s *Store) Stats(ctx context.Context) (*domain.StorageStats, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var stats domain.StorageStats
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents").Scan(&stats.TotalDocuments); err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}

	// The latency average is computed over the trailing window so it
	// reflects recent behaviour, not the lifetime of the database.
	var queries int64
	var avgMs float64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(execution_time_ms), 0)
		FROM search_analytics
		WHERE executed_at >= ?
	`, time.Now().UTC().Add(-analyticsWindow)).Scan(&queries, &avgMs); err != nil {
		return nil, fmt.Errorf("aggregating search analytics: %w", err)
	}
	stats.Performance.TotalQueries = uint64(queries)
	stats.Performance.AvgSearchLatencyMs = avgMs

	var size int64
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if info, err := os.Stat(s.dbPath + suffix); err == nil {
			size += info.Size()
		}
	}
	stats.StorageSizeBytes = size
	stats.MetadataSizeBytes = size

	s.mu.Lock()
	stats.LastOptimized = s.lastOptimized
	s.mu.Unlock()

	return &stats, nil
}

// TopTags returns the most used tags with usage counts.
func (s *Store) TopTags(ctx context.Context, limit int) ([]domain.TagStat, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, COUNT(*)
		FROM tags t
		JOIN document_tags dt ON dt.tag_id = t.id
		GROUP BY t.name
		ORDER BY COUNT(*) DESC, t.name ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top tags: %w", err)
	}
	defer rows.Close()

	var tags []domain.TagStat //nolint:prealloc // size unknown from query
	for rows.Next() {
		var stat domain.TagStat
		if err := rows.Scan(&stat.Tag, &stat.Count); err != nil {
			return nil, fmt.Errorf("scanning tag stat: %w", err)
		}
		tags = append(tags, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tag stats: %w", err)
	}

	// An aggregate expression loses the column's datetime typing under
	// this driver, so last-used is read as a plain column per tag.
	for i := range tags {
		var lastUsed sql.NullTime
		err := s.db.QueryRowContext(ctx, `
			SELECT d.modified_at
			FROM documents d
			JOIN document_tags dt ON dt.document_id = d.id
			JOIN tags t ON t.id = dt.tag_id
			WHERE t.name = ?
			ORDER BY d.modified_at DESC
			LIMIT 1
		`, tags[i].Tag).Scan(&lastUsed)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("loading tag last use: %w", err)
		}
		if lastUsed.Valid {
			tags[i].LastUsed = lastUsed.Time
		}
	}
	return tags, nil
}

// RecentActivity returns the newest activity log entries.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]domain.ActivityRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT document_path, activity, occurred_at
		FROM activity_log
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	var records []domain.ActivityRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var rec domain.ActivityRecord
		var activity string
		var occurredAt sql.NullTime
		if err := rows.Scan(&rec.DocumentPath, &activity, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		rec.Activity = domain.ActivityType(activity)
		if occurredAt.Valid {
			rec.Timestamp = occurredAt.Time
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity: %w", err)
	}
	return records, nil
}

// Optimize re-analyzes query statistics, truncates the WAL and vacuums.
func (s *Store) Optimize(ctx context.Context) (*domain.OptimizeReport, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	report := &domain.OptimizeReport{}

	for _, stmt := range []string{
		"ANALYZE",
		"PRAGMA wal_checkpoint(TRUNCATE)",
		"VACUUM",
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			report.Duration = time.Since(start)
			report.Errors = append(report.Errors, fmt.Sprintf("metadata: %s: %v", stmt, err))
			return report, nil
		}
	}

	s.mu.Lock()
	s.lastOptimized = time.Now().UTC()
	s.mu.Unlock()

	report.Duration = time.Since(start)
	report.MetadataOptimized = true
	return report, nil
}

// Backup writes a consistent snapshot of the database under dir using
// VACUUM INTO.
func (s *Store) Backup(ctx context.Context, dir string) (*domain.BackupReport, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	report := &domain.BackupReport{BackupPath: dir}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		report.Duration = time.Since(start)
		report.Errors = append(report.Errors, fmt.Sprintf("metadata: creating backup dir: %v", err))
		return report, nil
	}

	target := filepath.Join(dir, "metadata.db")
	os.Remove(target) //nolint:errcheck // VACUUM INTO refuses to overwrite

	escaped := strings.ReplaceAll(target, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", escaped)); err != nil {
		report.Duration = time.Since(start)
		report.Errors = append(report.Errors, fmt.Sprintf("metadata: vacuum into: %v", err))
		return report, nil
	}

	if info, err := os.Stat(target); err == nil {
		report.TotalSizeBytes = info.Size()
	}
	report.Duration = time.Since(start)
	report.MetadataBackedUp = true
	return report, nil
}
