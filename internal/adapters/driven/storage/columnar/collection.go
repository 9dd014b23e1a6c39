package columnar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/mnemo-labs/mnemo-cli/internal/logger"
)

const (
	manifestName   = "manifest.json"
	tombstonesName = "tombstones.rbm"
)

// fragmentInfo describes one live fragment file in the manifest.
type fragmentInfo struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// manifest is the collection's durable catalogue.
type manifest struct {
	Version      int            `json:"version"`
	Dimension    int            `json:"dimension"`
	IndexKind    string         `json:"index_kind"`
	NextRowID    uint32         `json:"next_row_id"`
	NextFragment int            `json:"next_fragment"`
	Fragments    []fragmentInfo `json:"fragments"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// collection is one set of vectors (documents or blocks) persisted as
// immutable fragments plus a tombstone bitmap. The full live row set is
// kept in memory; the vault scale this engine targets makes that cheap.
type collection struct {
	name      string
	dir       string
	dimension int
	indexKind string
	compress  bool

	mu           sync.RWMutex
	records      []record
	rowPos       map[uint32]int
	byPath       map[string][]uint32
	dead         *roaring.Bitmap
	nextRowID    uint32
	nextFragment int
	fragments    []fragmentInfo
	gen          uint64
}

// scored is a search hit inside a collection.
type scored struct {
	rec   record
	score float32
}

// openCollection loads (or creates) the collection at dir.
func openCollection(name, dir string, dimension int, indexKind string, compress bool) (*collection, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating collection directory: %w", err)
	}

	c := &collection{
		name:      name,
		dir:       dir,
		dimension: dimension,
		indexKind: indexKind,
		compress:  compress,
		rowPos:    make(map[uint32]int),
		byPath:    make(map[string][]uint32),
		dead:      roaring.New(),
	}

	m, err := c.loadManifest()
	if err != nil {
		return nil, err
	}
	if m != nil {
		if m.Dimension != dimension {
			return nil, fmt.Errorf("collection %s: dimension %d on disk, want %d",
				name, m.Dimension, dimension)
		}
		c.nextRowID = m.NextRowID
		c.nextFragment = m.NextFragment
		c.fragments = m.Fragments
	}

	if err := c.loadTombstones(); err != nil {
		return nil, err
	}
	for _, frag := range c.fragments {
		recs, err := readFragment(filepath.Join(dir, frag.Name), dimension)
		if err != nil {
			return nil, err
		}
		c.index(recs)
	}
	return c, nil
}

// index adds recs to the in-memory maps. Caller holds the write lock or
// has exclusive access during load.
func (c *collection) index(recs []record) {
	for _, r := range recs {
		c.rowPos[r.RowID] = len(c.records)
		c.records = append(c.records, r)
		if !c.dead.Contains(r.RowID) {
			c.byPath[r.Path] = append(c.byPath[r.Path], r.RowID)
		}
	}
}

// replace atomically replaces all rows for path with recs. Passing no
// records just tombstones the path.
func (c *collection) replace(path string, recs []record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.byPath[path] {
		c.dead.Add(id)
	}
	delete(c.byPath, path)

	for i := range recs {
		recs[i].RowID = c.nextRowID
		c.nextRowID++
	}

	if len(recs) > 0 {
		name := fmt.Sprintf("fragment_%06d.col", c.nextFragment)
		if err := writeFragment(filepath.Join(c.dir, name), c.dimension, c.compress, recs); err != nil {
			return err
		}
		c.nextFragment++
		c.fragments = append(c.fragments, fragmentInfo{Name: name, Rows: len(recs)})
		c.index(recs)
	}

	if err := c.saveTombstones(); err != nil {
		return err
	}
	if err := c.saveManifest(); err != nil {
		return err
	}
	c.gen++
	return nil
}

// remove tombstones all rows for path. Unknown paths are a no-op.
func (c *collection) remove(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := c.byPath[path]
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		c.dead.Add(id)
	}
	delete(c.byPath, path)
	c.gen++
	return c.saveTombstones()
}

// contains reports whether path has live rows.
func (c *collection) contains(path string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byPath[path]) > 0
}

// liveRows returns the number of live (non-tombstoned) rows.
func (c *collection) liveRows() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, ids := range c.byPath {
		n += len(ids)
	}
	return n
}

// search scans the live rows and returns up to limit hits with cosine
// similarity of at least threshold, best first. Ties break on ascending
// path so results are deterministic.
func (c *collection) search(vector []float32, limit int, threshold float32) []scored {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var hits []scored
	for _, r := range c.records {
		if c.dead.Contains(r.RowID) {
			continue
		}
		sim := cosineSimilarity(vector, r.Vector)
		if sim < threshold {
			continue
		}
		hits = append(hits, scored{rec: r, score: sim})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].rec.Path < hits[j].rec.Path
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// compact merges all live rows into a single fragment and clears the
// tombstones. The merge runs on a snapshot outside the lock; if a write
// lands in the meantime the compaction is abandoned rather than losing it.
func (c *collection) compact() error {
	c.mu.RLock()
	snapshotGen := c.gen
	live := make([]record, 0, len(c.records))
	for _, r := range c.records {
		if !c.dead.Contains(r.RowID) {
			live = append(live, r)
		}
	}
	oldFragments := append([]fragmentInfo(nil), c.fragments...)
	deadEmpty := c.dead.IsEmpty()
	c.mu.RUnlock()

	if len(oldFragments) <= 1 && deadEmpty {
		return nil // nothing to merge
	}

	// The merged file gets a private temp name while the lock is
	// released. Fragment numbers are claimed under the write lock only,
	// so a concurrent replace can never collide with this file.
	tmpFile, err := os.CreateTemp(c.dir, "compact_*.col.tmp")
	if err != nil {
		return fmt.Errorf("creating compaction file: %w", err)
	}
	tmp := tmpFile.Name()
	tmpFile.Close() //nolint:errcheck
	if err := writeFragment(tmp, c.dimension, c.compress, live); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != snapshotGen {
		// A concurrent write invalidated the snapshot.
		os.Remove(tmp) //nolint:errcheck
		logger.Debug("columnar: %s compaction skipped, concurrent write", c.name)
		return nil
	}

	name := fmt.Sprintf("fragment_%06d.col", c.nextFragment)
	if err := os.Rename(tmp, filepath.Join(c.dir, name)); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("committing compacted fragment: %w", err)
	}

	c.nextFragment++
	c.fragments = []fragmentInfo{{Name: name, Rows: len(live)}}
	c.dead.Clear()
	c.records = live
	c.rowPos = make(map[uint32]int, len(live))
	c.byPath = make(map[string][]uint32)
	c.index(live)

	if err := c.saveTombstones(); err != nil {
		return err
	}
	if err := c.saveManifest(); err != nil {
		return err
	}
	c.gen++

	for _, frag := range oldFragments {
		os.Remove(filepath.Join(c.dir, frag.Name)) //nolint:errcheck
	}
	return nil
}

// loadManifest returns nil when no manifest exists yet.
func (c *collection) loadManifest() (*manifest, error) {
	raw, err := os.ReadFile(filepath.Join(c.dir, manifestName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// saveManifest writes the manifest atomically. Caller holds the write lock.
func (c *collection) saveManifest() error {
	m := manifest{
		Version:      fragmentVersion,
		Dimension:    c.dimension,
		IndexKind:    c.indexKind,
		NextRowID:    c.nextRowID,
		NextFragment: c.nextFragment,
		Fragments:    c.fragments,
		UpdatedAt:    time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return atomicWrite(filepath.Join(c.dir, manifestName), raw)
}

// loadTombstones reads the tombstone bitmap if one exists.
func (c *collection) loadTombstones() error {
	raw, err := os.ReadFile(filepath.Join(c.dir, tombstonesName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading tombstones: %w", err)
	}
	if err := c.dead.UnmarshalBinary(raw); err != nil {
		return fmt.Errorf("parsing tombstones: %w", err)
	}
	return nil
}

// saveTombstones writes the tombstone bitmap atomically. Caller holds the
// write lock.
func (c *collection) saveTombstones() error {
	raw, err := c.dead.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding tombstones: %w", err)
	}
	return atomicWrite(filepath.Join(c.dir, tombstonesName), raw)
}

// atomicWrite writes data via a temp file and rename.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("committing %s: %w", filepath.Base(path), err)
	}
	return nil
}
