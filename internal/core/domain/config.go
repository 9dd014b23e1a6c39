package domain

import (
	"path/filepath"
	"time"
)

// IndexKind selects the vector index structure.
type IndexKind string

// Recognised index kinds. Flat is an exact scan; IVF and HNSW parameters are
// recorded for backends that support approximate indexes.
const (
	IndexIVF  IndexKind = "ivf"
	IndexHNSW IndexKind = "hnsw"
	IndexFlat IndexKind = "flat"
)

// IsValid returns true if the index kind is recognised.
func (k IndexKind) IsValid() bool {
	switch k {
	case IndexIVF, IndexHNSW, IndexFlat:
		return true
	default:
		return false
	}
}

// MetadataConfig configures the relational/full-text backend.
type MetadataConfig struct {
	// DatabasePath is the SQLite database file location.
	DatabasePath string `toml:"database_path"`

	// MemoryLimitMB caps the page cache. Zero means driver default.
	MemoryLimitMB int `toml:"memory_limit_mb"`

	// Threads is the worker thread count. Zero means driver default.
	Threads int `toml:"threads"`

	// WALMode enables write-ahead logging for concurrent readers.
	WALMode bool `toml:"wal_mode"`

	// CacheSizeMB is the statement/page cache budget.
	CacheSizeMB int `toml:"cache_size_mb"`
}

// VectorConfig configures the columnar vector backend.
type VectorConfig struct {
	// DatasetPath is the root directory of the vector collections.
	DatasetPath string `toml:"dataset_path"`

	// Dimension is the fixed embedding length. Writes and queries with a
	// different length are rejected before any I/O.
	Dimension int `toml:"dimension"`

	// IndexKind selects the index structure (ivf, hnsw, flat).
	IndexKind IndexKind `toml:"index_kind"`

	// NumPartitions is the IVF partition count.
	NumPartitions int `toml:"num_partitions"`

	// NumSubQuantizers is the IVF product-quantizer count.
	NumSubQuantizers int `toml:"num_sub_quantizers"`

	// Compression enables lz4 compression of fragment files.
	Compression bool `toml:"compression"`
}

// CacheConfig configures the engine's query cache.
type CacheConfig struct {
	Enabled         bool          `toml:"enabled"`
	MaxEntries      int           `toml:"max_entries"`
	TTL             time.Duration `toml:"ttl"`
	DiskCacheSizeMB int           `toml:"disk_cache_size_mb"`
}

// PerformanceConfig tunes batching and background work.
type PerformanceConfig struct {
	// BatchSize is the indexing batch size.
	BatchSize int `toml:"batch_size"`

	// MaxConcurrentOps bounds concurrent store operations issued by the
	// indexing pipeline.
	MaxConcurrentOps int `toml:"max_concurrent_ops"`

	// OptimizeInterval is the background optimization cadence. Zero
	// disables background optimization.
	OptimizeInterval time.Duration `toml:"optimize_interval"`
}

// StorageConfig is the full engine configuration, fixed at construction.
type StorageConfig struct {
	// BasePath is the root under which both backends persist their
	// independent sub-trees.
	BasePath string `toml:"base_path"`

	Metadata    MetadataConfig    `toml:"metadata"`
	Vectors     VectorConfig      `toml:"vectors"`
	Cache       CacheConfig       `toml:"cache"`
	Performance PerformanceConfig `toml:"performance"`
}

// DefaultStorageConfig returns the default configuration rooted at basePath.
// Dimension defaults to 384 (MiniLM-style sentence embeddings).
func DefaultStorageConfig(basePath string) StorageConfig {
	if basePath == "" {
		basePath = "./storage"
	}
	return StorageConfig{
		BasePath: basePath,
		Metadata: MetadataConfig{
			DatabasePath:  filepath.Join(basePath, "metadata"),
			MemoryLimitMB: 1024,
			WALMode:       true,
			CacheSizeMB:   512,
		},
		Vectors: VectorConfig{
			DatasetPath:      filepath.Join(basePath, "vectors"),
			Dimension:        384,
			IndexKind:        IndexFlat,
			NumPartitions:    256,
			NumSubQuantizers: 16,
			Compression:      true,
		},
		Cache: CacheConfig{
			Enabled:         true,
			MaxEntries:      10000,
			TTL:             time.Hour,
			DiskCacheSizeMB: 256,
		},
		Performance: PerformanceConfig{
			BatchSize:        100,
			MaxConcurrentOps: 8,
			OptimizeInterval: time.Hour,
		},
	}
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "ollama", "static" or "" (disabled).
	Provider string `toml:"provider"`

	// BaseURL is the Ollama server URL.
	BaseURL string `toml:"base_url"`

	// Model is the embedding model name.
	Model string `toml:"model"`

	// Dimension overrides the provider's reported dimension when set.
	Dimension int `toml:"dimension"`
}

// IndexerConfig tunes the vault indexing pipeline.
type IndexerConfig struct {
	// IgnorePatterns are glob patterns excluded from indexing.
	IgnorePatterns []string `toml:"ignore_patterns"`

	// Watch enables filesystem watching after the initial walk.
	Watch bool `toml:"watch"`

	// RateLimit caps indexed files per second while watching. Zero
	// disables rate limiting.
	RateLimit float64 `toml:"rate_limit"`
}

// AppConfig is the full application configuration persisted as TOML.
type AppConfig struct {
	// VaultPath is the root of the knowledge vault to index.
	VaultPath string `toml:"vault_path"`

	Storage   StorageConfig   `toml:"storage"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Indexer   IndexerConfig   `toml:"indexer"`

	// Verbose enables debug logging.
	Verbose bool `toml:"verbose"`
}

// DefaultAppConfig returns the default application configuration with
// storage rooted under dataDir.
func DefaultAppConfig(dataDir string) AppConfig {
	return AppConfig{
		Storage: DefaultStorageConfig(dataDir),
		Embedding: EmbeddingConfig{
			Provider: "static",
			BaseURL:  "http://localhost:11434",
			Model:    "nomic-embed-text",
		},
		Indexer: IndexerConfig{
			IgnorePatterns: []string{".obsidian/**", ".git/**", ".trash/**"},
			RateLimit:      50,
		},
	}
}

// Validate checks the configuration for construction-time errors.
func (c StorageConfig) Validate() error {
	if c.BasePath == "" {
		return ErrInvalidInput
	}
	if c.Vectors.Dimension <= 0 {
		return ErrInvalidInput
	}
	if c.Vectors.IndexKind != "" && !c.Vectors.IndexKind.IsValid() {
		return ErrInvalidInput
	}
	return nil
}
