package domain

import "time"

// PerformanceMetrics are the engine's runtime counters.
type PerformanceMetrics struct {
	AvgSearchLatencyMs    float64
	AvgIndexingTimeMs     float64
	CacheHitRate          float64
	TotalQueries          uint64
	TotalDocumentsIndexed uint64
}

// StorageStats reports counts and sizes for a storage backend, or the merged
// view of both backends when produced by the hybrid engine.
type StorageStats struct {
	TotalDocuments  int
	TotalEmbeddings int
	TotalBlocks     int

	// StorageSizeBytes is the approximate total on-disk footprint.
	StorageSizeBytes   int64
	EmbeddingSizeBytes int64
	MetadataSizeBytes  int64

	// LastOptimized is zero if the backend was never optimized.
	LastOptimized time.Time

	Performance PerformanceMetrics
}

// OptimizeReport aggregates the outcome of optimizing both backends.
// A partial failure is surfaced through the success flags and Errors list,
// never silently dropped.
type OptimizeReport struct {
	Duration          time.Duration
	MetadataOptimized bool
	VectorsOptimized  bool
	Errors            []string
}

// OK reports whether both backends optimized successfully.
func (r OptimizeReport) OK() bool {
	return r.MetadataOptimized && r.VectorsOptimized
}

// BackupReport aggregates the outcome of backing up both backends.
type BackupReport struct {
	Duration         time.Duration
	MetadataBackedUp bool
	VectorsBackedUp  bool
	BackupPath       string
	TotalSizeBytes   int64
	Errors           []string
}

// OK reports whether both backends were backed up successfully.
func (r BackupReport) OK() bool {
	return r.MetadataBackedUp && r.VectorsBackedUp
}

// StorageBreakdown splits the vault's disk usage by backend.
type StorageBreakdown struct {
	MetadataSizeMB float64
	VectorSizeMB   float64
	TotalSizeMB    float64
}

// VaultAnalytics is the vault-wide observability rollup.
type VaultAnalytics struct {
	TotalDocuments  int
	TotalEmbeddings int
	TotalQueries    uint64
	AvgQueryTimeMs  float64
	CacheHitRate    float64
	Breakdown       StorageBreakdown
	TopTags         []TagStat
	RecentActivity  []ActivityRecord
}
