package driving

import (
	"context"
	"time"
)

// IndexReport summarizes an indexing run.
type IndexReport struct {
	FilesScanned int
	FilesIndexed int
	FilesSkipped int
	FilesFailed  int
	Duration     time.Duration
}

// IndexService drives the vault indexing pipeline.
type IndexService interface {
	// IndexVault walks the vault and indexes every dirty file.
	IndexVault(ctx context.Context) (*IndexReport, error)

	// IndexFile indexes a single file.
	IndexFile(ctx context.Context, path string) error

	// Watch blocks, reindexing files as they change, until ctx is done.
	Watch(ctx context.Context) error
}
