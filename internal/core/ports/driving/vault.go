package driving

import (
	"context"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
)

// VaultService exposes vault maintenance and observability operations.
type VaultService interface {
	// Analytics returns the vault-wide observability rollup.
	Analytics(ctx context.Context) (*domain.VaultAnalytics, error)

	// Recent returns the most recently modified documents.
	Recent(ctx context.Context, limit int) ([]domain.DocumentRecord, error)

	// ByTag returns documents carrying the given tag.
	ByTag(ctx context.Context, tag string) ([]domain.DocumentRecord, error)

	// Optimize compacts both storage backends.
	Optimize(ctx context.Context) (*domain.OptimizeReport, error)

	// Backup writes a consistent copy of both backends under dir.
	Backup(ctx context.Context, dir string) (*domain.BackupReport, error)

	// Remove deletes a document from every backend.
	Remove(ctx context.Context, path string) error
}
