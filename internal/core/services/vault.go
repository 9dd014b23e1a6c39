package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driving"
)

// Ensure VaultService implements the interface.
var _ driving.VaultService = (*VaultService)(nil)

// defaultRecentLimit applies when Recent is called without a limit.
const defaultRecentLimit = 10

// AnalyticsEngine is the engine surface the vault service needs: the
// storage port plus the vault-wide analytics rollup.
type AnalyticsEngine interface {
	driven.StorageEngine

	Analytics(ctx context.Context) (*domain.VaultAnalytics, error)
}

// VaultService implements vault maintenance and observability.
type VaultService struct {
	engine AnalyticsEngine
}

// NewVaultService creates a new vault service.
func NewVaultService(engine AnalyticsEngine) *VaultService {
	return &VaultService{engine: engine}
}

// Analytics returns the vault-wide observability rollup.
func (s *VaultService) Analytics(ctx context.Context) (*domain.VaultAnalytics, error) {
	analytics, err := s.engine.Analytics(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault analytics: %w", err)
	}
	return analytics, nil
}

// Recent returns the most recently modified documents.
func (s *VaultService) Recent(ctx context.Context, limit int) ([]domain.DocumentRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	docs, err := s.engine.GetRecentDocuments(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent documents: %w", err)
	}
	return docs, nil
}

// ByTag returns documents carrying the given tag.
func (s *VaultService) ByTag(ctx context.Context, tag string) ([]domain.DocumentRecord, error) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	if tag == "" {
		return nil, fmt.Errorf("empty tag: %w", domain.ErrInvalidInput)
	}
	docs, err := s.engine.GetDocumentsByTag(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("documents by tag: %w", err)
	}
	return docs, nil
}

// Optimize compacts both storage backends.
func (s *VaultService) Optimize(ctx context.Context) (*domain.OptimizeReport, error) {
	report, err := s.engine.Optimize(ctx)
	if err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	return report, nil
}

// Backup writes a consistent copy of both backends under dir.
func (s *VaultService) Backup(ctx context.Context, dir string) (*domain.BackupReport, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("empty backup directory: %w", domain.ErrInvalidInput)
	}
	report, err := s.engine.Backup(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	return report, nil
}

// Remove deletes a document from every backend.
func (s *VaultService) Remove(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path: %w", domain.ErrInvalidInput)
	}
	if err := s.engine.RemoveDocument(ctx, path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
