// Command mnemo is a personal knowledge vault: it indexes a markdown
// vault into a local hybrid storage engine (SQLite FTS5 metadata plus a
// columnar vector store) and searches it by keyword, by meaning, or both.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mnemo-labs/mnemo-cli/internal/adapters/driven/config/file"
	"github.com/mnemo-labs/mnemo-cli/internal/adapters/driven/embedding/ollama"
	"github.com/mnemo-labs/mnemo-cli/internal/adapters/driven/embedding/static"
	"github.com/mnemo-labs/mnemo-cli/internal/adapters/driven/storage/hybrid"
	"github.com/mnemo-labs/mnemo-cli/internal/adapters/driving/cli"
	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo-cli/internal/core/services"
	"github.com/mnemo-labs/mnemo-cli/internal/indexer"
	"github.com/mnemo-labs/mnemo-cli/internal/logger"
	"github.com/mnemo-labs/mnemo-cli/internal/parser"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// MNEMO_CONFIG_DIR overrides ~/.mnemo, mainly for tests and scripts.
	store, err := file.NewConfigStore(os.Getenv("MNEMO_CONFIG_DIR"))
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	cfg, err := store.Load()
	if err != nil {
		return err
	}
	if cfg.Verbose {
		logger.SetVerbose(true)
	}

	engine := hybrid.NewEngine(cfg.Storage)
	if err := engine.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer engine.Close() //nolint:errcheck

	embedder := buildEmbedder(ctx, cfg)
	if embedder != nil {
		defer embedder.Close() //nolint:errcheck
	}

	vaultPath := cfg.VaultPath
	if vaultPath == "" {
		if vaultPath, err = os.Getwd(); err != nil {
			return fmt.Errorf("resolve vault path: %w", err)
		}
	}
	ix, err := indexer.New(vaultPath, cfg.Indexer, engine, parser.New(), embedder)
	if err != nil {
		return fmt.Errorf("create indexer: %w", err)
	}

	cli.SetVersion(version)
	cli.SetServices(
		services.NewSearchService(engine, embedder),
		services.NewVaultService(engine),
		ix,
	)
	return cli.Execute(ctx)
}

// buildEmbedder constructs the configured embedding service. An
// unreachable Ollama server degrades to the static embedder so indexing
// and search keep working offline.
func buildEmbedder(ctx context.Context, cfg *domain.AppConfig) driven.EmbeddingService {
	dimension := cfg.Embedding.Dimension
	if dimension == 0 {
		dimension = cfg.Storage.Vectors.Dimension
	}

	switch cfg.Embedding.Provider {
	case "ollama":
		svc := ollama.NewEmbeddingService(ollama.Config{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: dimension,
		})
		if err := svc.Ping(ctx); err != nil {
			logger.Warn("Ollama unreachable, falling back to the static embedder: %v", err)
			return static.NewEmbeddingService(dimension)
		}
		return svc
	case "static":
		return static.NewEmbeddingService(dimension)
	default:
		return nil
	}
}
