package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/noot-app/feed-formulation-mcp-server/internal/catalog"
	"github.com/noot-app/feed-formulation-mcp-server/internal/config"
	"github.com/noot-app/feed-formulation-mcp-server/internal/dataset"
)

// ServerInitializer handles the startup steps shared by the stdio and HTTP modes
type ServerInitializer struct {
	config      *config.Config
	log         *slog.Logger
	dataManager *dataset.Manager
}

// NewServerInitializer creates a new server initializer
func NewServerInitializer(cfg *config.Config, logger *slog.Logger) *ServerInitializer {
	return &ServerInitializer{
		config:      cfg,
		log:         logger,
		dataManager: dataset.NewManager(cfg, logger),
	}
}

// Initialize makes the catalog files available and opens the catalog over them
func (si *ServerInitializer) Initialize(ctx context.Context) (catalog.Catalog, error) {
	start := time.Now()
	si.log.Info("Initializing server...")

	if si.config.IsDevelopment() {
		si.log.Warn("🚧 DEVELOPMENT MODE ENABLED 🚧",
			"environment", si.config.Environment,
			"note", "Detailed error messages will be returned to clients")
	}

	if err := si.dataManager.EnsureCatalog(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure catalog: %w", err)
	}

	cat, err := catalog.NewCatalog(si.config, si.log)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	if err := cat.HealthCheck(ctx); err != nil {
		cat.Close()
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	si.log.Info("Server initialized successfully", "duration", time.Since(start))
	return cat, nil
}

// RefreshCatalog re-checks the catalog files against their remotes
func (si *ServerInitializer) RefreshCatalog(ctx context.Context) error {
	return si.dataManager.EnsureCatalog(ctx)
}
