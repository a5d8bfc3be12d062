package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noot-app/feed-formulation-mcp-server/internal/auth"
	"github.com/noot-app/feed-formulation-mcp-server/internal/config"
	"github.com/noot-app/feed-formulation-mcp-server/internal/dataset"
	"github.com/noot-app/feed-formulation-mcp-server/internal/mcpgo"
	"github.com/noot-app/feed-formulation-mcp-server/internal/metrics"
	"github.com/noot-app/feed-formulation-mcp-server/internal/optimizer"
	"github.com/noot-app/feed-formulation-mcp-server/internal/server"
)

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "feed-formulation-mcp-server",
		Short: "Feed blend formulation MCP server",
		Long: `Feed Formulation MCP Server blends feed ingredients so the mix comes as
close as possible to a livestock nutrient target (crude protein, metabolizable
energy, crude fiber, crude fat, calcium, phosphorus) while summing to 100%.

The server operates in three modes:

1. STDIO Mode (--stdio): For local MCP client integration
   - Uses stdio pipes for communication
   - No authentication required

2. HTTP Mode (default): For remote deployment
   - /mcp: streamable MCP endpoint (Bearer token)
   - /formulate: REST JSON endpoint (Bearer token)
   - /health and /metrics: no authentication

3. Fetch Catalog Mode (--fetch-catalog): Prepare the catalog and exit
   - Downloads the ingredient and livestock profile CSVs when URLs are set
   - Writes the built-in starter catalog when they are not

Available MCP Tools:
- list_ingredients: Browse the ingredient catalog
- list_livestock_profiles: Browse livestock nutrient requirements
- formulate_feed: Compute the closest blend to a target
- evaluate_formulation: Check a hand-entered blend

Authentication (HTTP Mode Only):
Set the AUTH_TOKEN environment variable to the Bearer token clients must send.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fetchCatalog, _ := cmd.Flags().GetBool("fetch-catalog")
			if fetchCatalog {
				return runFetchCatalogMode(cmd, args)
			}

			stdio, _ := cmd.Flags().GetBool("stdio")
			if stdio {
				return runStdioMode(cmd, args)
			}
			return runHTTPMode(cmd, args)
		},
	}

	rootCmd.Flags().Bool("stdio", false, "Run in stdio mode for local MCP clients (default: HTTP mode for remote deployment)")
	rootCmd.Flags().Bool("fetch-catalog", false, "Prepare the catalog files and exit without starting the server")

	rootCmd.AddCommand(newFormulateCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newOptimizer wires the optimizer settings from cfg
func newOptimizer(cfg *config.Config, logger *slog.Logger, recorder optimizer.Recorder) *optimizer.Optimizer {
	opts := []optimizer.Option{
		optimizer.WithTimeout(cfg.SolverTimeout),
		optimizer.WithConcurrency(cfg.BatchConcurrency),
	}
	if recorder != nil {
		opts = append(opts, optimizer.WithRecorder(recorder))
	}
	return optimizer.New(logger, opts...)
}

// runFetchCatalogMode prepares the catalog files and exits
func runFetchCatalogMode(cmd *cobra.Command, args []string) error {
	logger := config.NewTextLogger(cmd.OutOrStdout())
	cfg := config.Load()

	logger.Info("🗄️  Starting catalog fetch",
		"mode", "fetch-catalog",
		"target_dir", filepath.Dir(cfg.IngredientsPath))

	dataManager := dataset.NewManager(cfg, logger)
	if err := dataManager.EnsureCatalog(cmd.Context()); err != nil {
		logger.Error("Failed to fetch catalog", "error", err)
		return err
	}

	logger.Info("✅ Catalog fetch completed successfully",
		"ingredients_path", cfg.IngredientsPath,
		"profiles_path", cfg.ProfilesPath,
		"metadata_path", cfg.MetadataPath)

	return nil
}

// runStdioMode runs the MCP server over stdio
func runStdioMode(cmd *cobra.Command, args []string) error {
	// stderr logging keeps stdout free for the MCP protocol
	logger := config.NewLogger(true)
	cfg := config.Load()

	logger.Info("🔌 Starting Feed Formulation MCP Server in STDIO mode",
		"mode", "stdio",
		"auth", "not required for stdio mode",
		"transport", "stdio pipes")

	cat, err := server.NewServerInitializer(cfg, logger).Initialize(cmd.Context())
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		return err
	}
	defer cat.Close()

	// Auth is unused over stdio but required by the constructor
	authenticator := auth.NewBearerTokenAuth(cfg.AuthToken)

	mcpSrv := mcpgo.NewServer(cat, newOptimizer(cfg, logger, nil), authenticator, logger)
	return mcpSrv.ServeStdio()
}

// runHTTPMode serves MCP, REST, health and metrics over HTTP
func runHTTPMode(cmd *cobra.Command, args []string) error {
	logger := config.NewLogger(false)
	cfg := config.Load()

	logger.Info("🌐 Starting Feed Formulation MCP Server in HTTP mode",
		"mode", "http",
		"auth", "Bearer token required (except /health and /metrics)",
		"transport", "HTTP/JSON-RPC 2.0",
		"port", cfg.Port)

	ctx := cmd.Context()
	cat, err := server.NewServerInitializer(cfg, logger).Initialize(ctx)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		return err
	}
	defer cat.Close()

	reg := metrics.NewRegistry()
	srv := server.New(cfg, cat, newOptimizer(cfg, logger, reg), reg, logger)
	return srv.Run(ctx)
}

// Execute runs the root command, cancelling its context on SIGINT or SIGTERM
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// Run is the main entry point for the CLI application
func Run() error {
	return Execute()
}
