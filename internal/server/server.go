package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/noot-app/feed-formulation-mcp-server/internal/auth"
	"github.com/noot-app/feed-formulation-mcp-server/internal/catalog"
	"github.com/noot-app/feed-formulation-mcp-server/internal/config"
	"github.com/noot-app/feed-formulation-mcp-server/internal/mcpgo"
	"github.com/noot-app/feed-formulation-mcp-server/internal/metrics"
	"github.com/noot-app/feed-formulation-mcp-server/internal/optimizer"
	"github.com/noot-app/feed-formulation-mcp-server/internal/types"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server exposes the optimizer over HTTP: health, metrics, REST and MCP
type Server struct {
	config      *config.Config
	catalog     catalog.Catalog
	optimizer   *optimizer.Optimizer
	metrics     *metrics.Registry
	mcp         *mcpgo.Server
	auth        *auth.BearerTokenAuth
	initializer *ServerInitializer
	log         *slog.Logger
}

// New creates a new HTTP server over an initialized catalog
func New(cfg *config.Config, cat catalog.Catalog, opt *optimizer.Optimizer, reg *metrics.Registry, logger *slog.Logger) *Server {
	authenticator := auth.NewBearerTokenAuth(cfg.AuthToken)

	return &Server{
		config:      cfg,
		catalog:     cat,
		optimizer:   opt,
		metrics:     reg,
		mcp:         mcpgo.NewServer(cat, opt, authenticator, logger, mcpgo.WithToolRecorder(reg)),
		auth:        authenticator,
		initializer: NewServerInitializer(cfg, logger),
		log:         logger,
	}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health and metrics endpoints (no auth required)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())

	mux.Handle("/formulate", s.auth.Middleware(http.HandlerFunc(s.handleFormulate)))
	mux.Handle("/mcp", s.mcp.Handler())

	return mux
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("🚀 Starting Feed Formulation MCP Server (HTTP Mode)",
		"mode", "http",
		"port", s.config.Port,
		"auth_required", "yes (Bearer token)",
		"health_endpoint", "/health (no auth required)",
		"mcp_endpoint", "/mcp (auth required)")

	if s.config.RefreshIntervalHours > 0 {
		s.startRefreshLoop(ctx)
	}

	server := &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Handler(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("🌐 HTTP server ready for remote connections",
			"addr", server.Addr,
			"endpoints", map[string]string{
				"/health":    "health check (no auth)",
				"/metrics":   "Prometheus metrics (no auth)",
				"/formulate": "REST formulation (auth required)",
				"/mcp":       "MCP JSON-RPC 2.0 (auth required)",
			})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		s.log.Error("Server shutdown error", "error", err)
		return err
	}

	s.log.Info("Server stopped")
	return nil
}

// startRefreshLoop periodically re-checks the catalog files. The catalog
// reads its files per query, so refreshed data is served without a restart.
func (s *Server) startRefreshLoop(ctx context.Context) {
	interval := s.config.RefreshInterval()
	s.log.Info("Starting refresh loop", "interval", interval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.log.Info("Refresh loop stopping due to context cancellation")
				return
			case <-ticker.C:
				s.log.Info("Refresh tick: checking catalog")
				if err := s.initializer.RefreshCatalog(ctx); err != nil {
					s.log.Error("Refresh failed", "error", err)
				} else {
					s.log.Info("Refresh completed successfully")
				}
			}
		}
	}()
}

// handleHealth reports the cached catalog health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := s.mcp.CheckHealth(r.Context()); err != nil {
		s.log.Error("Health check failed", "error", err)
		response := HealthResponse{Status: "unhealthy"}
		if s.config.IsDevelopment() {
			response.Error = err.Error()
		}
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// handleFormulate runs one formulation, or a batch when the body is a JSON array.
// A single validation rejection answers 422; infeasible and solver rejections
// answer 200 with feasible=false.
func (s *Server) handleFormulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		s.sendErrorResponse(w, err, "request body too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}

	reqs, err := types.DecodeRequests(body, types.FormatJSON)
	if err != nil {
		s.log.Warn("Bad request", "error", err)
		s.sendErrorResponse(w, err, "bad request", http.StatusBadRequest)
		return
	}
	if len(reqs) > MaxBatchSize {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("at most %d requests per batch", MaxBatchSize)})
		return
	}

	start := time.Now()
	resolved := make([]optimizer.Request, 0, len(reqs))
	for i, req := range reqs {
		in, err := req.Resolve(ctx, s.catalog)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("request %d: %v", i, err)})
				return
			}
			s.log.Error("Request resolution failed", "error", err, "index", i)
			s.sendErrorResponse(w, err, "internal error", http.StatusInternalServerError)
			return
		}
		resolved = append(resolved, in)
	}

	if firstNonSpace(body) == '[' {
		outcomes := s.optimizer.FormulateBatch(ctx, resolved)
		responses := make([]types.FormulationResponse, 0, len(outcomes))
		for _, out := range outcomes {
			responses = append(responses, s.response(out))
		}
		s.log.Info("Batch formulation completed", "count", len(responses), "duration", time.Since(start))
		writeJSON(w, http.StatusOK, responses)
		return
	}

	response := s.response(s.optimizer.Formulate(ctx, resolved[0]))
	s.log.Info("Formulation completed",
		"run_id", response.RunID,
		"feasible", response.Feasible,
		"status", response.Status,
		"duration", time.Since(start))

	status := http.StatusOK
	if response.IsValidationError() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, response)
}

// response converts an outcome, hiding solver internals outside development mode
func (s *Server) response(out optimizer.Outcome) types.FormulationResponse {
	resp := types.FromOutcome(out)
	if resp.Reason == string(optimizer.ReasonSolverError) && !s.config.IsDevelopment() {
		resp.Error = ""
	}
	return resp
}

// sendErrorResponse sends an error response, with detailed error in development mode
func (s *Server) sendErrorResponse(w http.ResponseWriter, err error, message string, statusCode int) {
	if s.config.IsDevelopment() {
		writeJSON(w, statusCode, ErrorResponse{Error: fmt.Sprintf("%s: %v", message, err)})
		return
	}
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b
	}
	return 0
}
