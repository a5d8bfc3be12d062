package mcpgo

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/noot-app/feed-formulation-mcp-server/internal/auth"
	"github.com/noot-app/feed-formulation-mcp-server/internal/catalog"
	"github.com/noot-app/feed-formulation-mcp-server/internal/optimizer"
	"github.com/noot-app/feed-formulation-mcp-server/internal/version"
)

// healthCacheDuration bounds how often /health reaches the catalog
const healthCacheDuration = 10 * time.Second

// responseRecorder wraps http.ResponseWriter to capture response details
type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	bytesWritten  int
	headerWritten bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.headerWritten {
		return // Prevent duplicate WriteHeader calls
	}
	r.statusCode = code
	r.headerWritten = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if !r.headerWritten {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(data)
	r.bytesWritten += n
	return n, err
}

// Flush lets streamed MCP responses through the recorder
func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ToolRecorder counts tool invocations. It is satisfied by metrics.Registry.
type ToolRecorder interface {
	ObserveToolCall(tool, result string)
}

// Server wraps the mark3labs MCP server with the catalog, the optimizer and authentication
type Server struct {
	mcpServer *server.MCPServer
	catalog   catalog.Catalog
	optimizer *optimizer.Optimizer
	auth      *auth.BearerTokenAuth
	recorder  ToolRecorder
	log       *slog.Logger

	// Health check caching to prevent DOS attacks
	healthMu        sync.RWMutex
	lastHealthCheck time.Time
	lastHealthError error
}

// Option configures a Server
type Option func(*Server)

// WithToolRecorder reports every tool call to r
func WithToolRecorder(r ToolRecorder) Option {
	return func(s *Server) { s.recorder = r }
}

// NewServer creates a new MCP server with the mark3labs SDK
func NewServer(cat catalog.Catalog, opt *optimizer.Optimizer, authenticator *auth.BearerTokenAuth, logger *slog.Logger, opts ...Option) *Server {
	mcpServer := server.NewMCPServer(
		"Feed Formulation MCP Server",
		version.Number(),
		server.WithToolCapabilities(false), // Tools don't change dynamically
		server.WithRecovery(),              // Recover from panics
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		catalog:   cat,
		optimizer: opt,
		auth:      authenticator,
		log:       logger,
	}
	for _, o := range opts {
		o(s)
	}

	s.addTools()

	return s
}

// CheckHealth checks catalog health, caching the result for ten seconds
func (s *Server) CheckHealth(ctx context.Context) error {
	s.healthMu.RLock()
	if time.Since(s.lastHealthCheck) < healthCacheDuration {
		err := s.lastHealthError
		s.healthMu.RUnlock()
		s.log.Debug("Health check: using cached result",
			"cached_error", err != nil,
			"cache_age", time.Since(s.lastHealthCheck))
		return err
	}
	s.healthMu.RUnlock()

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	// Double-check in case another goroutine updated while waiting for write lock
	if time.Since(s.lastHealthCheck) < healthCacheDuration {
		s.log.Debug("Health check: using cached result after lock",
			"cached_error", s.lastHealthError != nil,
			"cache_age", time.Since(s.lastHealthCheck))
		return s.lastHealthError
	}

	s.log.Debug("Health check: performing catalog check")
	err := s.catalog.HealthCheck(ctx)
	s.lastHealthCheck = time.Now()
	s.lastHealthError = err

	return err
}

// Handler returns the authenticated streamable HTTP endpoint, mounted at /mcp
func (s *Server) Handler() http.Handler {
	streamableServer := server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovery := recover(); recovery != nil {
				s.log.Error("MCP endpoint panic recovered",
					"panic", recovery,
					"method", r.Method,
					"url", r.URL.String(),
					"remote_addr", r.RemoteAddr)
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Internal Server Error"))
			}
		}()

		s.log.Debug("MCP request received",
			"method", r.Method,
			"url", r.URL.String(),
			"content_type", r.Header.Get("Content-Type"),
			"content_length", r.ContentLength,
			"remote_addr", r.RemoteAddr)

		if !s.auth.IsAuthorized(r) {
			s.auth.SetUnauthorizedHeaders(w)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized"))
			s.log.Warn("Unauthorized MCP request", "remote_addr", r.RemoteAddr, "user_agent", r.UserAgent())
			return
		}

		recorder := &responseRecorder{ResponseWriter: w}
		streamableServer.ServeHTTP(recorder, r)

		s.log.Debug("MCP response sent",
			"status_code", recorder.statusCode,
			"response_size", recorder.bytesWritten,
			"content_type", recorder.Header().Get("Content-Type"))
	})
}

// ServeStdio serves the MCP server over stdio (no auth required for local use)
func (s *Server) ServeStdio() error {
	s.log.Info("Starting MCP server in stdio mode")
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) observe(tool, result string) {
	if s.recorder != nil {
		s.recorder.ObserveToolCall(tool, result)
	}
}
