package mcpgo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noot-app/feed-formulation-mcp-server/internal/auth"
	"github.com/noot-app/feed-formulation-mcp-server/internal/catalog"
	"github.com/noot-app/feed-formulation-mcp-server/internal/config"
	"github.com/noot-app/feed-formulation-mcp-server/internal/optimizer"
	"github.com/noot-app/feed-formulation-mcp-server/internal/types"
)

type fakeToolRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeToolRecorder) ObserveToolCall(tool, result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tool+":"+result)
}

func newTestServer(t *testing.T) (*Server, *catalog.MockCatalog, *fakeToolRecorder) {
	t.Helper()
	logger := config.NewTestLogger(io.Discard, "debug")
	mockCatalog := catalog.NewMockCatalog(logger)
	recorder := &fakeToolRecorder{}
	server := NewServer(
		mockCatalog,
		optimizer.New(logger, optimizer.WithTimeout(5*time.Second)),
		auth.NewBearerTokenAuth("test-token"),
		logger,
		WithToolRecorder(recorder),
	)
	return server, mockCatalog, recorder
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func TestServer_CheckHealth(t *testing.T) {
	t.Run("first call performs health check", func(t *testing.T) {
		server, _, _ := newTestServer(t)

		err := server.CheckHealth(context.Background())
		assert.NoError(t, err)

		assert.False(t, server.lastHealthCheck.IsZero())
		assert.NoError(t, server.lastHealthError)
	})

	t.Run("subsequent calls within 10 seconds use cache", func(t *testing.T) {
		server, _, _ := newTestServer(t)
		ctx := context.Background()

		require.NoError(t, server.CheckHealth(ctx))
		firstCheckTime := server.lastHealthCheck

		require.NoError(t, server.CheckHealth(ctx))
		assert.Equal(t, firstCheckTime, server.lastHealthCheck)
	})

	t.Run("caches error results", func(t *testing.T) {
		server, mockCatalog, _ := newTestServer(t)
		ctx := context.Background()
		testError := errors.New("catalog files unreadable")
		mockCatalog.SetError(testError)

		err1 := server.CheckHealth(ctx)
		assert.Equal(t, testError, err1)
		assert.Equal(t, testError, server.lastHealthError)

		mockCatalog.SetError(nil)

		err2 := server.CheckHealth(ctx)
		assert.Equal(t, testError, err2)
	})

	t.Run("cache expires after 10 seconds", func(t *testing.T) {
		server, mockCatalog, _ := newTestServer(t)
		ctx := context.Background()

		mockCatalog.SetError(errors.New("temporarily down"))
		require.Error(t, server.CheckHealth(ctx))

		mockCatalog.SetError(nil)
		server.lastHealthCheck = time.Now().Add(-11 * time.Second)

		assert.NoError(t, server.CheckHealth(ctx))
		assert.True(t, time.Since(server.lastHealthCheck) < time.Second)
	})

	t.Run("concurrent calls handle race conditions safely", func(t *testing.T) {
		server, _, _ := newTestServer(t)
		ctx := context.Background()
		server.lastHealthCheck = time.Now().Add(-11 * time.Second)

		errChan := make(chan error, 10)
		for i := 0; i < 10; i++ {
			go func() {
				errChan <- server.CheckHealth(ctx)
			}()
		}

		for i := 0; i < 10; i++ {
			assert.NoError(t, <-errChan)
		}
		assert.True(t, time.Since(server.lastHealthCheck) < time.Second)
	})
}

func TestServer_Handler_RequiresAuth(t *testing.T) {
	server, _, _ := newTestServer(t)
	handler := server.Handler()

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "wrong token", header: "Bearer nope"},
		{name: "wrong scheme", header: "Basic test-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
		})
	}
}

func TestServer_Handler_Initialize(t *testing.T) {
	server, _, _ := newTestServer(t)
	handler := server.Handler()

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1.0.0"}}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Feed Formulation MCP Server")
}

func TestServer_ListTools(t *testing.T) {
	server, _, recorder := newTestServer(t)
	ctx := context.Background()

	t.Run("ingredients with filter", func(t *testing.T) {
		result, err := server.handleListIngredients(ctx, callTool(ToolListIngredients, map[string]any{"filter": "karbonat"}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		response, ok := result.StructuredContent.(ListIngredientsResponse)
		require.True(t, ok)
		assert.True(t, response.Found)
		assert.Equal(t, 1, response.Count)
		assert.Equal(t, "Kalsium Karbonat", response.Ingredients[0].Name)
	})

	t.Run("ingredients with no match", func(t *testing.T) {
		result, err := server.handleListIngredients(ctx, callTool(ToolListIngredients, map[string]any{"filter": "zzz"}))
		require.NoError(t, err)

		response := result.StructuredContent.(ListIngredientsResponse)
		assert.False(t, response.Found)
		assert.NotNil(t, response.Ingredients)
	})

	t.Run("profiles", func(t *testing.T) {
		result, err := server.handleListProfiles(ctx, callTool(ToolListProfiles, map[string]any{"limit": float64(10)}))
		require.NoError(t, err)

		response := result.StructuredContent.(ListProfilesResponse)
		assert.Equal(t, 4, response.Count)
		assert.Equal(t, "Ayam - Broiler - Starter", response.Profiles[0].Label)
		assert.True(t, response.Profiles[0].HasTarget)
		assert.False(t, response.Profiles[3].HasTarget)
	})

	assert.Equal(t, []string{"list_ingredients:ok", "list_ingredients:ok", "list_livestock_profiles:ok"}, recorder.calls)
}

func TestServer_ListTools_CatalogError(t *testing.T) {
	server, mockCatalog, recorder := newTestServer(t)
	mockCatalog.SetError(errors.New("catalog offline"))

	result, err := server.handleListProfiles(context.Background(), callTool(ToolListProfiles, nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, []string{"list_livestock_profiles:error"}, recorder.calls)
}

func TestServer_FormulateFeed(t *testing.T) {
	tests := []struct {
		name           string
		args           map[string]any
		expectToolErr  bool
		expectFeasible bool
		expectReason   string
	}{
		{
			name: "catalog profile and ingredients",
			args: map[string]any{
				"profile_id":     "1",
				"ingredient_ids": []any{"1", "2", "3", "4", "6", "7"},
			},
			expectFeasible: true,
		},
		{
			name: "inline ingredients and target",
			args: map[string]any{
				"ingredients": []any{
					map[string]any{"id": "a", "name": "A", "pk": 10.0},
					map[string]any{"id": "b", "name": "B", "pk": 20.0},
				},
				"target": map[string]any{"pk_target": 0.15},
			},
			expectFeasible: true,
		},
		{
			name:         "profile without requirement data",
			args:         map[string]any{"profile_id": "4", "ingredient_ids": []any{"1"}},
			expectReason: "validation-error",
		},
		{
			name:         "no ingredients",
			args:         map[string]any{"profile_id": "1"},
			expectReason: "validation-error",
		},
		{
			name:          "unknown ingredient",
			args:          map[string]any{"profile_id": "1", "ingredient_ids": []any{"404"}},
			expectToolErr: true,
		},
		{
			name:          "malformed arguments",
			args:          map[string]any{"ingredient_ids": "not-a-list"},
			expectToolErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _, _ := newTestServer(t)

			result, err := server.handleFormulateFeed(context.Background(), callTool(ToolFormulateFeed, tt.args))
			require.NoError(t, err)

			if tt.expectToolErr {
				assert.True(t, result.IsError)
				return
			}
			require.False(t, result.IsError)

			response, ok := result.StructuredContent.(types.FormulationResponse)
			require.True(t, ok)
			assert.Equal(t, tt.expectFeasible, response.Feasible)
			assert.Equal(t, tt.expectReason, response.Reason)
			assert.NotEmpty(t, response.RunID)

			if tt.expectFeasible {
				assert.InDelta(t, 100.0, response.TotalPercentage, 1e-6)
				assert.NotNil(t, response.Achieved)
				assert.Len(t, response.Comparison, 6)
			} else {
				assert.Empty(t, response.Blend)
			}
		})
	}
}

func TestServer_FormulateFeed_RecordsRejections(t *testing.T) {
	server, _, recorder := newTestServer(t)

	_, err := server.handleFormulateFeed(context.Background(), callTool(ToolFormulateFeed, map[string]any{"profile_id": "4", "ingredient_ids": []any{"1"}}))
	require.NoError(t, err)
	assert.Equal(t, []string{"formulate_feed:rejected"}, recorder.calls)
}

func TestServer_EvaluateFormulation(t *testing.T) {
	server, _, _ := newTestServer(t)
	ctx := context.Background()

	result, err := server.handleEvaluateFormulation(ctx, callTool(ToolEvaluateFormulation, map[string]any{
		"profile_id": "1",
		"items": []any{
			map[string]any{"ingredient_id": "1", "percentage": 60.0},
			map[string]any{"ingredient_id": "3", "percentage": 40.0},
		},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	response := result.StructuredContent.(types.EvaluationResponse)
	assert.True(t, response.Complete)
	assert.InDelta(t, 23.1, response.Achieved.PK, 1e-9)
	assert.Len(t, response.Comparison, 6)

	result, err = server.handleEvaluateFormulation(ctx, callTool(ToolEvaluateFormulation, map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, clampLimit(0))
	assert.Equal(t, defaultListLimit, clampLimit(-3))
	assert.Equal(t, 5, clampLimit(5.9))
	assert.Equal(t, maxListLimit, clampLimit(1000))
}

func TestResponseRecorder(t *testing.T) {
	w := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: w}

	n, err := rec.Write([]byte("hello"))
	require.NoError(t, err)
	rec.WriteHeader(http.StatusTeapot) // ignored, header already sent

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusOK, rec.statusCode)
	assert.Equal(t, 5, rec.bytesWritten)
}
